package services

import (
	"errors"
	"fmt"

	"auction-engine/internal/domain"
)

// defaultRetryBudget bounds how often a version-conflicted operation is
// re-attempted from a fresh read before ErrConcurrentModification surfaces.
const defaultRetryBudget = 3

// retryOnConflict runs fn until it returns something other than
// ErrVersionConflict or the attempt budget runs out. Conflicts are the
// only retried failure; everything else surfaces immediately.
func retryOnConflict(attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrConcurrentModification, err)
}
