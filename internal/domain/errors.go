package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Not-found errors cover absent and soft-deleted entities alike.
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrBidNotFound     = errors.New("bid not found")
	ErrUserNotFound    = errors.New("user not found")
)

// Validation and state errors
var (
	ErrAuctionNotActive = errors.New("auction is not active")
	ErrAuctionEnded     = errors.New("auction has ended")
	ErrSelfBid          = errors.New("seller cannot bid on own auction")
	ErrBidTooLow        = errors.New("bid amount too low")
	ErrInvalidState     = errors.New("action not allowed in current auction state")
	ErrUnauthorized     = errors.New("actor not permitted")
)

// Concurrency errors
var (
	// ErrVersionConflict signals a stale-version write. Callers re-read
	// and retry; the store never swallows it.
	ErrVersionConflict = errors.New("version conflict")

	// ErrConcurrentModification surfaces when the retry budget for
	// version conflicts is exhausted.
	ErrConcurrentModification = errors.New("concurrent modification, retries exhausted")
)

// BidTooLowError carries the minimum acceptable amount so the caller can
// correct the bid without another read.
type BidTooLowError struct {
	AuctionID    string
	CurrentPrice decimal.Decimal
	Minimum      decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid too low for auction %s: current price %s, minimum acceptable %s",
		e.AuctionID, e.CurrentPrice, e.Minimum)
}

func (e *BidTooLowError) Unwrap() error { return ErrBidTooLow }

// InvalidStateError reports the status that blocked an operation.
type InvalidStateError struct {
	AuctionID string
	Status    AuctionStatus
	Action    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s auction %s in status %s", e.Action, e.AuctionID, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }
