package services

import (
	"context"
	"fmt"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// SettlementTracker records post-sale payment and delivery confirmations
// and completes the auction once both sides are in. Which party confirms
// which side is the caller's authorization concern.
type SettlementTracker struct {
	auctions domain.AuctionStore
	machine  *StateMachine
	log      logger.Logger
	retries  int
}

func NewSettlementTracker(auctions domain.AuctionStore, machine *StateMachine, log logger.Logger) *SettlementTracker {
	return &SettlementTracker{
		auctions: auctions,
		machine:  machine,
		log:      log,
		retries:  defaultRetryBudget,
	}
}

func (t *SettlementTracker) ConfirmPayment(ctx context.Context, auctionID, actorID string) (*domain.Auction, error) {
	return t.confirm(ctx, auctionID, actorID, "payment")
}

func (t *SettlementTracker) ConfirmDelivery(ctx context.Context, auctionID, actorID string) (*domain.Auction, error) {
	return t.confirm(ctx, auctionID, actorID, "delivery")
}

// confirm is idempotent: re-confirming an already-confirmed side returns
// the current state unchanged, without a version bump or event.
func (t *SettlementTracker) confirm(ctx context.Context, auctionID, actorID, side string) (*domain.Auction, error) {
	var result *domain.Auction
	err := retryOnConflict(t.retries, func() error {
		a, err := t.auctions.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.IsDeleted {
			return fmt.Errorf("confirm %s: auction %s: %w", side, auctionID, domain.ErrAuctionNotFound)
		}
		if a.Status == domain.AuctionCompleted {
			result = a
			return nil
		}
		if a.Status != domain.AuctionSold {
			return &domain.InvalidStateError{AuctionID: auctionID, Status: a.Status, Action: "confirm " + side}
		}

		// A previous confirmation may have recorded both sides without the
		// completion write landing. Catch that up before the per-side no-op
		// check, otherwise the auction stays sold forever.
		if a.Payment.Done && a.Delivery.Done {
			if err := t.machine.Complete(ctx, auctionID); err != nil {
				return err
			}
			if a, err = t.auctions.GetAuction(ctx, auctionID); err != nil {
				return err
			}
			result = a
			return nil
		}

		flag := &a.Payment
		if side == "delivery" {
			flag = &a.Delivery
		}
		if flag.Done {
			result = a
			return nil
		}

		now := time.Now()
		expected := a.Version
		flag.Done = true
		flag.ActorID = actorID
		flag.At = now
		a.UpdatedAt = now
		if err := t.auctions.UpdateAuction(ctx, a, expected); err != nil {
			return err
		}
		t.log.Info("Settlement side confirmed",
			"auction_id", auctionID, "side", side, "actor_id", actorID)

		if a.Payment.Done && a.Delivery.Done {
			if err := t.machine.Complete(ctx, auctionID); err != nil {
				return err
			}
			if a, err = t.auctions.GetAuction(ctx, auctionID); err != nil {
				return err
			}
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
