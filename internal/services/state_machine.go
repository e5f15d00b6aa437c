package services

import (
	"context"
	"fmt"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// StateMachine owns the legal auction transitions:
//
//	upcoming → active → ended (unsold, terminal)
//	                  → sold → completed
//	upcoming/active → cancelled
//
// Every transition is a version-checked update; a stale write is retried
// from a fresh read, never assumed to have failed permanently.
type StateMachine struct {
	auctions domain.AuctionStore
	bids     domain.BidStore
	events   domain.EventPublisher
	log      logger.Logger
	retries  int
}

func NewStateMachine(
	auctions domain.AuctionStore,
	bids domain.BidStore,
	events domain.EventPublisher,
	log logger.Logger,
) *StateMachine {
	return &StateMachine{
		auctions: auctions,
		bids:     bids,
		events:   events,
		log:      log,
		retries:  defaultRetryBudget,
	}
}

var legalTransitions = map[domain.AuctionStatus][]domain.AuctionStatus{
	domain.AuctionUpcoming: {domain.AuctionActive, domain.AuctionCancelled},
	domain.AuctionActive:   {domain.AuctionEnded, domain.AuctionSold, domain.AuctionCancelled},
	domain.AuctionEnded:    {}, // unsold, terminal for bidding
	domain.AuctionSold:     {domain.AuctionCompleted},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to domain.AuctionStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Activate moves a due upcoming auction to active. Acting on an auction
// already past upcoming is a no-op, so any read or write path may call it.
func (m *StateMachine) Activate(ctx context.Context, auctionID string) (bool, error) {
	activated := false
	err := retryOnConflict(m.retries, func() error {
		activated = false
		a, err := m.auctions.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.IsDeleted {
			return fmt.Errorf("activate auction %s: %w", auctionID, domain.ErrAuctionNotFound)
		}
		if a.Status != domain.AuctionUpcoming {
			return nil
		}
		now := time.Now()
		if now.Before(a.StartTime) {
			return nil
		}

		expected := a.Version
		a.Status = domain.AuctionActive
		a.UpdatedAt = now
		if err := m.auctions.UpdateAuction(ctx, a, expected); err != nil {
			return err
		}
		activated = true
		m.log.Info("Auction activated", "auction_id", auctionID)
		return nil
	})
	return activated, err
}

// Close moves a due active auction out of bidding. With a leading bid it
// lands in sold with the winner assigned; without one it lands in ended.
// Re-running it on an already-closed auction is a no-op.
func (m *StateMachine) Close(ctx context.Context, auctionID string) (bool, error) {
	closed := false
	err := retryOnConflict(m.retries, func() error {
		closed = false
		a, err := m.auctions.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.IsDeleted {
			return fmt.Errorf("close auction %s: %w", auctionID, domain.ErrAuctionNotFound)
		}
		if a.Status != domain.AuctionActive {
			return nil
		}
		now := time.Now()
		if now.Before(a.EndTime) {
			return nil
		}

		expected := a.Version
		winnerID := ""
		if a.HasBids() {
			bid, err := m.bids.GetBid(ctx, a.HighestBidID)
			if err != nil {
				return fmt.Errorf("close auction %s: resolve winning bid: %w", auctionID, err)
			}
			winnerID = bid.BidderID
			a.Status = domain.AuctionSold
			a.WinnerID = winnerID
		} else {
			a.Status = domain.AuctionEnded
		}
		a.UpdatedAt = now
		if err := m.auctions.UpdateAuction(ctx, a, expected); err != nil {
			return err
		}
		closed = true

		m.emit(ctx, &domain.Event{
			Type:      domain.EventAuctionEnded,
			AuctionID: auctionID,
			WinnerID:  winnerID,
			Amount:    a.CurrentPrice,
			Timestamp: now,
		})
		m.log.Info("Auction closed", "auction_id", auctionID, "status", a.Status.String(), "winner_id", winnerID)
		return nil
	})
	return closed, err
}

// Cancel is legal from upcoming and active only; once an auction has
// ended its outcome stands.
func (m *StateMachine) Cancel(ctx context.Context, auctionID, actorID string) error {
	return retryOnConflict(m.retries, func() error {
		a, err := m.auctions.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.IsDeleted {
			return fmt.Errorf("cancel auction %s: %w", auctionID, domain.ErrAuctionNotFound)
		}
		if a.Status == domain.AuctionCancelled {
			return nil
		}
		if !CanTransition(a.Status, domain.AuctionCancelled) {
			return &domain.InvalidStateError{AuctionID: auctionID, Status: a.Status, Action: "cancel"}
		}

		expected := a.Version
		a.Status = domain.AuctionCancelled
		a.UpdatedAt = time.Now()
		if err := m.auctions.UpdateAuction(ctx, a, expected); err != nil {
			return err
		}
		m.log.Info("Auction cancelled", "auction_id", auctionID, "actor_id", actorID)
		return nil
	})
}

// Complete moves sold → completed once both settlement sides confirmed.
func (m *StateMachine) Complete(ctx context.Context, auctionID string) error {
	return retryOnConflict(m.retries, func() error {
		a, err := m.auctions.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.IsDeleted {
			return fmt.Errorf("complete auction %s: %w", auctionID, domain.ErrAuctionNotFound)
		}
		if a.Status == domain.AuctionCompleted {
			return nil
		}
		if !CanTransition(a.Status, domain.AuctionCompleted) {
			return &domain.InvalidStateError{AuctionID: auctionID, Status: a.Status, Action: "complete"}
		}

		now := time.Now()
		expected := a.Version
		a.Status = domain.AuctionCompleted
		a.UpdatedAt = now
		if err := m.auctions.UpdateAuction(ctx, a, expected); err != nil {
			return err
		}

		m.emit(ctx, &domain.Event{
			Type:      domain.EventAuctionCompleted,
			AuctionID: auctionID,
			WinnerID:  a.WinnerID,
			Amount:    a.CurrentPrice,
			Timestamp: now,
		})
		m.log.Info("Auction completed", "auction_id", auctionID)
		return nil
	})
}

// SoftDeleteAuction is the cascade hook invoked by the user-management
// collaborator when a seller is removed.
func (m *StateMachine) SoftDeleteAuction(ctx context.Context, auctionID, actorID string) error {
	return retryOnConflict(m.retries, func() error {
		a, err := m.auctions.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.IsDeleted {
			return nil
		}

		now := time.Now()
		expected := a.Version
		a.IsDeleted = true
		a.DeletedAt = &now
		a.DeletedByID = actorID
		a.UpdatedAt = now
		if err := m.auctions.UpdateAuction(ctx, a, expected); err != nil {
			return err
		}
		m.log.Info("Auction soft-deleted", "auction_id", auctionID, "actor_id", actorID)
		return nil
	})
}

func (m *StateMachine) emit(ctx context.Context, event *domain.Event) {
	if err := m.events.Publish(ctx, event); err != nil {
		m.log.Error("Failed to publish event", "type", event.Type, "auction_id", event.AuctionID, "error", err)
	}
}
