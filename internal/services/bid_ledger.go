package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/observability"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"

	"github.com/shopspring/decimal"
)

// AntiSnipePolicy guarantees a minimum bidding window once the first bid
// lands. The trigger is bid count (no leading bid yet), not wall-clock
// history, and it fires at most once per auction.
type AntiSnipePolicy struct {
	Enabled bool
	Window  time.Duration
}

// BidLedger validates and commits bids for an auction and cascades the
// outbid mark onto the superseded bid. All writes go through the
// versioned stores; a conflicted commit is re-validated from a fresh read.
type BidLedger struct {
	auctions  domain.AuctionStore
	bids      domain.BidStore
	users     domain.UserStore
	machine   *StateMachine
	events    domain.EventPublisher
	antiSnipe AntiSnipePolicy
	log       logger.Logger
	retries   int
}

func NewBidLedger(
	auctions domain.AuctionStore,
	bids domain.BidStore,
	users domain.UserStore,
	machine *StateMachine,
	events domain.EventPublisher,
	antiSnipe AntiSnipePolicy,
	log logger.Logger,
) *BidLedger {
	return &BidLedger{
		auctions:  auctions,
		bids:      bids,
		users:     users,
		machine:   machine,
		events:    events,
		antiSnipe: antiSnipe,
		log:       log,
		retries:   defaultRetryBudget,
	}
}

// SetRetryBudget overrides the bounded retry count for version conflicts.
func (l *BidLedger) SetRetryBudget(attempts int) {
	if attempts > 0 {
		l.retries = attempts
	}
}

func (l *BidLedger) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*domain.Bid, error) {
	var bid *domain.Bid
	var err error
	for attempt := 0; attempt < l.retries; attempt++ {
		bid, err = l.tryPlaceBid(ctx, auctionID, bidderID, amount)
		if err != nil && errors.Is(err, domain.ErrVersionConflict) {
			l.log.Debug("Bid commit conflicted, retrying", "auction_id", auctionID, "attempt", attempt+1)
			continue
		}
		break
	}
	if err != nil && errors.Is(err, domain.ErrVersionConflict) {
		err = fmt.Errorf("place bid on auction %s: %w", auctionID, domain.ErrConcurrentModification)
	}
	if err != nil {
		observability.BidsRejected.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}

	observability.BidsAccepted.Inc()
	l.log.Info("Bid accepted", "auction_id", auctionID, "bidder_id", bidderID, "amount", amount.String())
	return bid, nil
}

// tryPlaceBid runs the full precondition-check-and-commit sequence once.
// The precondition order is fixed: existence, status/window, self-bid,
// amount.
func (l *BidLedger) tryPlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*domain.Bid, error) {
	a, err := l.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if a.IsDeleted {
		return nil, fmt.Errorf("auction %s: %w", auctionID, domain.ErrAuctionNotFound)
	}

	now := time.Now()

	// Activation is lazy: any path that reads a due upcoming auction
	// promotes it before validating.
	if a.Status == domain.AuctionUpcoming && !now.Before(a.StartTime) {
		if _, err := l.machine.Activate(ctx, auctionID); err != nil {
			return nil, err
		}
		if a, err = l.auctions.GetAuction(ctx, auctionID); err != nil {
			return nil, err
		}
	}

	switch a.Status {
	case domain.AuctionActive:
	case domain.AuctionUpcoming, domain.AuctionCancelled:
		return nil, fmt.Errorf("auction %s is %s: %w", auctionID, a.Status, domain.ErrAuctionNotActive)
	default:
		return nil, fmt.Errorf("auction %s is %s: %w", auctionID, a.Status, domain.ErrAuctionEnded)
	}

	if !now.Before(a.EndTime) {
		// The sweep may not have caught this auction yet; close it now
		// rather than leaving it biddable.
		if _, err := l.machine.Close(ctx, auctionID); err != nil {
			l.log.Warn("Eager close on expired auction failed", "auction_id", auctionID, "error", err)
		}
		return nil, fmt.Errorf("auction %s closed at %s: %w", auctionID, a.EndTime.Format(time.RFC3339), domain.ErrAuctionEnded)
	}

	bidder, err := l.users.GetUser(ctx, bidderID)
	if err != nil {
		return nil, err
	}
	if bidder.IsDeleted {
		return nil, fmt.Errorf("bidder %s: %w", bidderID, domain.ErrUserNotFound)
	}
	if bidderID == a.SellerID {
		return nil, fmt.Errorf("auction %s, bidder %s: %w", auctionID, bidderID, domain.ErrSelfBid)
	}

	if !a.AcceptsAmount(amount) {
		return nil, &domain.BidTooLowError{
			AuctionID:    auctionID,
			CurrentPrice: a.CurrentPrice,
			Minimum:      a.MinimumBid(),
		}
	}

	expected := a.Version
	firstBid := !a.HasBids()

	newBid := &domain.Bid{
		ID:        utils.GenerateID("bid"),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		Version:   1,
		CreatedAt: now,
	}

	var prev *domain.Bid
	var prevExpected int64
	if !firstBid {
		if prev, err = l.bids.GetBid(ctx, a.HighestBidID); err != nil {
			return nil, err
		}
		prevExpected = prev.Version
		outbidAt := now
		prev.IsOutbid = true
		prev.OutbidAt = &outbidAt
	}

	extended := false
	if firstBid && l.antiSnipe.Enabled {
		// One-time extension: never shortens a window that already runs
		// past it.
		if guaranteed := now.Add(l.antiSnipe.Window); guaranteed.After(a.EndTime) {
			a.EndTime = guaranteed
			extended = true
		}
	}

	a.CurrentPrice = amount
	a.HighestBidID = newBid.ID
	a.UpdatedAt = now

	commit := &domain.BidCommit{
		Auction:                a,
		AuctionExpectedVersion: expected,
		NewBid:                 newBid,
		Outbid:                 prev,
		OutbidExpectedVersion:  prevExpected,
	}
	if err := l.bids.CommitBid(ctx, commit); err != nil {
		return nil, err
	}

	l.emit(ctx, &domain.Event{
		Type:      domain.EventNewBid,
		AuctionID: auctionID,
		BidID:     newBid.ID,
		BidderID:  bidderID,
		Amount:    amount,
		Timestamp: now,
	})
	if prev != nil {
		l.emit(ctx, &domain.Event{
			Type:      domain.EventOutbid,
			AuctionID: auctionID,
			BidID:     prev.ID,
			BidderID:  prev.BidderID,
			Amount:    prev.Amount,
			Timestamp: now,
		})
	}
	if extended {
		endTime := a.EndTime
		l.emit(ctx, &domain.Event{
			Type:      domain.EventAuctionExtended,
			AuctionID: auctionID,
			EndTime:   &endTime,
			Timestamp: now,
		})
	}

	return newBid, nil
}

// RemoveBidderBids is the soft-delete cascade hook the user-management
// collaborator calls when a bidder is removed. Each surviving auction
// whose leading bid disappears has its price/leader view repaired from
// the remaining bids.
func (l *BidLedger) RemoveBidderBids(ctx context.Context, bidderID, actorID string) error {
	bids, err := l.bids.ListBidderBids(ctx, bidderID)
	if err != nil {
		return err
	}

	var firstErr error
	for _, b := range bids {
		if b.IsDeleted {
			continue
		}

		now := time.Now()
		expected := b.Version
		b.IsDeleted = true
		b.DeletedAt = &now
		b.DeletedByID = actorID
		if err := l.bids.UpdateBid(ctx, b, expected); err != nil {
			l.log.Error("Failed to soft-delete bid", "bid_id", b.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if err := l.repairLeader(ctx, b.AuctionID, b.ID); err != nil {
			l.log.Error("Failed to repair auction after bid removal", "auction_id", b.AuctionID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// repairLeader promotes the best remaining bid after removedBidID
// stopped counting, or resets the auction to its starting price.
func (l *BidLedger) repairLeader(ctx context.Context, auctionID, removedBidID string) error {
	return retryOnConflict(l.retries, func() error {
		a, err := l.auctions.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.IsDeleted {
			return nil
		}
		if a.HighestBidID != removedBidID {
			// The auction already points at a new leader, but a prior
			// attempt may have conflicted between the auction write and
			// the un-outbid write. Finish the flip instead of assuming it
			// landed.
			return l.clearOutbidMark(ctx, a.HighestBidID)
		}

		bids, err := l.bids.ListAuctionBids(ctx, auctionID)
		if err != nil {
			return err
		}

		var best *domain.Bid
		for _, b := range bids {
			if b.IsDeleted {
				continue
			}
			if best == nil || b.Amount.GreaterThan(best.Amount) {
				best = b
			}
		}

		now := time.Now()
		expected := a.Version
		if best == nil {
			a.CurrentPrice = a.StartingPrice
			a.HighestBidID = ""
		} else {
			a.CurrentPrice = best.Amount
			a.HighestBidID = best.ID
		}
		a.UpdatedAt = now
		if err := l.auctions.UpdateAuction(ctx, a, expected); err != nil {
			return err
		}

		if best != nil {
			return l.clearOutbidMark(ctx, best.ID)
		}
		return nil
	})
}

// clearOutbidMark restores a bid to leading status after it was promoted.
func (l *BidLedger) clearOutbidMark(ctx context.Context, bidID string) error {
	if bidID == "" {
		return nil
	}
	b, err := l.bids.GetBid(ctx, bidID)
	if err != nil {
		return err
	}
	if !b.IsOutbid || b.IsDeleted {
		return nil
	}
	expected := b.Version
	b.IsOutbid = false
	b.OutbidAt = nil
	return l.bids.UpdateBid(ctx, b, expected)
}

func (l *BidLedger) emit(ctx context.Context, event *domain.Event) {
	if err := l.events.Publish(ctx, event); err != nil {
		l.log.Error("Failed to publish event", "type", event.Type, "auction_id", event.AuctionID, "error", err)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrBidTooLow):
		return "bid_too_low"
	case errors.Is(err, domain.ErrSelfBid):
		return "self_bid"
	case errors.Is(err, domain.ErrAuctionEnded):
		return "auction_ended"
	case errors.Is(err, domain.ErrAuctionNotActive):
		return "auction_not_active"
	case errors.Is(err, domain.ErrAuctionNotFound):
		return "auction_not_found"
	case errors.Is(err, domain.ErrUserNotFound):
		return "bidder_not_found"
	case errors.Is(err, domain.ErrConcurrentModification):
		return "concurrent_modification"
	default:
		return "other"
	}
}
