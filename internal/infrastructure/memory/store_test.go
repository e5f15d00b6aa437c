package memory_test

import (
	"context"
	"testing"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func seedAuction(t *testing.T, store *memory.Store, id string, status domain.AuctionStatus, start, end time.Time) *domain.Auction {
	t.Helper()
	a := &domain.Auction{
		ID:            id,
		SellerID:      "seller-1",
		StartingPrice: decimal.NewFromInt(100),
		CurrentPrice:  decimal.NewFromInt(100),
		StartTime:     start,
		EndTime:       end,
		Status:        status,
		Version:       1,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, store.CreateAuction(context.Background(), a))
	return a
}

func TestUpdateAuctionVersionCheck(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	ctx := context.Background()
	now := time.Now()
	a := seedAuction(t, store, "auction-1", domain.AuctionActive, now.Add(-time.Hour), now.Add(time.Hour))

	a.CurrentPrice = decimal.NewFromInt(150)
	require.NoError(t, store.UpdateAuction(ctx, a, 1))
	require.Equal(t, int64(2), a.Version)

	// A writer holding the old version must fail without changing the row.
	stale := &domain.Auction{ID: "auction-1", CurrentPrice: decimal.NewFromInt(999)}
	err := store.UpdateAuction(ctx, stale, 1)
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	got, err := store.GetAuction(ctx, "auction-1")
	require.NoError(t, err)
	require.True(t, got.CurrentPrice.Equal(decimal.NewFromInt(150)))
	require.Equal(t, int64(2), got.Version)
}

func TestGetAuctionReturnsCopies(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	ctx := context.Background()
	now := time.Now()
	seedAuction(t, store, "auction-1", domain.AuctionActive, now.Add(-time.Hour), now.Add(time.Hour))

	first, err := store.GetAuction(ctx, "auction-1")
	require.NoError(t, err)
	first.CurrentPrice = decimal.NewFromInt(999)
	first.Status = domain.AuctionCancelled

	second, err := store.GetAuction(ctx, "auction-1")
	require.NoError(t, err)
	require.True(t, second.CurrentPrice.Equal(decimal.NewFromInt(100)))
	require.Equal(t, domain.AuctionActive, second.Status)
}

func TestCommitBidIsAtomic(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	ctx := context.Background()
	now := time.Now()
	a := seedAuction(t, store, "auction-1", domain.AuctionActive, now.Add(-time.Hour), now.Add(time.Hour))

	// First bid commits under the version the caller read.
	firstBid := &domain.Bid{
		ID:        "bid-1",
		AuctionID: a.ID,
		BidderID:  "buyer-a",
		Amount:    decimal.NewFromInt(150),
		Version:   1,
		CreatedAt: now,
	}
	a.CurrentPrice = firstBid.Amount
	a.HighestBidID = firstBid.ID
	require.NoError(t, store.CommitBid(ctx, &domain.BidCommit{
		Auction:                a,
		AuctionExpectedVersion: 1,
		NewBid:                 firstBid,
	}))
	require.Equal(t, int64(2), a.Version)

	// A commit built from a stale auction read applies nothing.
	staleAuction, err := store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	staleAuction.CurrentPrice = decimal.NewFromInt(200)
	err = store.CommitBid(ctx, &domain.BidCommit{
		Auction:                staleAuction,
		AuctionExpectedVersion: 1,
		NewBid:                 &domain.Bid{ID: "bid-2", AuctionID: a.ID, BidderID: "buyer-b", Amount: decimal.NewFromInt(200)},
	})
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	_, err = store.GetBid(ctx, "bid-2")
	require.ErrorIs(t, err, domain.ErrBidNotFound)
	got, err := store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, got.CurrentPrice.Equal(decimal.NewFromInt(150)))

	// A fresh read commits and marks the superseded bid in the same unit.
	fresh, err := store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	outbid, err := store.GetBid(ctx, "bid-1")
	require.NoError(t, err)
	outbidAt := time.Now()
	outbid.IsOutbid = true
	outbid.OutbidAt = &outbidAt

	secondBid := &domain.Bid{
		ID:        "bid-2",
		AuctionID: a.ID,
		BidderID:  "buyer-b",
		Amount:    decimal.NewFromInt(200),
		CreatedAt: now.Add(time.Second),
	}
	fresh.CurrentPrice = secondBid.Amount
	fresh.HighestBidID = secondBid.ID
	require.NoError(t, store.CommitBid(ctx, &domain.BidCommit{
		Auction:                fresh,
		AuctionExpectedVersion: 2,
		NewBid:                 secondBid,
		Outbid:                 outbid,
		OutbidExpectedVersion:  1,
	}))

	got, err = store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), got.Version)
	require.Equal(t, "bid-2", got.HighestBidID)

	markedBid, err := store.GetBid(ctx, "bid-1")
	require.NoError(t, err)
	require.True(t, markedBid.IsOutbid)
	require.Equal(t, int64(2), markedBid.Version)
}

func TestListDueAuctions(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	ctx := context.Background()
	now := time.Now()

	seedAuction(t, store, "auction-due-upcoming", domain.AuctionUpcoming, now.Add(-time.Minute), now.Add(time.Hour))
	seedAuction(t, store, "auction-future", domain.AuctionUpcoming, now.Add(time.Hour), now.Add(2*time.Hour))
	seedAuction(t, store, "auction-expired-active", domain.AuctionActive, now.Add(-2*time.Hour), now.Add(-time.Minute))
	seedAuction(t, store, "auction-running", domain.AuctionActive, now.Add(-time.Hour), now.Add(time.Hour))
	seedAuction(t, store, "auction-closed", domain.AuctionSold, now.Add(-3*time.Hour), now.Add(-2*time.Hour))

	deleted := seedAuction(t, store, "auction-deleted", domain.AuctionActive, now.Add(-2*time.Hour), now.Add(-time.Minute))
	deleted.IsDeleted = true
	require.NoError(t, store.UpdateAuction(ctx, deleted, 1))

	due, err := store.ListDueAuctions(ctx, now)
	require.NoError(t, err)

	ids := make([]string, 0, len(due))
	for _, a := range due {
		ids = append(ids, a.ID)
	}
	require.Equal(t, []string{"auction-due-upcoming", "auction-expired-active"}, ids)
}

func TestListAuctionBidsOrdering(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	ctx := context.Background()
	now := time.Now()
	a := seedAuction(t, store, "auction-1", domain.AuctionActive, now.Add(-time.Hour), now.Add(time.Hour))

	amounts := []int64{150, 200, 250}
	expected := int64(1)
	for i, amount := range amounts {
		bid := &domain.Bid{
			ID:        []string{"bid-c", "bid-a", "bid-b"}[i],
			AuctionID: a.ID,
			BidderID:  "buyer-a",
			Amount:    decimal.NewFromInt(amount),
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}
		a.CurrentPrice = bid.Amount
		a.HighestBidID = bid.ID
		require.NoError(t, store.CommitBid(ctx, &domain.BidCommit{
			Auction:                a,
			AuctionExpectedVersion: expected,
			NewBid:                 bid,
		}))
		expected++
	}

	bids, err := store.ListAuctionBids(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	require.Equal(t, "bid-c", bids[0].ID)
	require.Equal(t, "bid-a", bids[1].ID)
	require.Equal(t, "bid-b", bids[2].ID)
}
