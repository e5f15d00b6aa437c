package services_test

import (
	"context"
	"testing"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/memory"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCreateAuction(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	listings := services.NewListingService(store, store, logger.NewNop())
	ctx := context.Background()
	now := time.Now()

	valid := services.CreateAuctionParams{
		SellerID:      "seller-1",
		Title:         "vintage synthesizer",
		StartingPrice: decimal.NewFromInt(100),
		BidIncrement:  decimal.NewFromInt(10),
		StartTime:     now.Add(time.Hour),
		EndTime:       now.Add(2 * time.Hour),
	}

	auction, err := listings.CreateAuction(ctx, valid)
	require.NoError(t, err)
	require.Equal(t, domain.AuctionUpcoming, auction.Status)
	require.True(t, auction.CurrentPrice.Equal(valid.StartingPrice))
	require.Equal(t, int64(1), auction.Version)
	require.NotEmpty(t, auction.ID)

	tests := []struct {
		name   string
		mutate func(p *services.CreateAuctionParams)
	}{
		{"missing seller", func(p *services.CreateAuctionParams) { p.SellerID = "" }},
		{"negative starting price", func(p *services.CreateAuctionParams) { p.StartingPrice = decimal.NewFromInt(-1) }},
		{"negative increment", func(p *services.CreateAuctionParams) { p.BidIncrement = decimal.NewFromInt(-1) }},
		{"end before start", func(p *services.CreateAuctionParams) { p.EndTime = p.StartTime.Add(-time.Minute) }},
		{"end equals start", func(p *services.CreateAuctionParams) { p.EndTime = p.StartTime }},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			params := valid
			tc.mutate(&params)
			_, err := listings.CreateAuction(ctx, params)
			require.Error(t, err)
		})
	}
}

func TestGetAuctionHidesDeleted(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, services.AntiSnipePolicy{})
	store := f.store
	listings := services.NewListingService(store, store, logger.NewNop())
	auction := f.activeAuction(t, 100, time.Hour)
	ctx := context.Background()

	got, err := listings.GetAuction(ctx, auction.ID)
	require.NoError(t, err)
	require.Equal(t, auction.ID, got.ID)

	require.NoError(t, f.machine.SoftDeleteAuction(ctx, auction.ID, "admin-1"))

	_, err = listings.GetAuction(ctx, auction.ID)
	require.ErrorIs(t, err, domain.ErrAuctionNotFound)
}

func TestGetAuctionBidsFiltersDeleted(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, services.AntiSnipePolicy{})
	listings := services.NewListingService(f.store, f.store, logger.NewNop())
	auction := f.activeAuction(t, 100, time.Hour)
	f.seedUser("buyer-a")
	f.seedUser("buyer-b")
	ctx := context.Background()

	kept, err := f.ledger.PlaceBid(ctx, auction.ID, "buyer-a", decimal.NewFromInt(150))
	require.NoError(t, err)
	_, err = f.ledger.PlaceBid(ctx, auction.ID, "buyer-b", decimal.NewFromInt(200))
	require.NoError(t, err)

	require.NoError(t, f.ledger.RemoveBidderBids(ctx, "buyer-b", "admin-1"))

	bids, err := listings.GetAuctionBids(ctx, auction.ID)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	require.Equal(t, kept.ID, bids[0].ID)
}
