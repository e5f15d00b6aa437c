package mysql

import (
	"testing"
	"time"

	"auction-engine/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAuctionUpdateArgsCarryEntityState(t *testing.T) {
	t.Parallel()

	updatedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	auction := &domain.Auction{
		ID:            "auction-1",
		CurrentPrice:  decimal.NewFromInt(150),
		BidIncrement:  decimal.NewFromInt(10),
		Status:        domain.AuctionActive,
		HighestBidID:  "bid-1",
		UpdatedAt:     updatedAt,
		StartingPrice: decimal.NewFromInt(100),
	}

	args := auctionUpdateArgs(auction, 3)
	require.Len(t, args, 19)

	// The persisted row must carry the caller's entity verbatim, the
	// timestamp included, with the conditional-write guard last.
	require.Equal(t, "150", args[0])
	require.Equal(t, updatedAt, args[len(args)-3])
	require.Equal(t, "auction-1", args[len(args)-2])
	require.Equal(t, int64(3), args[len(args)-1])
}
