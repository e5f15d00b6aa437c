package services_test

import (
	"context"
	"testing"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeLeader struct {
	isLeader bool
}

func (l *fakeLeader) BecomeLeader(context.Context, string) (bool, error) { return l.isLeader, nil }
func (l *fakeLeader) IsLeader(context.Context, string) (bool, error)    { return l.isLeader, nil }
func (l *fakeLeader) ReleaseLeadership(context.Context, string) error   { return nil }

func newSweeper(f *engineFixture, leader domain.LeaderElection) *services.ClosingSweeper {
	return services.NewClosingSweeper(f.store, f.machine, leader, "test-instance", time.Minute, logger.NewNop())
}

// staleListStore serves a fixed due list, standing in for an auction that
// transitioned between the listing query and the per-auction pass.
type staleListStore struct {
	domain.AuctionStore
	due []*domain.Auction
}

func (s *staleListStore) ListDueAuctions(context.Context, time.Time) ([]*domain.Auction, error) {
	return s.due, nil
}

func TestRunClosingSweep(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, services.AntiSnipePolicy{})
	ctx := context.Background()

	dueUpcoming := f.seedAuction(t, auctionSeed{
		startingPrice: 100,
		startsIn:      -time.Minute,
		endsIn:        time.Hour,
		status:        domain.AuctionUpcoming,
	})
	elapsedUpcoming := f.seedAuction(t, auctionSeed{
		startingPrice: 100,
		startsIn:      -2 * time.Hour,
		endsIn:        -time.Hour,
		status:        domain.AuctionUpcoming,
	})
	expiredActive := f.activeAuction(t, 100, -time.Minute)
	f.seedUser("buyer-a")
	runningActive := f.activeAuction(t, 100, time.Hour)
	_, err := f.ledger.PlaceBid(ctx, runningActive.ID, "buyer-a", decimal.NewFromInt(150))
	require.NoError(t, err)

	contested := f.activeAuction(t, 100, time.Minute)
	_, err = f.ledger.PlaceBid(ctx, contested.ID, "buyer-a", decimal.NewFromInt(175))
	require.NoError(t, err)
	a := f.getAuction(t, contested.ID)
	expected := a.Version
	a.EndTime = time.Now().Add(-time.Second)
	require.NoError(t, f.store.UpdateAuction(ctx, a, expected))

	sweeper := newSweeper(f, nil)
	result := sweeper.RunClosingSweep(ctx)
	require.Equal(t, services.SweepResult{Processed: 4}, result)

	require.Equal(t, domain.AuctionActive, f.getAuction(t, dueUpcoming.ID).Status)
	require.Equal(t, domain.AuctionEnded, f.getAuction(t, elapsedUpcoming.ID).Status,
		"an auction whose whole window elapsed closes in one pass")
	require.Equal(t, domain.AuctionEnded, f.getAuction(t, expiredActive.ID).Status)
	require.Equal(t, domain.AuctionActive, f.getAuction(t, runningActive.ID).Status)

	sold := f.getAuction(t, contested.ID)
	require.Equal(t, domain.AuctionSold, sold.Status)
	require.Equal(t, "buyer-a", sold.WinnerID)
}

func TestRunClosingSweepIdempotent(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, services.AntiSnipePolicy{})
	f.activeAuction(t, 100, -time.Minute)
	ctx := context.Background()

	sweeper := newSweeper(f, nil)
	first := sweeper.RunClosingSweep(ctx)
	require.Equal(t, services.SweepResult{Processed: 1}, first)
	eventCount := f.events.count()

	second := sweeper.RunClosingSweep(ctx)
	require.Equal(t, services.SweepResult{}, second)
	require.Equal(t, eventCount, f.events.count(), "a repeated sweep must not re-emit events")
}

func TestRunClosingSweepOnlyCountsTransitions(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, services.AntiSnipePolicy{})
	auction := f.activeAuction(t, 100, -time.Minute)
	ctx := context.Background()

	// Snapshot the due row, then let another actor close the auction
	// before the sweep gets to it.
	stale := f.getAuction(t, auction.ID)
	closed, err := f.machine.Close(ctx, auction.ID)
	require.NoError(t, err)
	require.True(t, closed)

	store := &staleListStore{AuctionStore: f.store, due: []*domain.Auction{stale}}
	sweeper := services.NewClosingSweeper(store, f.machine, nil, "test-instance", time.Minute, logger.NewNop())

	result := sweeper.RunClosingSweep(ctx)
	require.Equal(t, services.SweepResult{}, result, "a no-op pass must not count as processed")
}

func TestRunClosingSweepIsolatesFailures(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, services.AntiSnipePolicy{})
	ctx := context.Background()

	broken := f.seedAuction(t, auctionSeed{
		startingPrice: 100,
		startsIn:      -2 * time.Hour,
		endsIn:        -time.Minute,
		status:        domain.AuctionActive,
	})
	// Point the leading bid at a row that does not exist so closing fails.
	a := f.getAuction(t, broken.ID)
	expected := a.Version
	a.HighestBidID = "bid-missing"
	require.NoError(t, f.store.UpdateAuction(ctx, a, expected))

	healthy := f.activeAuction(t, 100, -time.Minute)

	sweeper := newSweeper(f, nil)
	result := sweeper.RunClosingSweep(ctx)
	require.Equal(t, 1, result.Errored)
	require.Equal(t, 1, result.Processed, "one failure must not stall the batch")
	require.Equal(t, domain.AuctionEnded, f.getAuction(t, healthy.ID).Status)
	require.Equal(t, domain.AuctionActive, f.getAuction(t, broken.ID).Status)
}

func TestRunClosingSweepRequiresLeadership(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, services.AntiSnipePolicy{})
	due := f.activeAuction(t, 100, -time.Minute)
	ctx := context.Background()

	follower := newSweeper(f, &fakeLeader{isLeader: false})
	require.Equal(t, services.SweepResult{}, follower.RunClosingSweep(ctx))
	require.Equal(t, domain.AuctionActive, f.getAuction(t, due.ID).Status)

	leader := newSweeper(f, &fakeLeader{isLeader: true})
	require.Equal(t, services.SweepResult{Processed: 1}, leader.RunClosingSweep(ctx))
	require.Equal(t, domain.AuctionEnded, f.getAuction(t, due.ID).Status)
}
