package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/memory"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event *domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	copied := *event
	p.events = append(p.events, &copied)
	return nil
}

func (p *recordingPublisher) byType(eventType domain.EventType) []*domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []*domain.Event
	for _, e := range p.events {
		if e.Type == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type engineFixture struct {
	store      *memory.Store
	events     *recordingPublisher
	machine    *services.StateMachine
	ledger     *services.BidLedger
	settlement *services.SettlementTracker
}

func newEngineFixture(t *testing.T, policy services.AntiSnipePolicy) *engineFixture {
	t.Helper()

	store := memory.NewStore()
	events := &recordingPublisher{}
	log := logger.NewNop()

	machine := services.NewStateMachine(store, store, events, log)
	return &engineFixture{
		store:      store,
		events:     events,
		machine:    machine,
		ledger:     services.NewBidLedger(store, store, store, machine, events, policy, log),
		settlement: services.NewSettlementTracker(store, machine, log),
	}
}

func (f *engineFixture) seedUser(id string) {
	f.store.PutUser(&domain.User{ID: id, Role: "buyer"})
}

type auctionSeed struct {
	sellerID      string
	startingPrice int64
	bidIncrement  int64
	startsIn      time.Duration
	endsIn        time.Duration
	status        domain.AuctionStatus
}

func (f *engineFixture) seedAuction(t *testing.T, seed auctionSeed) *domain.Auction {
	t.Helper()

	if seed.sellerID == "" {
		seed.sellerID = "seller-1"
	}
	f.seedUser(seed.sellerID)

	now := time.Now()
	auction := &domain.Auction{
		ID:            utils.GenerateID("auction"),
		SellerID:      seed.sellerID,
		Title:         "vintage synthesizer",
		StartingPrice: decimal.NewFromInt(seed.startingPrice),
		CurrentPrice:  decimal.NewFromInt(seed.startingPrice),
		BidIncrement:  decimal.NewFromInt(seed.bidIncrement),
		StartTime:     now.Add(seed.startsIn),
		EndTime:       now.Add(seed.endsIn),
		Status:        seed.status,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.store.CreateAuction(context.Background(), auction))
	return auction
}

func (f *engineFixture) activeAuction(t *testing.T, startingPrice int64, endsIn time.Duration) *domain.Auction {
	t.Helper()
	return f.seedAuction(t, auctionSeed{
		startingPrice: startingPrice,
		startsIn:      -time.Hour,
		endsIn:        endsIn,
		status:        domain.AuctionActive,
	})
}

func (f *engineFixture) getAuction(t *testing.T, id string) *domain.Auction {
	t.Helper()
	a, err := f.store.GetAuction(context.Background(), id)
	require.NoError(t, err)
	return a
}

func (f *engineFixture) getBid(t *testing.T, id string) *domain.Bid {
	t.Helper()
	b, err := f.store.GetBid(context.Background(), id)
	require.NoError(t, err)
	return b
}
