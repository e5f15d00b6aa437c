package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/observability"
	"auction-engine/pkg/logger"

	"github.com/robfig/cron/v3"
)

// SweepResult reports one sweep pass for observability.
type SweepResult struct {
	Processed int `json:"processed"`
	Errored   int `json:"errored"`
}

// ClosingSweeper periodically finds auctions whose time boundary has
// passed and drives them through the state machine. It is driven by an
// external ticker (cron) but RunClosingSweep is safe to invoke on any
// interval or manually; re-running on already-transitioned auctions is a
// no-op.
type ClosingSweeper struct {
	auctions   domain.AuctionStore
	machine    *StateMachine
	leader     domain.LeaderElection
	instanceID string
	interval   time.Duration
	cron       *cron.Cron
	inFlight   int32
	log        logger.Logger
}

func NewClosingSweeper(
	auctions domain.AuctionStore,
	machine *StateMachine,
	leader domain.LeaderElection,
	instanceID string,
	interval time.Duration,
	log logger.Logger,
) *ClosingSweeper {
	return &ClosingSweeper{
		auctions:   auctions,
		machine:    machine,
		leader:     leader,
		instanceID: instanceID,
		interval:   interval,
		cron:       cron.New(cron.WithSeconds()),
		log:        log,
	}
}

func (s *ClosingSweeper) Start(ctx context.Context) error {
	s.log.Info("Starting closing sweeper", "interval", s.interval.String())

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.RunClosingSweep(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *ClosingSweeper) Stop() error {
	s.log.Info("Stopping closing sweeper")
	s.cron.Stop()
	return nil
}

// RunClosingSweep executes one sweep pass. Passes never overlap: a tick
// that fires while the previous pass is still running is skipped. One
// auction's failure is counted and logged, never propagated, so the rest
// of the batch still gets processed; the errored auction is retried on
// the next cycle.
func (s *ClosingSweeper) RunClosingSweep(ctx context.Context) SweepResult {
	if !atomic.CompareAndSwapInt32(&s.inFlight, 0, 1) {
		s.log.Warn("Sweep still in flight, skipping tick")
		return SweepResult{}
	}
	defer atomic.StoreInt32(&s.inFlight, 0)

	if s.leader != nil {
		isLeader, err := s.leader.IsLeader(ctx, s.instanceID)
		if err != nil {
			s.log.Error("Leadership check failed, skipping sweep", "error", err)
			return SweepResult{Errored: 1}
		}
		if !isLeader {
			return SweepResult{}
		}
	}

	observability.SweepRuns.Inc()

	due, err := s.auctions.ListDueAuctions(ctx, time.Now())
	if err != nil {
		s.log.Error("Failed to list due auctions", "error", err)
		observability.SweepErrors.Inc()
		return SweepResult{Errored: 1}
	}

	var result SweepResult
	for _, a := range due {
		transitioned, err := s.sweepOne(ctx, a)
		if err != nil {
			s.log.Error("Sweep failed for auction, will retry next cycle",
				"auction_id", a.ID, "status", a.Status.String(), "error", err)
			result.Errored++
			observability.SweepErrors.Inc()
			continue
		}
		if transitioned {
			result.Processed++
			observability.SweepProcessed.Inc()
		}
	}

	if result.Processed > 0 || result.Errored > 0 {
		s.log.Info("Sweep finished", "processed", result.Processed, "errored", result.Errored)
	}
	return result
}

// sweepOne drives one due auction and reports whether a transition
// actually happened; an auction another actor already moved does not
// count as processed.
func (s *ClosingSweeper) sweepOne(ctx context.Context, a *domain.Auction) (bool, error) {
	switch a.Status {
	case domain.AuctionUpcoming:
		activated, err := s.machine.Activate(ctx, a.ID)
		if err != nil {
			return false, err
		}
		// An auction whose whole window elapsed unseen closes in the
		// same pass.
		if !time.Now().Before(a.EndTime) {
			closed, err := s.machine.Close(ctx, a.ID)
			return activated || closed, err
		}
		return activated, nil
	case domain.AuctionActive:
		return s.machine.Close(ctx, a.ID)
	default:
		// Already transitioned since the listing query; nothing to do.
		return false, nil
	}
}
