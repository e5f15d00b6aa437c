package services

import (
	"context"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// FanoutEmitter delivers each domain event to every registered sink.
// Delivery is at-least-once from the engine's side: a failing sink is
// logged and skipped so it can never abort the mutation that produced
// the event.
type FanoutEmitter struct {
	sinks []domain.EventPublisher
	log   logger.Logger
}

func NewFanoutEmitter(log logger.Logger, sinks ...domain.EventPublisher) *FanoutEmitter {
	return &FanoutEmitter{
		sinks: sinks,
		log:   log,
	}
}

func (e *FanoutEmitter) AddSink(sink domain.EventPublisher) {
	e.sinks = append(e.sinks, sink)
}

func (e *FanoutEmitter) Publish(ctx context.Context, event *domain.Event) error {
	for _, sink := range e.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			e.log.Error("Event sink failed", "type", event.Type, "auction_id", event.AuctionID, "error", err)
		}
	}
	return nil
}
