package websocket

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// Broadcaster bridges the event stream onto live websocket connections.
// Outbid events additionally go straight to the superseded bidder.
type Broadcaster struct {
	connManager domain.ConnectionManager
	log         logger.Logger
}

func NewBroadcaster(connManager domain.ConnectionManager, log logger.Logger) *Broadcaster {
	return &Broadcaster{
		connManager: connManager,
		log:         log,
	}
}

func (b *Broadcaster) HandleEvent(event *domain.Event) error {
	if event.Type == domain.EventOutbid && event.BidderID != "" {
		if err := b.connManager.NotifyUser(event.BidderID, event); err != nil {
			b.log.Error("Failed to notify outbid user", "user_id", event.BidderID, "error", err)
		}
	}

	return b.connManager.BroadcastToAuction(event.AuctionID, event)
}
