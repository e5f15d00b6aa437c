package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventNewBid           EventType = "new_bid"
	EventOutbid           EventType = "outbid"
	EventAuctionEnded     EventType = "auction_ended"
	EventAuctionCompleted EventType = "auction_completed"
	EventAuctionExtended  EventType = "auction_extended"
)

// Event is the engine's boundary with the notification and real-time
// collaborators. Delivery is at-least-once; deduplication is theirs.
type Event struct {
	Type      EventType       `json:"type"`
	AuctionID string          `json:"auction_id"`
	BidID     string          `json:"bid_id,omitempty"`
	BidderID  string          `json:"bidder_id,omitempty"`
	WinnerID  string          `json:"winner_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	EndTime   *time.Time      `json:"end_time,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
