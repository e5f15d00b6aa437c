package domain

import (
	"context"
	"time"
)

// Store interfaces. Every mutation is optimistic-concurrency controlled:
// updates take the version the caller read, write only if the stored
// version still matches, and bump the stored version by exactly one.
// A mismatch fails with ErrVersionConflict without writing anything.

type AuctionStore interface {
	CreateAuction(ctx context.Context, auction *Auction) error
	// GetAuction returns the row even when soft-deleted; callers decide
	// how a deleted auction is treated.
	GetAuction(ctx context.Context, auctionID string) (*Auction, error)
	// UpdateAuction persists auction if the stored version equals
	// expectedVersion. On success auction.Version is expectedVersion+1.
	UpdateAuction(ctx context.Context, auction *Auction, expectedVersion int64) error
	// ListDueAuctions returns non-deleted auctions whose time boundary has
	// passed: upcoming past StartTime, active past EndTime.
	ListDueAuctions(ctx context.Context, now time.Time) ([]*Auction, error)
}

// BidCommit is the unit a bid acceptance applies atomically: the new bid,
// the superseded bid's outbid mark, and the auction's new price/leader
// view land in one commit or not at all.
type BidCommit struct {
	Auction                *Auction
	AuctionExpectedVersion int64
	NewBid                 *Bid
	Outbid                 *Bid // previous leading bid, nil on a first bid
	OutbidExpectedVersion  int64
}

type BidStore interface {
	GetBid(ctx context.Context, bidID string) (*Bid, error)
	ListAuctionBids(ctx context.Context, auctionID string) ([]*Bid, error)
	ListBidderBids(ctx context.Context, bidderID string) ([]*Bid, error)
	UpdateBid(ctx context.Context, bid *Bid, expectedVersion int64) error
	// CommitBid applies the whole commit transactionally, guarded by the
	// auction's expected version.
	CommitBid(ctx context.Context, commit *BidCommit) error
}

type UserStore interface {
	GetUser(ctx context.Context, userID string) (*User, error)
}

// EventPublisher fans domain events out to the notification and
// real-time collaborators.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
}

// LeaderElection gates the closing sweep so only one instance runs it.
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	UserID() string
	AuctionID() string
}

type ConnectionManager interface {
	RegisterConnection(userID, auctionID string, conn WebSocketConnection) error
	UnregisterConnection(userID, auctionID string) error
	BroadcastToAuction(auctionID string, message interface{}) error
	NotifyUser(userID string, message interface{}) error
	CloseAndUnregisterConnections(auctionID string) error
}
