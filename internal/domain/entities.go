package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AuctionStatus int

const (
	AuctionUpcoming AuctionStatus = iota
	AuctionActive
	AuctionEnded
	AuctionSold
	AuctionCompleted
	AuctionCancelled
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionUpcoming:
		return "upcoming"
	case AuctionActive:
		return "active"
	case AuctionEnded:
		return "ended"
	case AuctionSold:
		return "sold"
	case AuctionCompleted:
		return "completed"
	case AuctionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Confirmation records one side of post-sale settlement.
type Confirmation struct {
	Done    bool
	ActorID string
	At      time.Time
}

type Auction struct {
	ID            string
	SellerID      string
	Title         string
	Description   string
	StartingPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
	BidIncrement  decimal.Decimal
	StartTime     time.Time
	EndTime       time.Time
	Status        AuctionStatus
	WinnerID      string
	HighestBidID  string
	Payment       Confirmation
	Delivery      Confirmation
	IsDeleted     bool
	DeletedAt     *time.Time
	DeletedByID   string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasBids reports whether the auction currently has a leading bid.
func (a *Auction) HasBids() bool {
	return a.HighestBidID != ""
}

// MinimumBid returns the lowest amount the next bid may carry. With an
// increment rule the next bid must reach CurrentPrice + BidIncrement;
// without one it only has to exceed CurrentPrice.
func (a *Auction) MinimumBid() decimal.Decimal {
	if a.BidIncrement.IsPositive() {
		return a.CurrentPrice.Add(a.BidIncrement)
	}
	return a.CurrentPrice
}

// AcceptsAmount reports whether amount beats the current price under the
// auction's increment rule.
func (a *Auction) AcceptsAmount(amount decimal.Decimal) bool {
	if a.BidIncrement.IsPositive() {
		return amount.GreaterThanOrEqual(a.CurrentPrice.Add(a.BidIncrement))
	}
	return amount.GreaterThan(a.CurrentPrice)
}

type Bid struct {
	ID          string
	AuctionID   string
	BidderID    string
	Amount      decimal.Decimal
	IsOutbid    bool
	OutbidAt    *time.Time
	IsDeleted   bool
	DeletedAt   *time.Time
	DeletedByID string
	Version     int64
	CreatedAt   time.Time
}

// User is referenced, not owned: the engine only reads enough of it to
// authorize bidding and exclude self-bids.
type User struct {
	ID        string
	Role      string
	IsDeleted bool
}
