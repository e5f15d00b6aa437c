package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auction-engine/internal/domain"
)

// Store is a concurrency-safe in-memory implementation of the versioned
// stores. It backs tests and single-node deployments; the version-check
// discipline is identical to the MySQL implementation.
type Store struct {
	mu       sync.RWMutex
	auctions map[string]*domain.Auction
	bids     map[string]*domain.Bid
	users    map[string]*domain.User
}

func NewStore() *Store {
	return &Store{
		auctions: make(map[string]*domain.Auction),
		bids:     make(map[string]*domain.Bid),
		users:    make(map[string]*domain.User),
	}
}

func cloneAuction(a *domain.Auction) *domain.Auction {
	c := *a
	if a.DeletedAt != nil {
		t := *a.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

func cloneBid(b *domain.Bid) *domain.Bid {
	c := *b
	if b.OutbidAt != nil {
		t := *b.OutbidAt
		c.OutbidAt = &t
	}
	if b.DeletedAt != nil {
		t := *b.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

func (s *Store) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auctions[auction.ID]; ok {
		return fmt.Errorf("create auction %s: already exists", auction.ID)
	}
	if auction.Version == 0 {
		auction.Version = 1
	}
	s.auctions[auction.ID] = cloneAuction(auction)
	return nil
}

func (s *Store) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("get auction %s: %w", auctionID, domain.ErrAuctionNotFound)
	}
	return cloneAuction(a), nil
}

func (s *Store) UpdateAuction(ctx context.Context, auction *domain.Auction, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateAuctionLocked(auction, expectedVersion)
}

func (s *Store) updateAuctionLocked(auction *domain.Auction, expectedVersion int64) error {
	stored, ok := s.auctions[auction.ID]
	if !ok {
		return fmt.Errorf("update auction %s: %w", auction.ID, domain.ErrAuctionNotFound)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("update auction %s: stored version %d, expected %d: %w",
			auction.ID, stored.Version, expectedVersion, domain.ErrVersionConflict)
	}
	auction.Version = expectedVersion + 1
	s.auctions[auction.ID] = cloneAuction(auction)
	return nil
}

func (s *Store) ListDueAuctions(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*domain.Auction
	for _, a := range s.auctions {
		if a.IsDeleted {
			continue
		}
		switch a.Status {
		case domain.AuctionUpcoming:
			if !now.Before(a.StartTime) {
				due = append(due, cloneAuction(a))
			}
		case domain.AuctionActive:
			if !now.Before(a.EndTime) {
				due = append(due, cloneAuction(a))
			}
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

func (s *Store) GetBid(ctx context.Context, bidID string) (*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bids[bidID]
	if !ok {
		return nil, fmt.Errorf("get bid %s: %w", bidID, domain.ErrBidNotFound)
	}
	return cloneBid(b), nil
}

func (s *Store) ListAuctionBids(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bids []*domain.Bid
	for _, b := range s.bids {
		if b.AuctionID == auctionID {
			bids = append(bids, cloneBid(b))
		}
	}
	sortBids(bids)
	return bids, nil
}

func (s *Store) ListBidderBids(ctx context.Context, bidderID string) ([]*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bids []*domain.Bid
	for _, b := range s.bids {
		if b.BidderID == bidderID {
			bids = append(bids, cloneBid(b))
		}
	}
	sortBids(bids)
	return bids, nil
}

func sortBids(bids []*domain.Bid) {
	sort.Slice(bids, func(i, j int) bool {
		if bids[i].CreatedAt.Equal(bids[j].CreatedAt) {
			return bids[i].ID < bids[j].ID
		}
		return bids[i].CreatedAt.Before(bids[j].CreatedAt)
	})
}

func (s *Store) UpdateBid(ctx context.Context, bid *domain.Bid, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateBidLocked(bid, expectedVersion)
}

func (s *Store) updateBidLocked(bid *domain.Bid, expectedVersion int64) error {
	stored, ok := s.bids[bid.ID]
	if !ok {
		return fmt.Errorf("update bid %s: %w", bid.ID, domain.ErrBidNotFound)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("update bid %s: stored version %d, expected %d: %w",
			bid.ID, stored.Version, expectedVersion, domain.ErrVersionConflict)
	}
	bid.Version = expectedVersion + 1
	s.bids[bid.ID] = cloneBid(bid)
	return nil
}

// CommitBid applies the new bid, the outbid mark and the auction update
// under one lock section, mirroring the MySQL transaction.
func (s *Store) CommitBid(ctx context.Context, commit *domain.BidCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.auctions[commit.Auction.ID]
	if !ok {
		return fmt.Errorf("commit bid: auction %s: %w", commit.Auction.ID, domain.ErrAuctionNotFound)
	}
	if stored.Version != commit.AuctionExpectedVersion {
		return fmt.Errorf("commit bid: auction %s: stored version %d, expected %d: %w",
			commit.Auction.ID, stored.Version, commit.AuctionExpectedVersion, domain.ErrVersionConflict)
	}
	if commit.Outbid != nil {
		storedBid, ok := s.bids[commit.Outbid.ID]
		if !ok {
			return fmt.Errorf("commit bid: bid %s: %w", commit.Outbid.ID, domain.ErrBidNotFound)
		}
		if storedBid.Version != commit.OutbidExpectedVersion {
			return fmt.Errorf("commit bid: bid %s: stored version %d, expected %d: %w",
				commit.Outbid.ID, storedBid.Version, commit.OutbidExpectedVersion, domain.ErrVersionConflict)
		}
	}

	if commit.NewBid.Version == 0 {
		commit.NewBid.Version = 1
	}
	s.bids[commit.NewBid.ID] = cloneBid(commit.NewBid)

	if commit.Outbid != nil {
		commit.Outbid.Version = commit.OutbidExpectedVersion + 1
		s.bids[commit.Outbid.ID] = cloneBid(commit.Outbid)
	}

	commit.Auction.Version = commit.AuctionExpectedVersion + 1
	s.auctions[commit.Auction.ID] = cloneAuction(commit.Auction)
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("get user %s: %w", userID, domain.ErrUserNotFound)
	}
	c := *u
	return &c, nil
}

// PutUser seeds or replaces a referenced user record.
func (s *Store) PutUser(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *user
	s.users[user.ID] = &c
}
