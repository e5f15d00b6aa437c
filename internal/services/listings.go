package services

import (
	"context"
	"fmt"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"

	"github.com/shopspring/decimal"
)

// ListingService creates auction listings on behalf of the listing
// collaborator and serves read views over auctions and their bids.
type ListingService struct {
	auctions domain.AuctionStore
	bids     domain.BidStore
	log      logger.Logger
}

func NewListingService(auctions domain.AuctionStore, bids domain.BidStore, log logger.Logger) *ListingService {
	return &ListingService{
		auctions: auctions,
		bids:     bids,
		log:      log,
	}
}

type CreateAuctionParams struct {
	SellerID      string
	Title         string
	Description   string
	StartingPrice decimal.Decimal
	BidIncrement  decimal.Decimal
	StartTime     time.Time
	EndTime       time.Time
}

func (s *ListingService) CreateAuction(ctx context.Context, params CreateAuctionParams) (*domain.Auction, error) {
	if params.SellerID == "" {
		return nil, fmt.Errorf("create auction: missing seller id")
	}
	if params.StartingPrice.IsNegative() {
		return nil, fmt.Errorf("create auction: starting price %s is negative", params.StartingPrice)
	}
	if params.BidIncrement.IsNegative() {
		return nil, fmt.Errorf("create auction: bid increment %s is negative", params.BidIncrement)
	}
	if !params.EndTime.After(params.StartTime) {
		return nil, fmt.Errorf("create auction: end time must be after start time")
	}

	now := time.Now()
	auction := &domain.Auction{
		ID:            utils.GenerateID("auction"),
		SellerID:      params.SellerID,
		Title:         params.Title,
		Description:   params.Description,
		StartingPrice: params.StartingPrice,
		CurrentPrice:  params.StartingPrice,
		BidIncrement:  params.BidIncrement,
		StartTime:     params.StartTime,
		EndTime:       params.EndTime,
		Status:        domain.AuctionUpcoming,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.auctions.CreateAuction(ctx, auction); err != nil {
		return nil, err
	}

	s.log.Info("Auction created", "auction_id", auction.ID, "seller_id", auction.SellerID)
	return auction, nil
}

// GetAuction returns a non-deleted auction for read paths.
func (s *ListingService) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	a, err := s.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if a.IsDeleted {
		return nil, fmt.Errorf("auction %s: %w", auctionID, domain.ErrAuctionNotFound)
	}
	return a, nil
}

// GetAuctionBids returns the surviving bid history, oldest first.
func (s *ListingService) GetAuctionBids(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	if _, err := s.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}

	all, err := s.bids.ListAuctionBids(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	bids := make([]*domain.Bid, 0, len(all))
	for _, b := range all {
		if !b.IsDeleted {
			bids = append(bids, b)
		}
	}
	return bids, nil
}
