package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type AuctionHandler struct {
	listings   *services.ListingService
	ledger     *services.BidLedger
	machine    *services.StateMachine
	settlement *services.SettlementTracker
	sweeper    *services.ClosingSweeper
	log        logger.Logger
}

func NewAuctionHandler(
	listings *services.ListingService,
	ledger *services.BidLedger,
	machine *services.StateMachine,
	settlement *services.SettlementTracker,
	sweeper *services.ClosingSweeper,
	log logger.Logger,
) *AuctionHandler {
	return &AuctionHandler{
		listings:   listings,
		ledger:     ledger,
		machine:    machine,
		settlement: settlement,
		sweeper:    sweeper,
		log:        log,
	}
}

func (h *AuctionHandler) Register(g *echo.Group) {
	g.POST("/auctions", h.CreateAuction)
	g.GET("/auctions/:id", h.GetAuction)
	g.GET("/auctions/:id/bids", h.GetAuctionBids)
	g.POST("/auctions/:id/bids", h.PlaceBid)
	g.POST("/auctions/:id/cancel", h.CancelAuction)
	g.POST("/auctions/:id/confirm-payment", h.ConfirmPayment)
	g.POST("/auctions/:id/confirm-delivery", h.ConfirmDelivery)
	g.POST("/sweep", h.RunSweep)
}

type CreateAuctionRequest struct {
	SellerID      string          `json:"seller_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	BidIncrement  decimal.Decimal `json:"bid_increment"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
}

type AuctionResponse struct {
	AuctionID     string          `json:"auction_id"`
	SellerID      string          `json:"seller_id"`
	Title         string          `json:"title"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	BidIncrement  decimal.Decimal `json:"bid_increment"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
	Status        string          `json:"status"`
	WinnerID      string          `json:"winner_id,omitempty"`
	HighestBidID  string          `json:"highest_bid_id,omitempty"`
}

func toAuctionResponse(a *domain.Auction) AuctionResponse {
	return AuctionResponse{
		AuctionID:     a.ID,
		SellerID:      a.SellerID,
		Title:         a.Title,
		StartingPrice: a.StartingPrice,
		CurrentPrice:  a.CurrentPrice,
		BidIncrement:  a.BidIncrement,
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		Status:        a.Status.String(),
		WinnerID:      a.WinnerID,
		HighestBidID:  a.HighestBidID,
	}
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	var req CreateAuctionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	auction, err := h.listings.CreateAuction(c.Request().Context(), services.CreateAuctionParams{
		SellerID:      req.SellerID,
		Title:         req.Title,
		Description:   req.Description,
		StartingPrice: req.StartingPrice,
		BidIncrement:  req.BidIncrement,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
	})
	if err != nil {
		h.log.Error("Failed to create auction", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, toAuctionResponse(auction))
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auction, err := h.listings.GetAuction(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}

type BidResponse struct {
	BidID     string          `json:"bid_id"`
	AuctionID string          `json:"auction_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	IsOutbid  bool            `json:"is_outbid"`
	CreatedAt time.Time       `json:"created_at"`
}

func (h *AuctionHandler) GetAuctionBids(c echo.Context) error {
	bids, err := h.listings.GetAuctionBids(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.errorResponse(c, err)
	}

	resp := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, BidResponse{
			BidID:     b.ID,
			AuctionID: b.AuctionID,
			BidderID:  b.BidderID,
			Amount:    b.Amount,
			IsOutbid:  b.IsOutbid,
			CreatedAt: b.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

type PlaceBidRequest struct {
	BidderID string          `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
}

func (h *AuctionHandler) PlaceBid(c echo.Context) error {
	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	bid, err := h.ledger.PlaceBid(c.Request().Context(), c.Param("id"), req.BidderID, req.Amount)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusCreated, BidResponse{
		BidID:     bid.ID,
		AuctionID: bid.AuctionID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount,
		IsOutbid:  bid.IsOutbid,
		CreatedAt: bid.CreatedAt,
	})
}

type ActorRequest struct {
	ActorID string `json:"actor_id"`
}

func (h *AuctionHandler) CancelAuction(c echo.Context) error {
	var req ActorRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if err := h.machine.Cancel(c.Request().Context(), c.Param("id"), req.ActorID); err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *AuctionHandler) ConfirmPayment(c echo.Context) error {
	return h.confirm(c, h.settlement.ConfirmPayment)
}

func (h *AuctionHandler) ConfirmDelivery(c echo.Context) error {
	return h.confirm(c, h.settlement.ConfirmDelivery)
}

func (h *AuctionHandler) confirm(c echo.Context, fn func(ctx context.Context, auctionID, actorID string) (*domain.Auction, error)) error {
	var req ActorRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	auction, err := fn(c.Request().Context(), c.Param("id"), req.ActorID)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}

// RunSweep triggers a closing sweep outside the cron schedule.
func (h *AuctionHandler) RunSweep(c echo.Context) error {
	result := h.sweeper.RunClosingSweep(c.Request().Context())
	return c.JSON(http.StatusOK, result)
}

func (h *AuctionHandler) errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrAuctionNotFound),
		errors.Is(err, domain.ErrBidNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrBidTooLow),
		errors.Is(err, domain.ErrSelfBid):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrAuctionNotActive),
		errors.Is(err, domain.ErrAuctionEnded),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrConcurrentModification):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	}

	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", "path", c.Path(), "error", err)
		return c.JSON(status, map[string]string{"error": "internal error"})
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
