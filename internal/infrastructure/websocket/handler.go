package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades watchers onto an auction's live feed and accepts bids
// over the socket.
type Handler struct {
	ledger      *services.BidLedger
	auctions    domain.AuctionStore
	connManager domain.ConnectionManager
	log         logger.Logger
}

func NewHandler(ledger *services.BidLedger, auctions domain.AuctionStore,
	connManager domain.ConnectionManager, log logger.Logger) *Handler {
	return &Handler{
		ledger:      ledger,
		auctions:    auctions,
		connManager: connManager,
		log:         log,
	}
}

func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["auctionID"]

	auction, err := h.auctions.GetAuction(r.Context(), auctionID)
	if err != nil || auction.IsDeleted {
		http.Error(w, "auction not found", http.StatusNotFound)
		return
	}

	if auction.Status != domain.AuctionUpcoming && auction.Status != domain.AuctionActive {
		http.Error(w, "auction has already closed", http.StatusForbidden)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	wsConn := NewConnection(conn, userID, auctionID)

	if err := h.connManager.RegisterConnection(userID, auctionID, wsConn); err != nil {
		h.log.Error("Failed to register connection", "error", err)
		conn.Close()
		return
	}

	go h.handleMessages(wsConn, userID, auctionID)
}

func (h *Handler) handleMessages(conn *Connection, userID, auctionID string) {
	defer func() {
		h.connManager.UnregisterConnection(userID, auctionID)
		conn.Close()
	}()

	for {
		var msg map[string]interface{}
		if err := conn.conn.ReadJSON(&msg); err != nil {
			h.log.Debug("Connection read failed", "user_id", userID, "auction_id", auctionID, "error", err)
			return
		}

		msgType, ok := msg["type"].(string)
		if !ok {
			continue
		}

		switch msgType {
		case "place_bid":
			h.handleBidMessage(conn, userID, auctionID, msg)
		case "ping":
			conn.Send(map[string]string{"type": "pong"})
		}
	}
}

func (h *Handler) handleBidMessage(conn *Connection, userID, auctionID string, msg map[string]interface{}) {
	amountStr, ok := msg["amount"].(string)
	if !ok {
		conn.Send(map[string]string{"type": "error", "message": "invalid amount"})
		return
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		conn.Send(map[string]string{"type": "error", "message": "invalid amount format"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bid, err := h.ledger.PlaceBid(ctx, auctionID, userID, amount)
	if err != nil {
		conn.Send(map[string]string{"type": "bid_rejected", "message": err.Error()})
		return
	}

	conn.Send(map[string]interface{}{
		"type":   "bid_accepted",
		"bid_id": bid.ID,
		"amount": bid.Amount.String(),
	})
}

// Connection wraps a gorilla websocket connection. Writes are serialized:
// the reader goroutine and the broadcaster both send.
type Connection struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	userID    string
	auctionID string
}

func NewConnection(conn *websocket.Conn, userID, auctionID string) *Connection {
	return &Connection{
		conn:      conn,
		userID:    userID,
		auctionID: auctionID,
	}
}

func (c *Connection) Send(message interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(message)
}

func (c *Connection) Close() error {
	return c.conn.Close()
}

func (c *Connection) UserID() string {
	return c.userID
}

func (c *Connection) AuctionID() string {
	return c.auctionID
}
