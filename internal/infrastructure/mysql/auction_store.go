package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

type MySQLAuctionStore struct {
	db *sql.DB
}

func NewMySQLAuctionStore(db *sql.DB) *MySQLAuctionStore {
	return &MySQLAuctionStore{db: db}
}

const auctionColumns = `id, seller_id, title, description, starting_price, current_price,
	bid_increment, start_time, end_time, status, winner_id, highest_bid_id,
	payment_confirmed, payment_actor_id, payment_at,
	delivery_confirmed, delivery_actor_id, delivery_at,
	is_deleted, deleted_at, deleted_by_id, version, created_at, updated_at`

func (s *MySQLAuctionStore) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	if auction.Version == 0 {
		auction.Version = 1
	}
	query := `
        INSERT INTO auctions (` + auctionColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := s.db.ExecContext(ctx, query,
		auction.ID, auction.SellerID, auction.Title, auction.Description,
		auction.StartingPrice.String(), auction.CurrentPrice.String(),
		auction.BidIncrement.String(), auction.StartTime, auction.EndTime,
		int(auction.Status), auction.WinnerID, auction.HighestBidID,
		auction.Payment.Done, auction.Payment.ActorID, nullableTime(auction.Payment),
		auction.Delivery.Done, auction.Delivery.ActorID, nullableTime(auction.Delivery),
		auction.IsDeleted, auction.DeletedAt, auction.DeletedByID,
		auction.Version, auction.CreatedAt, auction.UpdatedAt)
	return err
}

func (s *MySQLAuctionStore) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, auctionID)

	auction, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get auction %s: %w", auctionID, domain.ErrAuctionNotFound)
	}
	if err != nil {
		return nil, err
	}
	return auction, nil
}

// UpdateAuction performs the conditional write: the row is touched only if
// its stored version still equals expectedVersion, and the version moves
// forward by exactly one in the same statement.
func (s *MySQLAuctionStore) UpdateAuction(ctx context.Context, auction *domain.Auction, expectedVersion int64) error {
	res, err := s.db.ExecContext(ctx, auctionUpdateQuery, auctionUpdateArgs(auction, expectedVersion)...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.classifyMiss(ctx, auction.ID, expectedVersion)
	}
	auction.Version = expectedVersion + 1
	return nil
}

const auctionUpdateQuery = `
        UPDATE auctions SET
            current_price = ?, bid_increment = ?, start_time = ?, end_time = ?,
            status = ?, winner_id = ?, highest_bid_id = ?,
            payment_confirmed = ?, payment_actor_id = ?, payment_at = ?,
            delivery_confirmed = ?, delivery_actor_id = ?, delivery_at = ?,
            is_deleted = ?, deleted_at = ?, deleted_by_id = ?,
            version = version + 1, updated_at = ?
        WHERE id = ? AND version = ?
    `

func auctionUpdateArgs(auction *domain.Auction, expectedVersion int64) []interface{} {
	return []interface{}{
		auction.CurrentPrice.String(), auction.BidIncrement.String(),
		auction.StartTime, auction.EndTime,
		int(auction.Status), auction.WinnerID, auction.HighestBidID,
		auction.Payment.Done, auction.Payment.ActorID, nullableTime(auction.Payment),
		auction.Delivery.Done, auction.Delivery.ActorID, nullableTime(auction.Delivery),
		auction.IsDeleted, auction.DeletedAt, auction.DeletedByID,
		auction.UpdatedAt,
		auction.ID, expectedVersion,
	}
}

func (s *MySQLAuctionStore) classifyMiss(ctx context.Context, auctionID string, expectedVersion int64) error {
	var stored int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM auctions WHERE id = ?`, auctionID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update auction %s: %w", auctionID, domain.ErrAuctionNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("update auction %s: stored version %d, expected %d: %w",
		auctionID, stored, expectedVersion, domain.ErrVersionConflict)
}

func (s *MySQLAuctionStore) ListDueAuctions(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	query := `
        SELECT ` + auctionColumns + `
        FROM auctions
        WHERE is_deleted = FALSE
          AND ((status = ? AND start_time <= ?) OR (status = ? AND end_time <= ?))
        ORDER BY id
    `
	rows, err := s.db.QueryContext(ctx, query,
		int(domain.AuctionUpcoming), now, int(domain.AuctionActive), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []*domain.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, auction)
	}
	return auctions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var auction domain.Auction
	var status int
	var startingPrice, currentPrice, increment string
	var paymentAt, deliveryAt, deletedAt sql.NullTime

	err := row.Scan(
		&auction.ID, &auction.SellerID, &auction.Title, &auction.Description,
		&startingPrice, &currentPrice, &increment,
		&auction.StartTime, &auction.EndTime, &status,
		&auction.WinnerID, &auction.HighestBidID,
		&auction.Payment.Done, &auction.Payment.ActorID, &paymentAt,
		&auction.Delivery.Done, &auction.Delivery.ActorID, &deliveryAt,
		&auction.IsDeleted, &deletedAt, &auction.DeletedByID,
		&auction.Version, &auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		return nil, err
	}

	auction.Status = domain.AuctionStatus(status)
	if auction.StartingPrice, err = decimal.NewFromString(startingPrice); err != nil {
		return nil, fmt.Errorf("auction %s: bad starting_price %q: %w", auction.ID, startingPrice, err)
	}
	if auction.CurrentPrice, err = decimal.NewFromString(currentPrice); err != nil {
		return nil, fmt.Errorf("auction %s: bad current_price %q: %w", auction.ID, currentPrice, err)
	}
	if auction.BidIncrement, err = decimal.NewFromString(increment); err != nil {
		return nil, fmt.Errorf("auction %s: bad bid_increment %q: %w", auction.ID, increment, err)
	}
	if paymentAt.Valid {
		auction.Payment.At = paymentAt.Time
	}
	if deliveryAt.Valid {
		auction.Delivery.At = deliveryAt.Time
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		auction.DeletedAt = &t
	}
	return &auction, nil
}

func nullableTime(c domain.Confirmation) interface{} {
	if !c.Done {
		return nil
	}
	return c.At
}
