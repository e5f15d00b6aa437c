package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auction-engine/internal/domain"

	"github.com/shopspring/decimal"
)

type MySQLBidStore struct {
	db *sql.DB
}

func NewMySQLBidStore(db *sql.DB) *MySQLBidStore {
	return &MySQLBidStore{db: db}
}

const bidColumns = `id, auction_id, bidder_id, amount, is_outbid, outbid_at,
	is_deleted, deleted_at, deleted_by_id, version, created_at`

func (s *MySQLBidStore) GetBid(ctx context.Context, bidID string) (*domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = ?`
	bid, err := scanBid(s.db.QueryRowContext(ctx, query, bidID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get bid %s: %w", bidID, domain.ErrBidNotFound)
	}
	if err != nil {
		return nil, err
	}
	return bid, nil
}

func (s *MySQLBidStore) ListAuctionBids(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE auction_id = ? ORDER BY created_at, id`
	return s.listBids(ctx, query, auctionID)
}

func (s *MySQLBidStore) ListBidderBids(ctx context.Context, bidderID string) ([]*domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE bidder_id = ? ORDER BY created_at, id`
	return s.listBids(ctx, query, bidderID)
}

func (s *MySQLBidStore) listBids(ctx context.Context, query string, arg interface{}) ([]*domain.Bid, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []*domain.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, bid)
	}
	return bids, rows.Err()
}

func (s *MySQLBidStore) UpdateBid(ctx context.Context, bid *domain.Bid, expectedVersion int64) error {
	res, err := s.db.ExecContext(ctx, bidUpdateQuery, bidUpdateArgs(bid, expectedVersion)...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.classifyBidMiss(ctx, bid.ID, expectedVersion)
	}
	bid.Version = expectedVersion + 1
	return nil
}

const bidUpdateQuery = `
        UPDATE bids SET
            is_outbid = ?, outbid_at = ?, is_deleted = ?, deleted_at = ?, deleted_by_id = ?,
            version = version + 1
        WHERE id = ? AND version = ?
    `

func bidUpdateArgs(bid *domain.Bid, expectedVersion int64) []interface{} {
	return []interface{}{
		bid.IsOutbid, bid.OutbidAt, bid.IsDeleted, bid.DeletedAt, bid.DeletedByID,
		bid.ID, expectedVersion,
	}
}

func (s *MySQLBidStore) classifyBidMiss(ctx context.Context, bidID string, expectedVersion int64) error {
	var stored int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM bids WHERE id = ?`, bidID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update bid %s: %w", bidID, domain.ErrBidNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("update bid %s: stored version %d, expected %d: %w",
		bidID, stored, expectedVersion, domain.ErrVersionConflict)
}

// CommitBid lands the new bid, the outbid mark and the auction's
// price/leader update in a single transaction. The auction's version check
// is the commit guard: if another bid got there first the whole
// transaction rolls back with ErrVersionConflict.
func (s *MySQLBidStore) CommitBid(ctx context.Context, commit *domain.BidCommit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, auctionUpdateQuery,
		auctionUpdateArgs(commit.Auction, commit.AuctionExpectedVersion)...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("commit bid: auction %s, expected version %d: %w",
			commit.Auction.ID, commit.AuctionExpectedVersion, domain.ErrVersionConflict)
	}

	if commit.Outbid != nil {
		res, err = tx.ExecContext(ctx, bidUpdateQuery,
			bidUpdateArgs(commit.Outbid, commit.OutbidExpectedVersion)...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("commit bid: outbid %s, expected version %d: %w",
				commit.Outbid.ID, commit.OutbidExpectedVersion, domain.ErrVersionConflict)
		}
	}

	if commit.NewBid.Version == 0 {
		commit.NewBid.Version = 1
	}
	insert := `
        INSERT INTO bids (` + bidColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	b := commit.NewBid
	if _, err := tx.ExecContext(ctx, insert,
		b.ID, b.AuctionID, b.BidderID, b.Amount.String(), b.IsOutbid, b.OutbidAt,
		b.IsDeleted, b.DeletedAt, b.DeletedByID, b.Version, b.CreatedAt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	commit.Auction.Version = commit.AuctionExpectedVersion + 1
	if commit.Outbid != nil {
		commit.Outbid.Version = commit.OutbidExpectedVersion + 1
	}
	return nil
}

func scanBid(row rowScanner) (*domain.Bid, error) {
	var bid domain.Bid
	var amount string
	var outbidAt, deletedAt sql.NullTime

	err := row.Scan(&bid.ID, &bid.AuctionID, &bid.BidderID, &amount,
		&bid.IsOutbid, &outbidAt, &bid.IsDeleted, &deletedAt, &bid.DeletedByID,
		&bid.Version, &bid.CreatedAt)
	if err != nil {
		return nil, err
	}

	if bid.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("bid %s: bad amount %q: %w", bid.ID, amount, err)
	}
	if outbidAt.Valid {
		t := outbidAt.Time
		bid.OutbidAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		bid.DeletedAt = &t
	}
	return &bid, nil
}
