package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transfa/wallet-service/internal/domain"
)

// ProjectionStore owns the read-model tables on DB_READ_URL: wallet_projection
// (current balance per wallet) and transaction_projection (a flattened,
// query-friendly history). It is written exclusively by the projection
// consumer (C7) and read exclusively by the HTTP query handlers.
type ProjectionStore struct {
	db *pgxpool.Pool
}

// NewProjectionStore wraps a pool bound to DB_READ_URL.
func NewProjectionStore(db *pgxpool.Pool) *ProjectionStore {
	return &ProjectionStore{db: db}
}

// UpsertWalletBalance applies an event's balance-after value to the
// projection idempotently: a row is only updated if the incoming event's
// version is newer than what's already there, so out-of-order redelivery
// from the at-least-once broker can never move the balance backwards.
func (p *ProjectionStore) UpsertWalletBalance(ctx context.Context, walletID string, balance int64, version int) error {
	const query = `
		INSERT INTO wallet_projection (wallet_id, balance, last_version, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (wallet_id) DO UPDATE
		SET balance = EXCLUDED.balance, last_version = EXCLUDED.last_version, updated_at = NOW()
		WHERE wallet_projection.last_version < EXCLUDED.last_version
	`
	_, err := p.db.Exec(ctx, query, walletID, balance, version)
	if err != nil {
		return fmt.Errorf("upsert wallet projection %s: %w", walletID, err)
	}
	return nil
}

// WalletBalance is the full row behind GET /balance/{walletId}.
type WalletBalance struct {
	WalletID  string
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GetWalletBalance is the read side of GET /balance/{walletId}.
func (p *ProjectionStore) GetWalletBalance(ctx context.Context, walletID string) (WalletBalance, error) {
	const query = `SELECT wallet_id, balance, created_at, updated_at FROM wallet_projection WHERE wallet_id = $1`
	var wb WalletBalance
	if err := p.db.QueryRow(ctx, query, walletID).Scan(&wb.WalletID, &wb.Balance, &wb.CreatedAt, &wb.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return WalletBalance{}, domain.ErrWalletNotFound
		}
		return WalletBalance{}, fmt.Errorf("get wallet balance %s: %w", walletID, err)
	}
	return wb, nil
}

// TransactionRecord is one row in a wallet's flattened transaction history.
// Type and RelatedWalletID are what let GET /transactions/{walletId}
// distinguish a transfer-caused movement (TRANSFER_IN/TRANSFER_OUT/REFUND)
// from an ordinary DEPOSIT/WITHDRAWAL, per spec.md §3's Transaction shape.
type TransactionRecord struct {
	TransactionID   string
	WalletID        string
	EventType       domain.EventType
	Type            domain.TransactionType
	Amount          int64
	BalanceAfter    int64
	RelatedWalletID string
	OccurredAt      string
}

// InsertTransaction records one entry in the transaction_projection table.
// The primary key is transaction_id + wallet_id, so redelivering the same
// event is a no-op rather than a duplicate row.
func (p *ProjectionStore) InsertTransaction(ctx context.Context, rec TransactionRecord) error {
	const query = `
		INSERT INTO transaction_projection (transaction_id, wallet_id, event_type, type, amount, balance_after, related_wallet_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (transaction_id, wallet_id) DO NOTHING
	`
	_, err := p.db.Exec(ctx, query, rec.TransactionID, rec.WalletID, rec.EventType, rec.Type, rec.Amount, rec.BalanceAfter, nullableString(rec.RelatedWalletID), rec.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert transaction projection %s/%s: %w", rec.WalletID, rec.TransactionID, err)
	}
	return nil
}

// nullableString maps an empty string to SQL NULL so related_wallet_id
// stays unset for ordinary deposits/withdrawals instead of storing "".
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ListTransactions serves GET /transactions/{walletId}, newest first.
func (p *ProjectionStore) ListTransactions(ctx context.Context, walletID string, limit int) ([]TransactionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `
		SELECT transaction_id, wallet_id, event_type, type, amount, balance_after, COALESCE(related_wallet_id, ''), occurred_at::text
		FROM transaction_projection
		WHERE wallet_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	rows, err := p.db.Query(ctx, query, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", walletID, err)
	}
	defer rows.Close()

	var out []TransactionRecord
	for rows.Next() {
		var rec TransactionRecord
		if err := rows.Scan(&rec.TransactionID, &rec.WalletID, &rec.EventType, &rec.Type, &rec.Amount, &rec.BalanceAfter, &rec.RelatedWalletID, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan transaction projection: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
