package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transfa/wallet-service/internal/domain"
)

// SagaStore persists TransferSaga rows (C5). It owns the transfer_sagas
// table on the same DB_WRITE pool as the event log, so a saga's status
// transitions are visible to the recovery scanner without cross-database
// coordination.
type SagaStore struct {
	db *pgxpool.Pool
}

// NewSagaStore wraps a pool bound to DB_WRITE_URL.
func NewSagaStore(db *pgxpool.Pool) *SagaStore {
	return &SagaStore{db: db}
}

// Create inserts a new saga in its initial state.
func (s *SagaStore) Create(ctx context.Context, saga *domain.TransferSaga) error {
	const query = `
		INSERT INTO transfer_sagas (saga_id, from_wallet_id, to_wallet_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.Exec(ctx, query,
		saga.SagaID, saga.FromWalletID, saga.ToWalletID, saga.Amount, saga.Status, saga.CreatedAt, saga.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create saga %s: %w", saga.SagaID, err)
	}
	return nil
}

// Get returns a saga by id.
func (s *SagaStore) Get(ctx context.Context, sagaID uuid.UUID) (*domain.TransferSaga, error) {
	const query = `
		SELECT saga_id, from_wallet_id, to_wallet_id, amount, status, debit_tx_id, credit_tx_id,
		       compensation_tx_id, error_message, created_at, updated_at
		FROM transfer_sagas
		WHERE saga_id = $1
	`
	var saga domain.TransferSaga
	err := s.db.QueryRow(ctx, query, sagaID).Scan(
		&saga.SagaID, &saga.FromWalletID, &saga.ToWalletID, &saga.Amount, &saga.Status,
		&saga.DebitTxID, &saga.CreditTxID, &saga.CompensationTxID, &saga.ErrorMessage,
		&saga.CreatedAt, &saga.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSagaNotFound
		}
		return nil, fmt.Errorf("get saga %s: %w", sagaID, err)
	}
	return &saga, nil
}

// UpdateStatus advances a saga's status and optional transaction ids and
// error message. Callers pass the full desired row rather than partial
// fields, matching the mediator's own understanding of the saga after each
// step completes.
func (s *SagaStore) UpdateStatus(ctx context.Context, saga *domain.TransferSaga) error {
	const query = `
		UPDATE transfer_sagas
		SET status = $2, debit_tx_id = $3, credit_tx_id = $4, compensation_tx_id = $5,
		    error_message = $6, updated_at = NOW()
		WHERE saga_id = $1
	`
	tag, err := s.db.Exec(ctx, query,
		saga.SagaID, saga.Status, saga.DebitTxID, saga.CreditTxID, saga.CompensationTxID, saga.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("update saga %s: %w", saga.SagaID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSagaNotFound
	}
	return nil
}

// ListStuck returns sagas sitting in a non-terminal status older than the
// caller's staleness threshold, for the recovery scanner in cmd/recover.
func (s *SagaStore) ListStuck(ctx context.Context, olderThanSeconds int) ([]domain.TransferSaga, error) {
	const query = `
		SELECT saga_id, from_wallet_id, to_wallet_id, amount, status, debit_tx_id, credit_tx_id,
		       compensation_tx_id, error_message, created_at, updated_at
		FROM transfer_sagas
		WHERE status IN ('INITIATED', 'SOURCE_DEBITED')
		  AND updated_at < NOW() - ($1 || ' seconds')::interval
		ORDER BY updated_at ASC
	`
	rows, err := s.db.Query(ctx, query, olderThanSeconds)
	if err != nil {
		return nil, fmt.Errorf("list stuck sagas: %w", err)
	}
	defer rows.Close()

	var sagas []domain.TransferSaga
	for rows.Next() {
		var saga domain.TransferSaga
		if err := rows.Scan(
			&saga.SagaID, &saga.FromWalletID, &saga.ToWalletID, &saga.Amount, &saga.Status,
			&saga.DebitTxID, &saga.CreditTxID, &saga.CompensationTxID, &saga.ErrorMessage,
			&saga.CreatedAt, &saga.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stuck saga: %w", err)
		}
		sagas = append(sagas, saga)
	}
	return sagas, rows.Err()
}

// ListCompensating returns sagas parked in COMPENSATING, the state that
// needs an operator per spec.md §4.5.
func (s *SagaStore) ListCompensating(ctx context.Context) ([]domain.TransferSaga, error) {
	const query = `
		SELECT saga_id, from_wallet_id, to_wallet_id, amount, status, debit_tx_id, credit_tx_id,
		       compensation_tx_id, error_message, created_at, updated_at
		FROM transfer_sagas
		WHERE status = 'COMPENSATING'
		ORDER BY updated_at ASC
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list compensating sagas: %w", err)
	}
	defer rows.Close()

	var sagas []domain.TransferSaga
	for rows.Next() {
		var saga domain.TransferSaga
		if err := rows.Scan(
			&saga.SagaID, &saga.FromWalletID, &saga.ToWalletID, &saga.Amount, &saga.Status,
			&saga.DebitTxID, &saga.CreditTxID, &saga.CompensationTxID, &saga.ErrorMessage,
			&saga.CreatedAt, &saga.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan compensating saga: %w", err)
		}
		sagas = append(sagas, saga)
	}
	return sagas, rows.Err()
}
