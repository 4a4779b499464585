package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transfa/wallet-service/internal/domain"
)

// pgUniqueViolation is Postgres's SQLSTATE for a unique-constraint failure.
const pgUniqueViolation = "23505"

// EventStore is the append-only log for wallet events (C1). It owns the
// wallet_events table exclusively; no other component writes to it.
type EventStore struct {
	db *pgxpool.Pool
}

// NewEventStore wraps a pool bound to DB_WRITE_URL.
func NewEventStore(db *pgxpool.Pool) *EventStore {
	return &EventStore{db: db}
}

// Append inserts a single event, relying on wallet_events' unique
// (aggregate_id, version) constraint to enforce optimistic concurrency: if
// another writer already appended this version, the insert fails and the
// caller gets ErrConcurrencyConflict rather than a corrupted stream.
func (s *EventStore) Append(ctx context.Context, e domain.Event) (domain.Event, error) {
	const query = `
		INSERT INTO wallet_events (aggregate_id, aggregate_type, event_type, payload, version, occurred_at, transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, occurred_at
	`
	err := s.db.QueryRow(ctx, query,
		e.AggregateID,
		e.AggregateType,
		e.EventType,
		e.Payload,
		e.Version,
		e.Timestamp,
		e.TransactionID,
	).Scan(&e.ID, &e.Timestamp)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.Event{}, domain.ErrConcurrencyConflict
		}
		return domain.Event{}, fmt.Errorf("append event: %w", err)
	}
	return e, nil
}

// Load returns every event for aggregateID in version order. An aggregate
// with no events yields an empty, non-error slice — the caller folds that
// into the zero-value aggregate.
func (s *EventStore) Load(ctx context.Context, aggregateID string) ([]domain.Event, error) {
	const query = `
		SELECT id, aggregate_id, aggregate_type, event_type, payload, version, occurred_at, transaction_id
		FROM wallet_events
		WHERE aggregate_id = $1
		ORDER BY version ASC
	`
	rows, err := s.db.Query(ctx, query, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("load events for %s: %w", aggregateID, err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Payload, &e.Version, &e.Timestamp, &e.TransactionID); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events for %s: %w", aggregateID, err)
	}
	return events, nil
}

// LatestVersion returns the current version of aggregateID, or 0 if it has
// no events yet.
func (s *EventStore) LatestVersion(ctx context.Context, aggregateID string) (int, error) {
	const query = `SELECT COALESCE(MAX(version), 0) FROM wallet_events WHERE aggregate_id = $1`
	var version int
	if err := s.db.QueryRow(ctx, query, aggregateID).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("latest version for %s: %w", aggregateID, err)
	}
	return version, nil
}
