package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transfa/wallet-service/internal/domain"
)

// FraudStore owns the fraud_recent_events, fraud_alerts, and
// fraud_risk_profiles tables on DB_FRAUD_URL. It is written exclusively by
// the fraud consumer (C8), which keeps its analytics fully isolated from
// the write and read pools so a runaway fraud query never contends with
// the transactional path.
type FraudStore struct {
	db *pgxpool.Pool
}

// NewFraudStore wraps a pool bound to DB_FRAUD_URL.
func NewFraudStore(db *pgxpool.Pool) *FraudStore {
	return &FraudStore{db: db}
}

// RecordEvent appends to the sliding window of recent wallet activity used
// by the velocity and rapid-withdrawal rules.
func (f *FraudStore) RecordEvent(ctx context.Context, e domain.RecentEvent) error {
	const query = `
		INSERT INTO fraud_recent_events (wallet_id, event_type, amount, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := f.db.Exec(ctx, query, e.WalletID, e.EventType, e.Amount, e.TransactionID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("record fraud event %s: %w", e.TransactionID, err)
	}
	return nil
}

// CountRecentEvents returns how many events a wallet has generated in the
// last windowSeconds, the input to the velocity rule.
func (f *FraudStore) CountRecentEvents(ctx context.Context, walletID string, windowSeconds int) (int, error) {
	const query = `
		SELECT COUNT(*) FROM fraud_recent_events
		WHERE wallet_id = $1 AND created_at > NOW() - ($2 || ' seconds')::interval
	`
	var count int
	if err := f.db.QueryRow(ctx, query, walletID, windowSeconds).Scan(&count); err != nil {
		return 0, fmt.Errorf("count recent events for %s: %w", walletID, err)
	}
	return count, nil
}

// CountRecentEventsByType returns how many events of a specific type a
// wallet has generated in the last windowSeconds — e.g. deposits only, the
// input the rapid-withdrawal rule needs since it must not fire on a run of
// withdrawals with no deposit in the window.
func (f *FraudStore) CountRecentEventsByType(ctx context.Context, walletID string, eventType domain.EventType, windowSeconds int) (int, error) {
	const query = `
		SELECT COUNT(*) FROM fraud_recent_events
		WHERE wallet_id = $1 AND event_type = $2 AND created_at > NOW() - ($3 || ' seconds')::interval
	`
	var count int
	if err := f.db.QueryRow(ctx, query, walletID, eventType, windowSeconds).Scan(&count); err != nil {
		return 0, fmt.Errorf("count recent %s events for %s: %w", eventType, walletID, err)
	}
	return count, nil
}

// SumRecentAmount returns the total amount moved by a wallet in the last
// windowSeconds. None of the three rules in fraud_consumer.go reads it.
func (f *FraudStore) SumRecentAmount(ctx context.Context, walletID string, windowSeconds int) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0) FROM fraud_recent_events
		WHERE wallet_id = $1 AND created_at > NOW() - ($2 || ' seconds')::interval
	`
	var total int64
	if err := f.db.QueryRow(ctx, query, walletID, windowSeconds).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum recent amount for %s: %w", walletID, err)
	}
	return total, nil
}

// InsertAlert records a rule firing. The UNIQUE(transaction_id, rule_id)
// constraint on fraud_alerts makes this idempotent under redelivery; a
// duplicate insert is reported back as ok=false rather than an error so
// callers can skip the risk-score bump on the retry.
func (f *FraudStore) InsertAlert(ctx context.Context, alert domain.Alert) (ok bool, err error) {
	const query = `
		INSERT INTO fraud_alerts (id, wallet_id, rule_id, rule_name, severity, transaction_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (transaction_id, rule_id) DO NOTHING
	`
	tag, err := f.db.Exec(ctx, query,
		alert.ID, alert.WalletID, alert.RuleID, alert.RuleName, alert.Severity,
		alert.TransactionID, alert.EventType, alert.Payload, alert.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("insert fraud alert %s/%s: %w", alert.TransactionID, alert.RuleID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpsertRiskProfile applies a score delta to a wallet's accumulated risk
// profile, clamping to [0, 100] and bumping the alert count.
func (f *FraudStore) UpsertRiskProfile(ctx context.Context, walletID string, scoreDelta int) (*domain.RiskProfile, error) {
	const query = `
		INSERT INTO fraud_risk_profiles (wallet_id, risk_score, alert_count, last_updated)
		VALUES ($1, LEAST(GREATEST($2, 0), 100), 1, NOW())
		ON CONFLICT (wallet_id) DO UPDATE
		SET risk_score = LEAST(GREATEST(fraud_risk_profiles.risk_score + $2, 0), 100),
		    alert_count = fraud_risk_profiles.alert_count + 1,
		    last_updated = NOW()
		RETURNING wallet_id, risk_score, alert_count, last_updated
	`
	var profile domain.RiskProfile
	err := f.db.QueryRow(ctx, query, walletID, scoreDelta).Scan(
		&profile.WalletID, &profile.RiskScore, &profile.AlertCount, &profile.LastUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert risk profile %s: %w", walletID, err)
	}
	profile.RiskLevel = domain.RiskLevelForScore(profile.RiskScore)
	return &profile, nil
}

// GetRiskProfile returns a wallet's current fraud profile, or a zero-value
// LOW profile if it has never triggered a rule.
func (f *FraudStore) GetRiskProfile(ctx context.Context, walletID string) (*domain.RiskProfile, error) {
	const query = `SELECT wallet_id, risk_score, alert_count, last_updated FROM fraud_risk_profiles WHERE wallet_id = $1`
	var profile domain.RiskProfile
	err := f.db.QueryRow(ctx, query, walletID).Scan(&profile.WalletID, &profile.RiskScore, &profile.AlertCount, &profile.LastUpdated)
	if err != nil {
		return &domain.RiskProfile{WalletID: walletID, RiskLevel: domain.RiskLow}, nil
	}
	profile.RiskLevel = domain.RiskLevelForScore(profile.RiskScore)
	return &profile, nil
}

// NewAlertID mints an alert identifier. Kept as a store-level helper so
// callers never need to import uuid just to build an Alert.
func NewAlertID() string {
	return uuid.New().String()
}
