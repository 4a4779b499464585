package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/transfa/wallet-service/internal/domain"
	"github.com/transfa/wallet-service/internal/store"
)

// busEnvelope mirrors the bit-exact wire schema from spec.md §6.
type busEnvelope struct {
	EventType   string          `json:"eventType"`
	Data        json.RawMessage `json:"data"`
	PublishedAt string          `json:"publishedAt"`
}

// walletEventData is the shared shape of MoneyDeposited/MoneyWithdrawn
// payloads as they cross the bus.
type walletEventData struct {
	WalletID        string                 `json:"walletId"`
	Amount          int64                  `json:"amount"`
	BalanceAfter    int64                  `json:"balanceAfter"`
	TransactionID   string                 `json:"transactionId"`
	TransactionType domain.TransactionType `json:"transactionType"`
	RelatedWalletID string                 `json:"relatedWalletId,omitempty"`
	Version         int                    `json:"version"`
	Timestamp       time.Time              `json:"timestamp"`
}

const projectionDeadline = 5 * time.Second

func withProjectionDeadline() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), projectionDeadline)
}

// ProjectionConsumer is C7: it consumes the full wallet event stream and
// updates the wallet and transaction read models idempotently. The
// transaction_projection primary key (transaction_id, wallet_id) is what
// makes a redelivered event a no-op, per spec.md §4.7 — this consumer has
// no dedup logic of its own, it relies on the store's ON CONFLICT DO
// NOTHING.
type ProjectionConsumer struct {
	projections *store.ProjectionStore
}

// NewProjectionConsumer wires the read-model store.
func NewProjectionConsumer(projections *store.ProjectionStore) *ProjectionConsumer {
	return &ProjectionConsumer{projections: projections}
}

// HandleMessage returns true to ack, false to dead-letter. It matches the
// bool-return handler shape pkg/rabbitmq.Consumer expects.
func (c *ProjectionConsumer) HandleMessage(body []byte) bool {
	var envelope busEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		log.Printf("level=error component=projection_consumer msg=\"malformed envelope\" err=%v", err)
		return false
	}

	switch domain.EventType(envelope.EventType) {
	case domain.EventMoneyDeposited, domain.EventMoneyWithdrawn:
		return c.handleWalletEvent(domain.EventType(envelope.EventType), envelope.Data)
	default:
		// Saga-lifecycle events (TransferInitiated, SourceWalletDebited, …)
		// don't carry their own balance_after and are not projected; they
		// exist for audit consumers, not this one. Acking drops them.
		return true
	}
}

func (c *ProjectionConsumer) handleWalletEvent(eventType domain.EventType, raw json.RawMessage) bool {
	var data walletEventData
	if err := json.Unmarshal(raw, &data); err != nil {
		log.Printf("level=error component=projection_consumer msg=\"malformed wallet event data\" err=%v", err)
		return false
	}

	ctx, cancel := withProjectionDeadline()
	defer cancel()

	if err := c.projections.UpsertWalletBalance(ctx, data.WalletID, data.BalanceAfter, data.Version); err != nil {
		log.Printf("level=error component=projection_consumer wallet_id=%s msg=\"upsert balance failed\" err=%v", data.WalletID, err)
		return false
	}

	if err := c.projections.InsertTransaction(ctx, store.TransactionRecord{
		TransactionID:   data.TransactionID,
		WalletID:        data.WalletID,
		EventType:       eventType,
		Type:            data.TransactionType,
		Amount:          data.Amount,
		BalanceAfter:    data.BalanceAfter,
		RelatedWalletID: data.RelatedWalletID,
		OccurredAt:      data.Timestamp.Format(time.RFC3339Nano),
	}); err != nil {
		log.Printf("level=error component=projection_consumer wallet_id=%s transaction_id=%s msg=\"insert transaction projection failed\" err=%v", data.WalletID, data.TransactionID, err)
		return false
	}

	return true
}
