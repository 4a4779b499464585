package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType is a closed tag identifying the shape of an event's payload.
// Re-implementations dispatch on this tag instead of relying on runtime
// type reflection, per the event-sourcing idiom the rest of the pack follows.
type EventType string

const (
	EventMoneyDeposited EventType = "MoneyDeposited"
	EventMoneyWithdrawn EventType = "MoneyWithdrawn"
)

// AggregateType identifies which aggregate's state machine produced an event.
// Only one exists today (wallet) but the column is carried so the log store
// never needs a migration to add a second aggregate type.
const AggregateTypeWallet = "wallet"

// TransactionType classifies a wallet-affecting event for the read model
// (spec.md §3's Transaction projection). A plain Deposit/Withdraw call
// defaults to DEPOSIT/WITHDRAWAL; a transfer leg or compensation refund
// tags itself with the more specific type plus the counterparty wallet so
// GET /transactions/{walletId} can tell them apart.
type TransactionType string

const (
	TransactionDeposit     TransactionType = "DEPOSIT"
	TransactionWithdrawal  TransactionType = "WITHDRAWAL"
	TransactionTransferIn  TransactionType = "TRANSFER_IN"
	TransactionTransferOut TransactionType = "TRANSFER_OUT"
	TransactionRefund      TransactionType = "REFUND"
)

// TransactionContext carries the transfer-saga classification onto a
// Deposit/Withdraw call. Pass nil for a standalone deposit/withdrawal; the
// wallet defaults to TransactionDeposit/TransactionWithdrawal with no
// counterparty.
type TransactionContext struct {
	Type            TransactionType
	RelatedWalletID string
}

// Event is the immutable, append-only fact stored in the event log. Payload
// is intentionally untyped JSON from the store's point of view (it is an
// opaque blob to the log, per spec.md's C1 contract); callers marshal into
// MoneyDepositedPayload / MoneyWithdrawnPayload as appropriate.
type Event struct {
	ID            int64           `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     EventType       `json:"event_type"`
	Payload       []byte          `json:"payload"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	TransactionID uuid.UUID       `json:"transaction_id"`
}

// MoneyDepositedPayload is the structured payload of an EventMoneyDeposited event.
type MoneyDepositedPayload struct {
	WalletID        string          `json:"walletId"`
	Amount          int64           `json:"amount"`
	BalanceAfter    int64           `json:"balanceAfter"`
	TransactionID   uuid.UUID       `json:"transactionId"`
	TransactionType TransactionType `json:"transactionType"`
	RelatedWalletID string          `json:"relatedWalletId,omitempty"`
	Version         int             `json:"version"`
	Timestamp       time.Time       `json:"timestamp"`
}

// MoneyWithdrawnPayload is the structured payload of an EventMoneyWithdrawn event.
type MoneyWithdrawnPayload struct {
	WalletID        string          `json:"walletId"`
	Amount          int64           `json:"amount"`
	BalanceAfter    int64           `json:"balanceAfter"`
	TransactionID   uuid.UUID       `json:"transactionId"`
	TransactionType TransactionType `json:"transactionType"`
	RelatedWalletID string          `json:"relatedWalletId,omitempty"`
	Version         int             `json:"version"`
	Timestamp       time.Time       `json:"timestamp"`
}

// NewTransactionID generates a fresh transaction identifier. One is minted
// per wallet-affecting event, per spec.md §7.
func NewTransactionID() uuid.UUID {
	return uuid.New()
}
