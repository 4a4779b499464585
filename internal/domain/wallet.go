package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Wallet is the event-sourced aggregate state. It is never persisted
// directly; it is always the result of folding a wallet's event prefix.
// A wallet with CurrentVersion 0 has no events and is considered not to
// exist yet (spec.md §4.2) — the first successful Deposit brings it into
// being.
type Wallet struct {
	ID             string
	Balance        int64 // minor units (cents), non-negative
	CurrentVersion int
}

// NewWallet returns the zero-value state for a wallet id that has no
// events yet. Loading an unknown id yields exactly this.
func NewWallet(id string) *Wallet {
	return &Wallet{ID: id}
}

// Fold replays events in version order into aggregate state. It is pure and
// deterministic: the same event prefix always yields the same balance.
func Fold(id string, events []Event) *Wallet {
	w := NewWallet(id)
	for _, e := range events {
		w.apply(e)
	}
	return w
}

func (w *Wallet) apply(e Event) {
	switch e.EventType {
	case EventMoneyDeposited:
		var p MoneyDepositedPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			w.Balance = p.BalanceAfter
		}
	case EventMoneyWithdrawn:
		var p MoneyWithdrawnPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			w.Balance = p.BalanceAfter
		}
	}
	w.CurrentVersion = e.Version
}

// Deposit produces the event for crediting the wallet. It never mutates w
// directly — the caller folds the returned event back in (or relies on the
// repository to persist-then-refold) so Wallet stays a pure projection of
// its own event stream. txCtx is nil for a standalone deposit; the mediator
// passes a non-nil TransactionContext for a transfer's destination credit
// or a compensation refund so the read model can classify the movement.
func (w *Wallet) Deposit(amount int64, transactionID uuid.UUID, now time.Time, txCtx *TransactionContext) (Event, error) {
	if amount <= 0 {
		return Event{}, ErrInvalidAmount
	}
	txType, relatedWalletID := TransactionDeposit, ""
	if txCtx != nil {
		txType, relatedWalletID = txCtx.Type, txCtx.RelatedWalletID
	}
	balanceAfter := w.Balance + amount
	payload, err := json.Marshal(MoneyDepositedPayload{
		WalletID:        w.ID,
		Amount:          amount,
		BalanceAfter:    balanceAfter,
		TransactionID:   transactionID,
		TransactionType: txType,
		RelatedWalletID: relatedWalletID,
		Version:         w.CurrentVersion + 1,
		Timestamp:       now,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateID:   w.ID,
		AggregateType: AggregateTypeWallet,
		EventType:     EventMoneyDeposited,
		Payload:       payload,
		Version:       w.CurrentVersion + 1,
		Timestamp:     now,
		TransactionID: transactionID,
	}, nil
}

// Withdraw produces the event for debiting the wallet, rejecting non-positive
// amounts and amounts exceeding the current balance (spec.md §4.2). txCtx is
// nil for a standalone withdrawal; the mediator passes a non-nil
// TransactionContext for a transfer's source debit.
func (w *Wallet) Withdraw(amount int64, transactionID uuid.UUID, now time.Time, txCtx *TransactionContext) (Event, error) {
	if amount <= 0 {
		return Event{}, ErrInvalidAmount
	}
	if amount > w.Balance {
		return Event{}, ErrInsufficientFunds
	}
	txType, relatedWalletID := TransactionWithdrawal, ""
	if txCtx != nil {
		txType, relatedWalletID = txCtx.Type, txCtx.RelatedWalletID
	}
	balanceAfter := w.Balance - amount
	payload, err := json.Marshal(MoneyWithdrawnPayload{
		WalletID:        w.ID,
		Amount:          amount,
		BalanceAfter:    balanceAfter,
		TransactionID:   transactionID,
		TransactionType: txType,
		RelatedWalletID: relatedWalletID,
		Version:         w.CurrentVersion + 1,
		Timestamp:       now,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateID:   w.ID,
		AggregateType: AggregateTypeWallet,
		EventType:     EventMoneyWithdrawn,
		Payload:       payload,
		Version:       w.CurrentVersion + 1,
		Timestamp:     now,
		TransactionID: transactionID,
	}, nil
}
