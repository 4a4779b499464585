package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDeposit_CreditsFromZero(t *testing.T) {
	w := NewWallet("wallet-1")
	event, err := w.Deposit(500, uuid.New(), time.Now(), nil)
	if err != nil {
		t.Fatalf("Deposit returned error: %v", err)
	}
	if event.Version != 1 {
		t.Fatalf("expected version 1, got %d", event.Version)
	}
	if event.EventType != EventMoneyDeposited {
		t.Fatalf("expected EventMoneyDeposited, got %s", event.EventType)
	}
}

func TestDeposit_RejectsNonPositiveAmount(t *testing.T) {
	w := NewWallet("wallet-1")
	if _, err := w.Deposit(0, uuid.New(), time.Now(), nil); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := w.Deposit(-10, uuid.New(), time.Now(), nil); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestWithdraw_RejectsInsufficientFunds(t *testing.T) {
	w := NewWallet("wallet-1")
	if _, err := w.Withdraw(100, uuid.New(), time.Now(), nil); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestFold_ReplaysDepositsAndWithdrawalsInVersionOrder(t *testing.T) {
	now := time.Now()
	w := NewWallet("wallet-1")

	depositEvent, err := w.Deposit(1000, uuid.New(), now, nil)
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	w = Fold("wallet-1", []Event{depositEvent})

	withdrawEvent, err := w.Withdraw(300, uuid.New(), now, nil)
	if err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}

	folded := Fold("wallet-1", []Event{depositEvent, withdrawEvent})
	if folded.Balance != 700 {
		t.Fatalf("expected balance 700, got %d", folded.Balance)
	}
	if folded.CurrentVersion != 2 {
		t.Fatalf("expected version 2, got %d", folded.CurrentVersion)
	}
}

func TestDeposit_NilTxContextDefaultsToPlainDeposit(t *testing.T) {
	w := NewWallet("wallet-1")
	event, err := w.Deposit(500, uuid.New(), time.Now(), nil)
	if err != nil {
		t.Fatalf("Deposit returned error: %v", err)
	}
	var p MoneyDepositedPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.TransactionType != TransactionDeposit || p.RelatedWalletID != "" {
		t.Fatalf("expected plain DEPOSIT with no related wallet, got type=%s related=%q", p.TransactionType, p.RelatedWalletID)
	}
}

func TestWithdraw_TxContextClassifiesTransferLeg(t *testing.T) {
	w := NewWallet("wallet-1")
	w.Balance = 1000
	event, err := w.Withdraw(300, uuid.New(), time.Now(), &TransactionContext{
		Type:            TransactionTransferOut,
		RelatedWalletID: "wallet-2",
	})
	if err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}
	var p MoneyWithdrawnPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.TransactionType != TransactionTransferOut || p.RelatedWalletID != "wallet-2" {
		t.Fatalf("expected TRANSFER_OUT to wallet-2, got type=%s related=%q", p.TransactionType, p.RelatedWalletID)
	}
}

func TestFold_UnknownWalletHasZeroBalance(t *testing.T) {
	w := Fold("never-seen", nil)
	if w.Balance != 0 || w.CurrentVersion != 0 {
		t.Fatalf("expected zero-value wallet, got balance=%d version=%d", w.Balance, w.CurrentVersion)
	}
}
