package domain

import (
	"time"

	"github.com/google/uuid"
)

// SagaStatus is the transfer saga's one-way state machine, per spec.md §4.5:
//
//	INITIATED --debit_ok--> SOURCE_DEBITED --credit_ok--> COMPLETED
//	    |debit_fail               |credit_fail
//	    v                         v
//	FAILED                  COMPENSATING --refund_ok--> FAILED
//	                              |refund_fail
//	                              v
//	                        COMPENSATING (terminal, needs an operator)
type SagaStatus string

const (
	SagaInitiated     SagaStatus = "INITIATED"
	SagaSourceDebited SagaStatus = "SOURCE_DEBITED"
	SagaCompleted     SagaStatus = "COMPLETED"
	SagaCompensating  SagaStatus = "COMPENSATING"
	SagaFailed        SagaStatus = "FAILED"
)

// IsTerminal reports whether status is one the saga never leaves once
// reached automatically. COMPENSATING is deliberately excluded: it is
// terminal from the automation's perspective but not a true end state —
// an operator is expected to resolve it.
func (s SagaStatus) IsTerminal() bool {
	return s == SagaCompleted || s == SagaFailed
}

// TransferSaga is the persistent record coordinating a two-aggregate
// transfer. Debit/credit/compensation each carry their own transaction id;
// SagaID ties the three together for audit.
type TransferSaga struct {
	SagaID            uuid.UUID
	FromWalletID      string
	ToWalletID        string
	Amount            int64
	Status            SagaStatus
	DebitTxID         *uuid.UUID
	CreditTxID        *uuid.UUID
	CompensationTxID  *uuid.UUID
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewTransferSaga creates a saga row in its initial INITIATED state.
func NewTransferSaga(fromWalletID, toWalletID string, amount int64) *TransferSaga {
	now := time.Now().UTC()
	return &TransferSaga{
		SagaID:       uuid.New(),
		FromWalletID: fromWalletID,
		ToWalletID:   toWalletID,
		Amount:       amount,
		Status:       SagaInitiated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
