package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/transfa/wallet-service/internal/domain"
)

// SagaRepository is the slice of store.SagaStore the mediator needs. Kept as
// an interface for the same reason as EventLog: it lets the saga
// orchestration in Transfer/compensate be unit tested against a fake.
type SagaRepository interface {
	Create(ctx context.Context, saga *domain.TransferSaga) error
	UpdateStatus(ctx context.Context, saga *domain.TransferSaga) error
}

// Mediator is the command entry point (C5): deposit, withdraw, and transfer
// all pass through here. It does not itself implement the idempotency
// envelope — that is middleware at the HTTP edge — but it does own the
// transfer saga orchestration, since the saga is a property of the command
// itself, not of the transport.
type Mediator struct {
	repo      *AggregateRepository
	sagas     SagaRepository
	publisher EventPublisher
	clock     func() time.Time
}

// NewMediator wires the aggregate repository, saga store, and bus publisher
// used for the saga-lifecycle events (TransferInitiated and friends).
func NewMediator(repo *AggregateRepository, sagas SagaRepository, publisher EventPublisher) *Mediator {
	return &Mediator{repo: repo, sagas: sagas, publisher: publisher, clock: time.Now}
}

const sagaEventsExchange = "wallet_events"

// sagaEventPayload is the saga-flavored half of spec.md §6's event schema:
// data always carries sagaId plus either walletId or from/toWalletId.
type sagaEventPayload struct {
	SagaID       string `json:"sagaId"`
	FromWalletID string `json:"fromWalletId,omitempty"`
	ToWalletID   string `json:"toWalletId,omitempty"`
	Amount       int64  `json:"amount"`
	Reason       string `json:"reason,omitempty"`
	Timestamp    string `json:"timestamp"`
}

func (m *Mediator) publishSagaEvent(ctx context.Context, routingKey string, saga *domain.TransferSaga, reason string) {
	if m.publisher == nil {
		return
	}
	payload := sagaEventPayload{
		SagaID:       saga.SagaID.String(),
		FromWalletID: saga.FromWalletID,
		ToWalletID:   saga.ToWalletID,
		Amount:       saga.Amount,
		Reason:       reason,
		Timestamp:    m.clock().UTC().Format(time.RFC3339Nano),
	}
	msg := struct {
		EventType   string      `json:"eventType"`
		Data        interface{} `json:"data"`
		PublishedAt string      `json:"publishedAt"`
	}{EventType: routingKey, Data: payload, PublishedAt: payload.Timestamp}

	if err := m.publisher.Publish(ctx, sagaEventsExchange, routingKey, msg); err != nil {
		log.Printf("level=error component=mediator saga_id=%s msg=\"failed to publish saga event\" routing_key=%s err=%q", saga.SagaID, routingKey, err)
	}
}

// DepositResult is the mediator's response to a single-aggregate command.
type DepositResult struct {
	Success bool
	Balance int64
	Message string
}

// Deposit credits a wallet. It never fails on a fresh wallet — an unknown
// walletId simply starts at balance 0 (spec.md §4.2).
func (m *Mediator) Deposit(ctx context.Context, walletID string, amount int64) (DepositResult, error) {
	txID := domain.NewTransactionID()
	now := m.clock().UTC()

	event, err := m.repo.Execute(ctx, walletID, func(w *domain.Wallet) (domain.Event, error) {
		return w.Deposit(amount, txID, now, nil)
	})
	if err != nil {
		return DepositResult{}, err
	}

	balance, decodeErr := decodeBalanceAfter(event)
	if decodeErr != nil {
		return DepositResult{}, decodeErr
	}

	return DepositResult{Success: true, Balance: balance, Message: "deposit successful"}, nil
}

// Withdraw debits a wallet. Per spec.md §9 open question 3, insufficient
// funds is surfaced as a success:false business result rather than an HTTP
// error — the caller (HTTP handler) still returns 201.
func (m *Mediator) Withdraw(ctx context.Context, walletID string, amount int64) (DepositResult, error) {
	txID := domain.NewTransactionID()
	now := m.clock().UTC()

	event, err := m.repo.Execute(ctx, walletID, func(w *domain.Wallet) (domain.Event, error) {
		return w.Withdraw(amount, txID, now, nil)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return DepositResult{Success: false, Message: domain.ErrInsufficientFunds.Error()}, nil
		}
		return DepositResult{}, err
	}

	balance, decodeErr := decodeBalanceAfter(event)
	if decodeErr != nil {
		return DepositResult{}, decodeErr
	}
	return DepositResult{Success: true, Balance: balance, Message: "withdrawal successful"}, nil
}

func decodeBalanceAfter(e domain.Event) (int64, error) {
	switch e.EventType {
	case domain.EventMoneyDeposited:
		var p domain.MoneyDepositedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return 0, err
		}
		return p.BalanceAfter, nil
	case domain.EventMoneyWithdrawn:
		var p domain.MoneyWithdrawnPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return 0, err
		}
		return p.BalanceAfter, nil
	default:
		return 0, fmt.Errorf("decode balance_after: unexpected event type %s", e.EventType)
	}
}

// TransferResult is the mediator's response to a transfer command.
type TransferResult struct {
	Success     bool
	FromBalance int64
	ToBalance   int64
	Message     string
	Critical    bool
}

// Transfer runs the two-aggregate transfer saga described in spec.md §4.5.
// It persists the saga's state transitions as it goes so a crash mid-flight
// leaves a row the recovery scanner (cmd/recover) can find and report on.
func (m *Mediator) Transfer(ctx context.Context, fromWalletID, toWalletID string, amount int64) (TransferResult, error) {
	saga := domain.NewTransferSaga(fromWalletID, toWalletID, amount)
	if err := m.sagas.Create(ctx, saga); err != nil {
		return TransferResult{}, fmt.Errorf("create saga: %w", err)
	}
	m.publishSagaEvent(ctx, "wallet.transfer.initiated", saga, "")

	debitEvent, err := m.repo.Execute(ctx, fromWalletID, func(w *domain.Wallet) (domain.Event, error) {
		return w.Withdraw(amount, domain.NewTransactionID(), m.clock().UTC(), &domain.TransactionContext{
			Type:            domain.TransactionTransferOut,
			RelatedWalletID: toWalletID,
		})
	})
	if err != nil {
		saga.Status = domain.SagaFailed
		saga.ErrorMessage = err.Error()
		if updateErr := m.sagas.UpdateStatus(ctx, saga); updateErr != nil {
			log.Printf("level=error component=mediator saga_id=%s msg=\"failed to persist FAILED status after debit failure\" err=%q", saga.SagaID, updateErr)
		}
		m.publishSagaEvent(ctx, "wallet.transfer.failed", saga, err.Error())
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return TransferResult{Success: false, Message: domain.ErrInsufficientFunds.Error()}, nil
		}
		return TransferResult{}, err
	}

	debitTxID := debitEvent.TransactionID
	saga.DebitTxID = &debitTxID
	saga.Status = domain.SagaSourceDebited
	if err := m.sagas.UpdateStatus(ctx, saga); err != nil {
		log.Printf("level=error component=mediator saga_id=%s msg=\"failed to persist SOURCE_DEBITED\" err=%q", saga.SagaID, err)
	}
	m.publishSagaEvent(ctx, "wallet.transfer.source.debited", saga, "")

	fromBalance, err := decodeBalanceAfter(debitEvent)
	if err != nil {
		return TransferResult{}, err
	}

	creditEvent, err := m.repo.Execute(ctx, toWalletID, func(w *domain.Wallet) (domain.Event, error) {
		return w.Deposit(amount, domain.NewTransactionID(), m.clock().UTC(), &domain.TransactionContext{
			Type:            domain.TransactionTransferIn,
			RelatedWalletID: fromWalletID,
		})
	})
	if err != nil {
		return m.compensate(ctx, saga, fromWalletID, amount, fromBalance, err)
	}

	creditTxID := creditEvent.TransactionID
	saga.CreditTxID = &creditTxID
	saga.Status = domain.SagaCompleted
	if err := m.sagas.UpdateStatus(ctx, saga); err != nil {
		log.Printf("level=error component=mediator saga_id=%s msg=\"failed to persist COMPLETED\" err=%q", saga.SagaID, err)
	}
	m.publishSagaEvent(ctx, "wallet.transfer.destination.credited", saga, "")
	m.publishSagaEvent(ctx, "wallet.transfer.completed", saga, "")

	toBalance, err := decodeBalanceAfter(creditEvent)
	if err != nil {
		return TransferResult{}, err
	}

	return TransferResult{Success: true, FromBalance: fromBalance, ToBalance: toBalance, Message: "transfer successful"}, nil
}

// compensate runs the logical refund (a deposit back onto the source
// wallet) after a destination credit fails. It never touches the
// destination wallet again — the source debit is the only state to undo.
func (m *Mediator) compensate(ctx context.Context, saga *domain.TransferSaga, fromWalletID string, amount int64, fromBalanceBeforeRefund int64, creditErr error) (TransferResult, error) {
	toWalletID := saga.ToWalletID
	saga.Status = domain.SagaCompensating
	saga.ErrorMessage = creditErr.Error()
	if err := m.sagas.UpdateStatus(ctx, saga); err != nil {
		log.Printf("level=error component=mediator saga_id=%s msg=\"failed to persist COMPENSATING\" err=%q", saga.SagaID, err)
	}
	m.publishSagaEvent(ctx, "wallet.transfer.compensation.initiated", saga, creditErr.Error())

	refundEvent, refundErr := m.repo.Execute(ctx, fromWalletID, func(w *domain.Wallet) (domain.Event, error) {
		return w.Deposit(amount, domain.NewTransactionID(), m.clock().UTC(), &domain.TransactionContext{
			Type:            domain.TransactionRefund,
			RelatedWalletID: toWalletID,
		})
	})
	if refundErr != nil {
		// Compensation itself failed: the saga is stuck in COMPENSATING and
		// needs an operator. This is the one path that is allowed to leave
		// money in a state the automation cannot resolve.
		log.Printf("level=critical component=mediator saga_id=%s msg=\"compensation failed, saga stuck in COMPENSATING\" credit_err=%q compensation_err=%q", saga.SagaID, creditErr, refundErr)
		return TransferResult{Success: false, Message: "transfer failed and compensation failed; manual intervention required", Critical: true}, nil
	}

	compensationTxID := refundEvent.TransactionID
	saga.CompensationTxID = &compensationTxID
	saga.Status = domain.SagaFailed
	if err := m.sagas.UpdateStatus(ctx, saga); err != nil {
		log.Printf("level=error component=mediator saga_id=%s msg=\"failed to persist FAILED after compensation\" err=%q", saga.SagaID, err)
	}
	m.publishSagaEvent(ctx, "wallet.transfer.source.refunded", saga, "")
	m.publishSagaEvent(ctx, "wallet.transfer.failed", saga, creditErr.Error())

	return TransferResult{Success: false, Message: fmt.Sprintf("transfer failed and was refunded: %v", creditErr)}, nil
}
