package app

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/transfa/wallet-service/internal/domain"
)

type appendFault struct {
	skip int // let this many Appends through first
	fail int // then fail this many
}

// fakeEventLog is an in-memory stand-in for store.EventStore, good enough to
// exercise the aggregate repository's load-fold-append cycle and its
// optimistic-concurrency mapping without a live Postgres instance.
type fakeEventLog struct {
	mu         sync.Mutex
	events     map[string][]domain.Event
	nextID     int64
	failAppend map[string]*appendFault
}

func newFakeEventLog() *fakeEventLog {
	return &fakeEventLog{events: make(map[string][]domain.Event), failAppend: make(map[string]*appendFault)}
}

// failAppendAfter lets the next skip Append calls for aggregateID succeed,
// then fails the following fail calls. Used to simulate a destination-credit
// or refund failure at a specific point mid-saga.
func (f *fakeEventLog) failAppendAfter(aggregateID string, skip, fail int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAppend[aggregateID] = &appendFault{skip: skip, fail: fail}
}

func (f *fakeEventLog) Append(ctx context.Context, e domain.Event) (domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if fault, ok := f.failAppend[e.AggregateID]; ok {
		if fault.skip > 0 {
			fault.skip--
		} else if fault.fail > 0 {
			fault.fail--
			return domain.Event{}, fmt.Errorf("simulated append failure for %s", e.AggregateID)
		}
	}

	existing := f.events[e.AggregateID]
	for _, prior := range existing {
		if prior.Version == e.Version {
			return domain.Event{}, domain.ErrConcurrencyConflict
		}
	}

	f.nextID++
	e.ID = f.nextID
	f.events[e.AggregateID] = append(existing, e)
	return e, nil
}

func (f *fakeEventLog) Load(ctx context.Context, aggregateID string) ([]domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Event, len(f.events[aggregateID]))
	copy(out, f.events[aggregateID])
	return out, nil
}

// fakePublisher records every published event/message for assertions.
type fakePublisher struct {
	mu             sync.Mutex
	walletEvents   []domain.Event
	sagaRoutingKey []string
}

func (f *fakePublisher) PublishWalletEvent(ctx context.Context, e domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.walletEvents = append(f.walletEvents, e)
	return nil
}

func (f *fakePublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sagaRoutingKey = append(f.sagaRoutingKey, routingKey)
	return nil
}

// fakeSagaRepository is an in-memory stand-in for store.SagaStore.
type fakeSagaRepository struct {
	mu     sync.Mutex
	sagas  map[string]*domain.TransferSaga
}

func newFakeSagaRepository() *fakeSagaRepository {
	return &fakeSagaRepository{sagas: make(map[string]*domain.TransferSaga)}
}

func (f *fakeSagaRepository) Create(ctx context.Context, saga *domain.TransferSaga) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *saga
	f.sagas[saga.SagaID.String()] = &cp
	return nil
}

func (f *fakeSagaRepository) UpdateStatus(ctx context.Context, saga *domain.TransferSaga) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sagas[saga.SagaID.String()]; !ok {
		return domain.ErrSagaNotFound
	}
	cp := *saga
	f.sagas[saga.SagaID.String()] = &cp
	return nil
}

func (f *fakeSagaRepository) get(sagaID string) *domain.TransferSaga {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sagas[sagaID]
}

func newTestMediator() (*Mediator, *fakeEventLog, *fakePublisher, *fakeSagaRepository) {
	log := newFakeEventLog()
	pub := &fakePublisher{}
	repo := NewAggregateRepository(log, pub)
	sagas := newFakeSagaRepository()
	return NewMediator(repo, sagas, pub), log, pub, sagas
}

func TestMediator_DepositCreditsWalletFromZero(t *testing.T) {
	m, _, pub, _ := newTestMediator()
	result, err := m.Deposit(context.Background(), "wallet-1", 1000)
	if err != nil {
		t.Fatalf("Deposit returned error: %v", err)
	}
	if !result.Success || result.Balance != 1000 {
		t.Fatalf("expected success with balance 1000, got %+v", result)
	}
	if len(pub.walletEvents) != 1 {
		t.Fatalf("expected one published wallet event, got %d", len(pub.walletEvents))
	}
}

func TestMediator_WithdrawInsufficientFundsIsSuccessFalseNotError(t *testing.T) {
	m, _, _, _ := newTestMediator()
	result, err := m.Withdraw(context.Background(), "wallet-1", 500)
	if err != nil {
		t.Fatalf("expected no error for insufficient funds, got %v", err)
	}
	if result.Success {
		t.Fatal("expected Success=false for insufficient funds")
	}
}

func TestMediator_TransferMovesBalanceBetweenWallets(t *testing.T) {
	m, _, _, sagas := newTestMediator()
	ctx := context.Background()

	if _, err := m.Deposit(ctx, "wallet-a", 1000); err != nil {
		t.Fatalf("seed deposit failed: %v", err)
	}

	result, err := m.Transfer(ctx, "wallet-a", "wallet-b", 400)
	if err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected successful transfer, got %+v", result)
	}
	if result.FromBalance != 600 || result.ToBalance != 400 {
		t.Fatalf("expected from=600 to=400, got from=%d to=%d", result.FromBalance, result.ToBalance)
	}

	found := false
	for _, saga := range sagas.sagas {
		if saga.Status == domain.SagaCompleted {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the saga to reach COMPLETED")
	}
}

func TestMediator_TransferInsufficientFundsFailsSagaWithoutDebiting(t *testing.T) {
	m, _, _, sagas := newTestMediator()
	ctx := context.Background()

	result, err := m.Transfer(ctx, "wallet-empty", "wallet-b", 100)
	if err != nil {
		t.Fatalf("expected no error for insufficient funds, got %v", err)
	}
	if result.Success {
		t.Fatal("expected Success=false")
	}

	for _, saga := range sagas.sagas {
		if saga.Status != domain.SagaFailed {
			t.Fatalf("expected saga FAILED, got %s", saga.Status)
		}
	}
}

func TestMediator_TransferCompensatesWhenCreditFails(t *testing.T) {
	m, log, _, sagas := newTestMediator()
	ctx := context.Background()

	if _, err := m.Deposit(ctx, "wallet-a", 1000); err != nil {
		t.Fatalf("seed deposit failed: %v", err)
	}
	log.failAppendAfter("wallet-b", 0, 1)

	result, err := m.Transfer(ctx, "wallet-a", "wallet-b", 400)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Success {
		t.Fatal("expected Success=false after compensation")
	}
	if result.Critical {
		t.Fatal("expected Critical=false: compensation itself succeeded")
	}

	wallet, err := m.repo.Load(ctx, "wallet-a")
	if err != nil {
		t.Fatalf("load wallet-a: %v", err)
	}
	if wallet.Balance != 1000 {
		t.Fatalf("expected source wallet refunded back to 1000, got %d", wallet.Balance)
	}

	found := false
	for _, saga := range sagas.sagas {
		if saga.Status == domain.SagaFailed {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the saga to end FAILED after compensation")
	}
}

func TestMediator_TransferCriticalWhenCompensationAlsoFails(t *testing.T) {
	m, log, _, sagas := newTestMediator()
	ctx := context.Background()

	if _, err := m.Deposit(ctx, "wallet-a", 1000); err != nil {
		t.Fatalf("seed deposit failed: %v", err)
	}
	log.failAppendAfter("wallet-b", 0, 1)
	log.failAppendAfter("wallet-a", 1, 1) // let the debit through, then fail the refund

	result, err := m.Transfer(ctx, "wallet-a", "wallet-b", 400)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Success {
		t.Fatal("expected Success=false")
	}
	if !result.Critical {
		t.Fatal("expected Critical=true when compensation itself fails")
	}

	found := false
	for _, saga := range sagas.sagas {
		if saga.Status == domain.SagaCompensating {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the saga to remain stuck in COMPENSATING")
	}
}
