package app

import (
	"context"
	"fmt"
	"log"

	"github.com/transfa/wallet-service/internal/domain"
)

// EventLog is the slice of store.EventStore the aggregate repository needs.
// Kept as an interface so the mediator's command logic can be unit tested
// against a fake log instead of a live Postgres instance.
type EventLog interface {
	Append(ctx context.Context, e domain.Event) (domain.Event, error)
	Load(ctx context.Context, aggregateID string) ([]domain.Event, error)
}

// AggregateRepository is the command-side boundary (C3): every write to a
// wallet goes through Execute, which loads the current event prefix, folds
// it into state, lets the caller's command function decide what event to
// produce, appends it, and publishes it on success. Callers never see the
// event store or the bus directly.
type AggregateRepository struct {
	events    EventLog
	publisher EventPublisher
}

// EventPublisher is the slice of pkg/rabbitmq's Publisher the app package
// needs. Kept as an interface so unit tests can stub it without standing up
// a broker. Publish is also used directly by the mediator to emit the
// saga-lifecycle events spec.md §4.4 names (TransferInitiated,
// SourceWalletDebited, …), which have no single domain.Event behind them.
type EventPublisher interface {
	PublishWalletEvent(ctx context.Context, e domain.Event) error
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// NewAggregateRepository wires an event store to a publisher.
func NewAggregateRepository(events EventLog, publisher EventPublisher) *AggregateRepository {
	return &AggregateRepository{events: events, publisher: publisher}
}

// Load folds a wallet's full event history into its current state.
func (r *AggregateRepository) Load(ctx context.Context, walletID string) (*domain.Wallet, error) {
	events, err := r.events.Load(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("load wallet %s: %w", walletID, err)
	}
	return domain.Fold(walletID, events), nil
}

// Command is a pure function over the freshly loaded wallet state that
// decides what event (if any) to produce. It returns the wallet aggregate's
// domain errors untouched (ErrInvalidAmount, ErrInsufficientFunds) so
// Execute never has to special-case them.
type Command func(w *domain.Wallet) (domain.Event, error)

// Execute loads the wallet, runs cmd to get the candidate event, appends it,
// and publishes on success. A concurrency conflict on append is returned to
// the caller as-is (domain.ErrConcurrencyConflict); neither Execute nor the
// mediator retries it.
func (r *AggregateRepository) Execute(ctx context.Context, walletID string, cmd Command) (domain.Event, error) {
	wallet, err := r.Load(ctx, walletID)
	if err != nil {
		return domain.Event{}, err
	}

	event, err := cmd(wallet)
	if err != nil {
		return domain.Event{}, err
	}

	appended, err := r.events.Append(ctx, event)
	if err != nil {
		return domain.Event{}, err
	}

	if r.publisher != nil {
		if pubErr := r.publisher.PublishWalletEvent(ctx, appended); pubErr != nil {
			// The event is already durably appended; folding this into the
			// returned error would make the caller treat a successful write
			// as a failed command, and a client retrying the same
			// idempotency key would re-execute it against a wallet that
			// already recorded the first event (a real double-credit or
			// double-debit). A publish failure never loses the write, so it
			// is logged, not propagated. The event is not re-published
			// later: the read model and fraud pipeline never receive it,
			// and cmd/recover only reports stuck sagas.
			log.Printf("level=error component=repository wallet_id=%s event_type=%s msg=\"publish failed after append; read model and fraud pipeline will lag\" err=%q", walletID, appended.EventType, pubErr)
		}
	}

	return appended, nil
}
