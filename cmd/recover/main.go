/**
 * @description
 * cmd/recover is the saga recovery scanner (spec.md §9 open question 2). It
 * periodically lists transfer sagas stuck in a non-terminal state past the
 * configured staleness window, and sagas parked in COMPENSATING, and logs
 * them for operator attention. It does not attempt to auto-resolve
 * COMPENSATING — a failed compensation is defined as needing a human, per
 * the saga's own IsTerminal contract — this process only surfaces the work.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: PostgreSQL connection pooling.
 * - internal/config, internal/store: Internal packages.
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/transfa/wallet-service/internal/config"
	"github.com/transfa/wallet-service/internal/store"
)

const scanInterval = 1 * time.Minute

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writePool, err := store.NewPool(ctx, cfg.DBWriteURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"write pool connect failed\" err=%v", err)
	}
	defer writePool.Close()

	sagas := store.NewSagaStore(writePool)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	scan(ctx, sagas, cfg.SagaRecoveryStuckSeconds)
	for {
		select {
		case <-ticker.C:
			scan(ctx, sagas, cfg.SagaRecoveryStuckSeconds)
		case <-stop:
			log.Println("level=info component=recover msg=\"shutdown complete\"")
			return
		}
	}
}

// scan reports, but never mutates, stuck sagas. A saga in INITIATED or
// SOURCE_DEBITED past the staleness window means the mediator process that
// owned it died mid-flight; one in COMPENSATING means its own refund
// attempt already failed once. Both need an operator's eyes, not automated
// retry — retrying a saga the mediator already gave up on without knowing
// why it failed risks a second, different failure mode.
func scan(ctx context.Context, sagas *store.SagaStore, stuckSeconds int) {
	scanCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stuck, err := sagas.ListStuck(scanCtx, stuckSeconds)
	if err != nil {
		log.Printf("level=error component=recover msg=\"list stuck sagas failed\" err=%v", err)
	}
	for _, saga := range stuck {
		log.Printf("level=warn component=recover msg=\"saga stuck past staleness window\" saga_id=%s status=%s from=%s to=%s amount=%d updated_at=%s",
			saga.SagaID, saga.Status, saga.FromWalletID, saga.ToWalletID, saga.Amount, saga.UpdatedAt.Format(time.RFC3339))
	}

	compensating, err := sagas.ListCompensating(scanCtx)
	if err != nil {
		log.Printf("level=error component=recover msg=\"list compensating sagas failed\" err=%v", err)
	}
	for _, saga := range compensating {
		log.Printf("level=critical component=recover msg=\"saga requires manual intervention\" saga_id=%s from=%s to=%s amount=%d error=%q",
			saga.SagaID, saga.FromWalletID, saga.ToWalletID, saga.Amount, saga.ErrorMessage)
	}

	log.Printf("level=info component=recover msg=\"scan complete\" stuck_count=%d compensating_count=%d", len(stuck), len(compensating))
}
