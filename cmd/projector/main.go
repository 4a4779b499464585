/**
 * @description
 * Entry point for the wallet service's asynchronous consumers: the
 * projection consumer (C7), which keeps the wallet/transaction read models
 * current, and the fraud consumer (C8), which evaluates fraud rules against
 * the same event stream on an independent queue. Both run under a single
 * errgroup so either one's fatal startup error brings the process down
 * together rather than leaving a half-running deployment.
 *
 * @dependencies
 * - golang.org/x/sync/errgroup: Coordinates the two consumer goroutines.
 * - github.com/jackc/pgx/v5/pgxpool: PostgreSQL connection pooling.
 * - internal/app, internal/config, internal/store: Internal packages.
 * - pkg/rabbitmq: Event bus consumer.
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/transfa/wallet-service/internal/app"
	"github.com/transfa/wallet-service/internal/config"
	"github.com/transfa/wallet-service/internal/store"
	"github.com/transfa/wallet-service/pkg/rabbitmq"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	ctx := context.Background()

	readPool, err := store.NewPool(ctx, cfg.DBReadURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"read pool connect failed\" err=%v", err)
	}
	defer readPool.Close()

	fraudPool, err := store.NewPool(ctx, cfg.DBFraudURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"fraud pool connect failed\" err=%v", err)
	}
	defer fraudPool.Close()

	projections := store.NewProjectionStore(readPool)
	fraud := store.NewFraudStore(fraudPool)

	projectionConsumer := app.NewProjectionConsumer(projections)
	fraudConsumer := app.NewFraudConsumer(fraud)

	projectionBroker, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"projection consumer dial failed\" err=%v", err)
	}
	defer projectionBroker.Close()

	fraudBroker, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"fraud consumer dial failed\" err=%v", err)
	}
	defer fraudBroker.Close()

	walletEventBindings := func(handle func([]byte) bool) map[string]func([]byte) bool {
		return map[string]func([]byte) bool{
			"wallet.money.deposited": handle,
			"wallet.money.withdrawn": handle,
		}
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := projectionBroker.ConsumeWithBindings(rabbitmq.WalletEventsExchange, cfg.ProjectionQueueName, walletEventBindings(projectionConsumer.HandleMessage)); err != nil {
			return err
		}
		log.Printf("level=info component=projector msg=\"projection consumer started\" queue=%s", cfg.ProjectionQueueName)
		return nil
	})
	g.Go(func() error {
		if err := fraudBroker.ConsumeWithBindings(rabbitmq.WalletEventsExchange, cfg.FraudQueueName, walletEventBindings(fraudConsumer.HandleMessage)); err != nil {
			return err
		}
		log.Printf("level=info component=projector msg=\"fraud consumer started\" queue=%s", cfg.FraudQueueName)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("level=fatal component=projector msg=\"consumer startup failed\" err=%v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=projector msg=\"shutdown complete\"")
}
