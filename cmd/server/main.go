/**
 * @description
 * This is the main entry point for the wallet service's command/query HTTP
 * edge. It initializes configuration, the write/read database pools, the
 * Redis-backed idempotency store, the RabbitMQ producer, the aggregate
 * repository, the mediator, and the HTTP server, then wires them together
 * and starts serving requests.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5/pgxpool: PostgreSQL connection pooling.
 * - github.com/redis/go-redis/v9: Redis client for the idempotency store.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/rabbitmq: Event bus producer.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/transfa/wallet-service/internal/api"
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

	writePool, err := store.NewPool(ctx, cfg.DBWriteURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"write pool connect failed\" err=%v", err)
	}
	defer writePool.Close()

	readPool, err := store.NewPool(ctx, cfg.DBReadURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"read pool connect failed\" err=%v", err)
	}
	defer readPool.Close()
	log.Println("level=info component=bootstrap msg=\"database pools connected\"")

	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"redis url parse failed\" err=%v", err)
	}
	redisClient := redis.NewClient(redisOptions)
	defer redisClient.Close()
	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		log.Fatalf("level=fatal component=bootstrap msg=\"redis ping failed\" err=%v", err)
	}
	cancelPing()
	log.Println("level=info component=bootstrap msg=\"redis connected\"")

	var publisher rabbitmq.Publisher
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		publisher = &rabbitmq.EventProducerFallback{}
	} else {
		defer producer.Close()
		publisher = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	events := store.NewEventStore(writePool)
	sagas := store.NewSagaStore(writePool)
	projections := store.NewProjectionStore(readPool)

	repo := app.NewAggregateRepository(events, publisher)
	mediator := app.NewMediator(repo, sagas, publisher)
	idempotency := app.NewIdempotencyStore(redisClient, cfg.IdempotencyKeyPrefix, time.Duration(cfg.IdempotencyTTLSeconds)*time.Second)

	handlers := api.NewHandlers(mediator, projections)
	router := api.Routes(handlers, idempotency)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{Addr: serverAddr, Handler: router}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}
	log.Println("level=info component=http msg=\"shutdown complete\"")
}
