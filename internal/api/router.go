/**
 * @description
 * This file sets up the HTTP router for the wallet service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as the idempotency guard on mutating endpoints.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/transfa/wallet-service/internal/app"
)

// Routes creates and returns the wallet service's HTTP router.
func Routes(h *Handlers, idempotency *app.IdempotencyStore) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/ping", h.PingHandler)
	r.Get("/balance/{walletId}", h.GetBalanceHandler)
	r.Get("/transactions/{walletId}", h.GetTransactionsHandler)

	r.Group(func(r chi.Router) {
		r.Use(RequireIdempotencyKey(idempotency))
		r.Post("/deposit", h.DepositHandler)
		r.Post("/withdraw", h.WithdrawHandler)
		r.Post("/transfer", h.TransferHandler)
	})

	return r
}
