/**
 * @description
 * This file contains the HTTP handlers for the wallet service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the mediator/query stores, and writing the HTTP response. They act as
 * the bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, errors, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/transfa/wallet-service/internal/app"
	"github.com/transfa/wallet-service/internal/domain"
	"github.com/transfa/wallet-service/internal/store"
)

// Handlers holds the mediator and query-side stores the HTTP edge reads and
// writes through. It never touches the event log or saga table directly —
// every write goes through the mediator (C5).
type Handlers struct {
	mediator    *app.Mediator
	projections *store.ProjectionStore
}

// NewHandlers wires the command mediator and the read-model store.
func NewHandlers(mediator *app.Mediator, projections *store.ProjectionStore) *Handlers {
	return &Handlers{mediator: mediator, projections: projections}
}

// PingHandler serves GET /ping per spec.md §6.
func (h *Handlers) PingHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"commandService": "ok",
		"queryService":   "ok",
	})
}

type depositRequest struct {
	WalletID string `json:"walletId"`
	Amount   int64  `json:"amount"`
}

type depositResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Balance int64  `json:"balance"`
}

// DepositHandler serves POST /deposit.
func (h *Handlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.WalletID == "" {
		h.writeError(w, http.StatusBadRequest, "walletId is required")
		return
	}

	result, err := h.mediator.Deposit(r.Context(), req.WalletID, req.Amount)
	if err != nil {
		h.writeMediatorError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, depositResponse{
		Success: result.Success,
		Message: result.Message,
		Balance: result.Balance,
	})
}

// WithdrawHandler serves POST /withdraw. Per spec.md §6, insufficient funds
// is surfaced as a 201 with success:false rather than a 4xx — the domain
// failure is preserved in the response body, not the status code.
func (h *Handlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.WalletID == "" {
		h.writeError(w, http.StatusBadRequest, "walletId is required")
		return
	}

	result, err := h.mediator.Withdraw(r.Context(), req.WalletID, req.Amount)
	if err != nil {
		h.writeMediatorError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, depositResponse{
		Success: result.Success,
		Message: result.Message,
		Balance: result.Balance,
	})
}

type transferRequest struct {
	FromWalletID string `json:"fromWalletId"`
	ToWalletID   string `json:"toWalletId"`
	Amount       int64  `json:"amount"`
}

type transferResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	FromBalance int64  `json:"fromBalance,omitempty"`
	ToBalance   int64  `json:"toBalance,omitempty"`
	Critical    bool   `json:"critical,omitempty"`
}

// TransferHandler serves POST /transfer.
func (h *Handlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.FromWalletID == "" || req.ToWalletID == "" {
		h.writeError(w, http.StatusBadRequest, "fromWalletId and toWalletId are required")
		return
	}

	result, err := h.mediator.Transfer(r.Context(), req.FromWalletID, req.ToWalletID, req.Amount)
	if err != nil {
		h.writeMediatorError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, transferResponse{
		Success:     result.Success,
		Message:     result.Message,
		FromBalance: result.FromBalance,
		ToBalance:   result.ToBalance,
		Critical:    result.Critical,
	})
}

type balanceResponse struct {
	ID        string `json:"id"`
	Balance   int64  `json:"balance"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// GetBalanceHandler serves GET /balance/{walletId}.
func (h *Handlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "walletId")
	if walletID == "" {
		h.writeError(w, http.StatusBadRequest, "walletId is required")
		return
	}

	wb, err := h.projections.GetWalletBalance(r.Context(), walletID)
	if err != nil {
		if errors.Is(err, domain.ErrWalletNotFound) {
			h.writeError(w, http.StatusNotFound, "wallet not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_balance wallet_id=%s err=%v", walletID, err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, balanceResponse{
		ID:        wb.WalletID,
		Balance:   wb.Balance,
		CreatedAt: wb.CreatedAt.Format("2006-01-02T15:04:05.999999999Z07:00"),
		UpdatedAt: wb.UpdatedAt.Format("2006-01-02T15:04:05.999999999Z07:00"),
	})
}

// transactionResponse is the wire shape of one row in spec.md §3's
// Transaction projection. Id is derived from the underlying transaction_id,
// suffixed -out/-in for the two legs of a transfer, since a single transfer
// command mints a distinct transaction_id per leg already classified via
// Type/RelatedWalletId — the suffix just makes that leg visible in the id
// itself, the way spec.md describes it.
type transactionResponse struct {
	ID              string `json:"id"`
	WalletID        string `json:"walletId"`
	Type            string `json:"type"`
	Amount          int64  `json:"amount"`
	BalanceAfter    int64  `json:"balanceAfter"`
	RelatedWalletID string `json:"relatedWalletId,omitempty"`
	Timestamp       string `json:"timestamp"`
}

func newTransactionResponse(rec store.TransactionRecord) transactionResponse {
	id := rec.TransactionID
	switch rec.Type {
	case domain.TransactionTransferOut:
		id += "-out"
	case domain.TransactionTransferIn:
		id += "-in"
	}
	return transactionResponse{
		ID:              id,
		WalletID:        rec.WalletID,
		Type:            string(rec.Type),
		Amount:          rec.Amount,
		BalanceAfter:    rec.BalanceAfter,
		RelatedWalletID: rec.RelatedWalletID,
		Timestamp:       rec.OccurredAt,
	}
}

// GetTransactionsHandler serves GET /transactions/{walletId}.
func (h *Handlers) GetTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "walletId")
	if walletID == "" {
		h.writeError(w, http.StatusBadRequest, "walletId is required")
		return
	}

	limit, err := parseOptionalInt(r.URL.Query().Get("limit"), 100)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	records, err := h.projections.ListTransactions(r.Context(), walletID, limit)
	if err != nil {
		log.Printf("level=error component=api endpoint=get_transactions wallet_id=%s err=%v", walletID, err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	transactions := make([]transactionResponse, len(records))
	for i, rec := range records {
		transactions[i] = newTransactionResponse(rec)
	}

	h.writeJSON(w, http.StatusOK, transactions)
}

// decodeJSON decodes a request body strictly (unknown fields rejected per
// spec.md §6's "malformed JSON or unknown fields" validation rule) and
// writes a 400 on failure.
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeMediatorError maps mediator-layer errors that are not themselves
// domain failures (those come back as success:false, not an error) to HTTP
// status codes per spec.md §7's error-kind table.
func (h *Handlers) writeMediatorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrConcurrencyConflict):
		h.writeError(w, http.StatusServiceUnavailable, "concurrency conflict, retry with the same idempotency key")
	default:
		log.Printf("level=error component=api msg=\"mediator command failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func parseOptionalInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
