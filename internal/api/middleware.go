/**
 * @description
 * Idempotency middleware for the three mutating endpoints (deposit, withdraw,
 * transfer). Implements the check-and-lock before-hook and complete/release
 * after-hooks described in spec.md §4.6 and §9's decorator note: a request
 * handler wrapper around the raw handler, not logic baked into each handler.
 */

package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/transfa/wallet-service/internal/app"
)

const idempotencyHeader = "x-idempotency-key"

// responseRecorder buffers a handler's response so the idempotency
// middleware can inspect the status code before deciding whether to
// Complete or Release the lock, and so it can replay the exact bytes to the
// real client.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	return r.body.Write(b)
}

// RequireIdempotencyKey wraps next so every request must carry
// x-idempotency-key, and duplicate requests sharing a key in flight get a
// 409 while the first is still processing, or the first's cached response
// annotated with _cached/_idempotencyKey once it has completed.
func RequireIdempotencyKey(store *app.IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if key == "" {
				writeJSONError(w, http.StatusBadRequest, "missing required header: "+idempotencyHeader)
				return
			}

			record, err := store.CheckAndLock(r.Context(), key)
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, "idempotency store unavailable")
				return
			}

			switch record.Status {
			case app.IdempotencyInProgress:
				writeJSONError(w, http.StatusConflict, "a request with this idempotency key is already in progress")
				return
			case app.IdempotencyCompleted:
				writeCachedResponse(w, key, record.Response)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= 200 && rec.status < 300 {
				if completeErr := store.Complete(r.Context(), key, json.RawMessage(rec.body.Bytes())); completeErr != nil {
					// The command already succeeded, so its response is still
					// returned. The key keeps its in_progress status until the
					// TTL expires, so a retry with the same key gets a 409
					// instead of a replay in that window.
					writeRecordedResponse(w, rec)
					return
				}
			} else {
				_ = store.Release(r.Context(), key)
			}

			writeRecordedResponse(w, rec)
		})
	}
}

func writeRecordedResponse(w http.ResponseWriter, rec *responseRecorder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rec.status)
	w.Write(rec.body.Bytes())
}

// writeCachedResponse replays the first request's body verbatim (per
// spec.md §4.6, regardless of the new request's own body), annotated with
// the _cached/_idempotencyKey markers spec.md §6 requires.
func writeCachedResponse(w http.ResponseWriter, key string, cached json.RawMessage) {
	var fields map[string]interface{}
	if err := json.Unmarshal(cached, &fields); err != nil {
		fields = map[string]interface{}{}
	}
	fields["_cached"] = true
	fields["_idempotencyKey"] = key

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(fields)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
