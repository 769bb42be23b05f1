package idempotency

import (
	"log/slog"
	"net/http"
)

const HeaderKey = "Idempotency-Key"

// Middleware rejects repeated requests carrying the same Idempotency-Key header with 409.
// Keys share one namespace per route regardless of caller, so clients should send unique
// values such as UUIDs. Requests without the header pass through untouched. A key is
// released again when the wrapped handler answers with a 5xx so the client can retry.
func Middleware(log *slog.Logger, store *Store, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			full := store.RequestKey(route, key)
			seen, err := store.Seen(r.Context(), full)
			if err != nil {
				log.Error("idempotency check failed", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if seen {
				log.Info("duplicate request rejected", "key", full)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(`{"error":"duplicate_request","message":"request with this Idempotency-Key was already processed"}`))
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= http.StatusInternalServerError {
				if err := store.Forget(r.Context(), full); err != nil {
					log.Error("idempotency release failed", "key", full, "err", err)
				}
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
