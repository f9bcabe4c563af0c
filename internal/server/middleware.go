package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/annobridge/internal/messages"
	"github.com/raphaelgruber/annobridge/internal/signature"
)

// slowRequestThreshold is the duration above which requests are logged at WARN level.
const slowRequestThreshold = 500 * time.Millisecond

type ctxKey int

const (
	signatureValidKey ctxKey = iota
	principalKey
)

// Principal is the authenticated caller established by the signature gate
// for the duration of one request. Protocol callers act with administrative
// capability so the downstream registry operations succeed.
type Principal struct {
	Name  string
	Admin bool
}

// SignatureValid reports whether the signature gate accepted the request.
func SignatureValid(ctx context.Context) bool {
	v, _ := ctx.Value(signatureValidKey).(bool)
	return v
}

// PrincipalFrom returns the request principal, if the gate set one.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

func markAuthenticated(r *http.Request) *http.Request {
	ctx := context.WithValue(r.Context(), signatureValidKey, true)
	ctx = context.WithValue(ctx, principalKey, Principal{Name: "human-protocol", Admin: true})
	return r.WithContext(ctx)
}

// SignatureGate authenticates inbound protocol requests against the
// configured key before any handler runs. The wildcard key marks every
// request valid without reading the body. Otherwise the signature header
// must be present and match the exact raw request body; the body is
// buffered so the handler can re-read it.
func SignatureGate(key string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == signature.AnyKey {
				next.ServeHTTP(w, markAuthenticated(r))
				return
			}

			sig := r.Header.Get(messages.HeaderHumanSignature)
			if sig == "" {
				logger.Warn("request without signature header rejected", "path", r.URL.Path)
				http.Error(w, "missing signature header", http.StatusBadRequest)
				return
			}

			body, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				http.Error(w, "unreadable request body", http.StatusBadRequest)
				return
			}

			if !signature.Verify(key, body, sig) {
				logger.Warn("request with invalid signature rejected", "path", r.URL.Path)
				http.Error(w, "invalid signature", http.StatusBadRequest)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, markAuthenticated(r))
		})
	}
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogging logs every request with its status and timing. Slow
// requests are logged at WARN level.
func RequestLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", duration.Milliseconds(),
		}
		if duration > slowRequestThreshold {
			logger.Warn("slow request", attrs...)
		} else {
			logger.Debug("request completed", attrs...)
		}
	})
}

// Recover converts handler panics into a 500 response instead of tearing
// down the connection.
func Recover(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("handler panic", "path", r.URL.Path, "panic", rec)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
