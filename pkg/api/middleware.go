package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/polisai/hookgate/internal/resilience"
	"github.com/polisai/hookgate/pkg/domain"
)

const (
	// IdentityHeader carries the caller's hex-encoded identity. Verifying that
	// the caller controls it is left to the fronting gateway.
	IdentityHeader = "X-Hookgate-Identity"
	// RequestIDHeader is echoed back on every response.
	RequestIDHeader = "X-Request-ID"
)

type contextKey string

const (
	identityContextKey  contextKey = "identity"
	requestIDContextKey contextKey = "requestID"
)

// requestID assigns a request id unless the caller supplied one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDContextKey, id)))
	})
}

// RequestIDFromContext returns the id assigned to the current request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// withIdentity parses IdentityHeader when present. A malformed header is
// rejected; a missing one is left for handlers that need a caller.
func withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(IdentityHeader)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		key, err := domain.ParseKey(raw)
		if err != nil || key.IsZero() {
			writeError(w, r, domain.ErrInvalidArgument, "malformed "+IdentityHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityContextKey, key)))
	})
}

// IdentityFromContext returns the caller identity, if the request carried one.
func IdentityFromContext(ctx context.Context) (domain.Key, bool) {
	key, ok := ctx.Value(identityContextKey).(domain.Key)
	return key, ok
}

func requireCaller(r *http.Request) (domain.Key, error) {
	key, ok := IdentityFromContext(r.Context())
	if !ok {
		return domain.Key{}, domain.ErrUnauthorized
	}
	return key, nil
}

// rateLimit applies the per-route token bucket keyed by client host. The
// identity header is not verified here, so it cannot select the bucket.
func (s *Server) rateLimit(route string, next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := clientHost(r)

		decision := s.limiter.Allow(route, subject)
		if decision.Limit > 0 {
			resilience.WriteRateLimitHeaders(w, decision)
		}
		if !decision.Allowed {
			if s.metrics != nil {
				s.metrics.ObserveRateLimited(route)
			}
			s.logger.WarnContext(r.Context(), "rate limit exceeded",
				"route", route,
				"subject", subject,
				"request_id", RequestIDFromContext(r.Context()),
			)
			writeErrorResponse(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientHost strips the source port from the remote address.
func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// observe logs and measures each request.
func (s *Server) observe(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		if s.metrics != nil {
			s.metrics.ObserveRequest(route, r.Method, rec.status, elapsed)
		}
		s.logger.DebugContext(r.Context(), "api request",
			"route", route,
			"method", r.Method,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}
