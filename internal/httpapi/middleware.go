package httpapi

import (
	"fmt"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/fpang/thumbnail-studio/internal/metrics"
	"github.com/fpang/thumbnail-studio/internal/ratelimit"
)

// withOriginVerify rejects requests lacking the correct x-origin-verify
// header. CloudFront injects this header via a custom origin header, so
// direct API Gateway access is blocked.
func (s *server) withOriginVerify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.originSecret == "" {
			// Secret not configured: allow through (local dev)
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("x-origin-verify") != s.originSecret {
			log.Warn().Str("path", r.URL.Path).Msg("Blocked request: missing or invalid x-origin-verify header")
			httpError(w, http.StatusForbidden, "Forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit admits or rejects the request before any body is read.
func (s *server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := ratelimit.ClientIdentity(r, s.trustProxy)
		d := s.limiter.Admit(identity)
		if !d.Allowed {
			secs := int(math.Ceil(d.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			log.Warn().
				Str("requestId", middleware.GetReqID(r.Context())).
				Str("identity", identity).
				Int("count", d.Count).
				Int("retryAfter", secs).
				Msg("Rate limit exceeded")
			metrics.New(metrics.Namespace).Count("RateLimited").Property("path", r.URL.Path).Flush()

			w.Header().Set("Retry-After", strconv.Itoa(secs))
			respondJSON(w, http.StatusTooManyRequests, apiResponse{
				Success:    false,
				Message:    fmt.Sprintf("Too many requests, please try again in %d seconds", secs),
				RetryAfter: secs,
			})
			return
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.limiter.Limit()))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		next.ServeHTTP(w, r)
	})
}

// withRecover turns a handler panic into a logged 500.
func (s *server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error().
					Str("requestId", middleware.GetReqID(r.Context())).
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("Handler panic")
				httpError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// withMetrics emits per-request EMF metrics: RequestLatencyMs and
// RequestCount, with the chi route pattern as the Endpoint dimension.
func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(sr, r)

		metrics.New(metrics.Namespace).
			Dimension("Endpoint", routePattern(r)).
			Duration("RequestLatencyMs", time.Since(start)).
			Count("RequestCount").
			Property("method", r.Method).
			Property("statusCode", sr.statusCode).
			Property("requestId", middleware.GetReqID(r.Context())).
			Flush()
	})
}

// withRequestLog logs one line per request at a level matching the outcome.
func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sr, r)

		evt := log.Info()
		switch {
		case sr.statusCode >= 500:
			evt = log.Error()
		case sr.statusCode >= 400:
			evt = log.Warn()
		}
		evt.
			Str("requestId", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sr.statusCode).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// routePattern avoids high-cardinality dimensions from unmatched paths.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
