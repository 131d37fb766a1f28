// Package httpapi exposes the thumbnail pipeline over HTTP: multipart
// generation, JSON follow-up refinement and a liveness probe. The same
// handler serves the standalone server and the Lambda function.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/fpang/thumbnail-studio/internal/ratelimit"
	"github.com/fpang/thumbnail-studio/internal/thumbnail"
)

// Pipeline is what the handlers need from *thumbnail.Pipeline.
type Pipeline interface {
	Generate(ctx context.Context, req *thumbnail.GenerationRequest) (*thumbnail.PublishedAsset, error)
	Refine(ctx context.Context, req thumbnail.FollowUpRequest) (*thumbnail.PublishedAsset, error)
}

// DefaultMaxFileBytes is the per-file upload ceiling.
const DefaultMaxFileBytes = 5 << 20

// Options configures the router. Limiter is required.
type Options struct {
	Pipeline           Pipeline
	Limiter            *ratelimit.Limiter
	TrustProxyHeaders  bool
	MaxFileBytes       int64
	OriginVerifySecret string
}

type server struct {
	pipeline     Pipeline
	limiter      *ratelimit.Limiter
	trustProxy   bool
	maxFileBytes int64
	originSecret string
	validate     *validator.Validate
	now          func() time.Time
}

// NewRouter builds the chi router with every route and middleware.
func NewRouter(opts Options) http.Handler {
	s := &server{
		pipeline:     opts.Pipeline,
		limiter:      opts.Limiter,
		trustProxy:   opts.TrustProxyHeaders,
		maxFileBytes: opts.MaxFileBytes,
		originSecret: opts.OriginVerifySecret,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		now:          time.Now,
	}
	if s.maxFileBytes <= 0 {
		s.maxFileBytes = DefaultMaxFileBytes
	}
	return s.routes()
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.withRecover)
	r.Use(withMetrics)
	r.Use(withRequestLog)

	for _, prefix := range []string{"", "/api"} {
		r.Get(prefix+"/health", s.handleHealth)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.withOriginVerify)
		r.Use(s.withRateLimit)
		for _, prefix := range []string{"", "/api"} {
			r.Post(prefix+"/generate", s.handleGenerate)
			r.Post(prefix+"/generate/follow-up", s.handleFollowUp)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusNotFound, failure("Route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusMethodNotAllowed, failure("Method not allowed"))
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"message":   "Server is healthy",
		"timestamp": s.now().UTC().Format("2006-01-02T15:04:05.000Z"),
	})
}
