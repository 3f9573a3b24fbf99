package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"bookkeeper/internal/analysis"
	"bookkeeper/internal/cache"
	"bookkeeper/internal/log"
	"bookkeeper/internal/services"
	"bookkeeper/internal/sheets"
	"bookkeeper/internal/storage"
)

// DefaultMaxUploadBytes bounds request bodies when no limit is configured.
const DefaultMaxUploadBytes = 5 << 20

// AnalysisAPI is the service surface behind the HTTP routes.
type AnalysisAPI interface {
	AnalyzeUpload(ctx context.Context, req services.UploadRequest) (*storage.Analysis, error)
	AnalyzeSheet(ctx context.Context, ref sheets.Ref, h analysis.Household) (*storage.Analysis, error)
	Get(ctx context.Context, id string) (*storage.Analysis, error)
	RequestFeedback(ctx context.Context, analysisID, question string) (*storage.FeedbackJob, error)
	GetFeedback(ctx context.Context, id int64) (*storage.FeedbackJob, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the bookkeeper HTTP API.
type Server struct {
	http.Server
	svc            AnalysisAPI
	ready          Pinger
	logger         *log.Logger
	maxUploadBytes int64
	cacheStats     func() cache.Stats

	rateLimiter *rateLimiter
	security    *securityMetrics
	started     time.Time

	shutdownOnce sync.Once
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithReadiness makes /readyz ping p.
func WithReadiness(p Pinger) ServerOption {
	return func(s *Server) { s.ready = p }
}

// WithMaxUploadBytes bounds every request body.
func WithMaxUploadBytes(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithLogger sets the base logger for access logs.
func WithLogger(l *log.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithRateLimit sets the per-client request budget per minute.
func WithRateLimit(perMinute int) ServerOption {
	return func(s *Server) { s.rateLimiter = newRateLimiter(perMinute) }
}

// WithCacheStats exposes report cache counters on /metrics.
func WithCacheStats(fn func() cache.Stats) ServerOption {
	return func(s *Server) { s.cacheStats = fn }
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc AnalysisAPI, opts ...ServerOption) *Server {
	s := &Server{
		svc:            svc,
		maxUploadBytes: DefaultMaxUploadBytes,
		rateLimiter:    newRateLimiter(DefaultRequestsPerMinute),
		security:       &securityMetrics{},
		started:        time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(log.DefaultConfig())
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("POST /api/analyses", s.handleCreateAnalysis)
	mux.HandleFunc("POST /api/analyses/sheets", s.handleCreateSheetAnalysis)
	mux.HandleFunc("GET /api/analyses/{id}", s.handleGetAnalysis)
	mux.HandleFunc("GET /api/analyses/{id}/report", s.handleGetReport)
	mux.HandleFunc("POST /api/analyses/{id}/feedback", s.handleRequestFeedback)
	mux.HandleFunc("GET /api/feedback/{id}", s.handleGetFeedback)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           log.Middleware(s.logger)(s.withSecurity(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go s.rateLimiter.startCleanup(5 * time.Minute)
	return s
}

// withSecurity sets security headers, bounds the body, counts probe traffic
// and rate limits API calls per client IP.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w.Header())
		logger := log.FromContext(r.Context())
		clientIP := extractClientIP(r)

		if detectSuspiciousRequest(r, s.security) {
			logger.WarnContext(r.Context(), "Suspicious request detected",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				"user_agent", r.Header.Get("User-Agent"))
		}

		if r.URL.Path != "/healthz" && r.URL.Path != "/readyz" && !s.rateLimiter.allow(clientIP) {
			logger.WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, clientIP, log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
			return
		}

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops background goroutines and drains connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(s.rateLimiter.stop)
	return s.Server.Shutdown(ctx)
}
