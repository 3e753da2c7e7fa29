package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"moneytrack/internal/log"
	"moneytrack/internal/middleware/ratelimit"
	"moneytrack/internal/middleware/security"
	"moneytrack/internal/middleware/trace"
	"moneytrack/internal/services"
)

// Options wires the server to the services it exposes.
type Options struct {
	Expenses   *services.ExpenseService
	Categories *services.CategoryService
	// Ready reports whether dependencies are reachable. Nil means always
	// ready.
	Ready  func(ctx context.Context) error
	Logger *log.Logger
	// RateLimit applies per client IP to /api routes.
	RateLimit ratelimit.Config
	// TrustedProxies lists extra CIDRs whose forwarding headers are honored.
	TrustedProxies []string
}

type Server struct {
	http.Server
	expenses   *services.ExpenseService
	categories *services.CategoryService
	ready      func(ctx context.Context) error
	logger     *log.Logger
	parser     *RequestParser

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	startedAt    time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server. Call Shutdown to stop it and its background cleanup.
func NewServer(addr string, opts Options) (*Server, error) {
	if opts.Expenses == nil || opts.Categories == nil {
		return nil, errors.New("http server needs expense and category services")
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16,
		},
		expenses:   opts.Expenses,
		categories: opts.Categories,
		ready:      opts.Ready,
		logger:     opts.Logger.WithComponent(log.ComponentHTTP),
		parser:     NewRequestParser(),
		limiter:    ratelimit.NewLimiter(opts.RateLimit),
		detector:   detector,
		tracer:     trace.NewMiddleware(detector.ExtractClientIP),
		startedAt:  time.Now(),
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/expenses", s.api(s.handleListExpenses))
	mux.HandleFunc("GET /api/expenses/stats", s.api(s.handleExpenseStats))
	mux.HandleFunc("GET /api/expenses/{id}", s.api(s.handleGetExpense))
	mux.HandleFunc("POST /api/expenses", s.api(s.handleCreateExpense))
	mux.HandleFunc("PUT /api/expenses/{id}", s.api(s.handleUpdateExpense))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.api(s.handleDeleteExpense))

	mux.HandleFunc("GET /api/categories", s.api(s.handleListCategories))
	mux.HandleFunc("GET /api/categories/{id}", s.api(s.handleGetCategory))
	mux.HandleFunc("POST /api/categories", s.api(s.handleCreateCategory))
	mux.HandleFunc("POST /api/categories/recount", s.api(s.handleRecountCategories))
	mux.HandleFunc("PUT /api/categories/{id}", s.api(s.handleUpdateCategory))
	mux.HandleFunc("DELETE /api/categories/{id}", s.api(s.handleDeleteCategory))

	mux.HandleFunc("POST /api/parse/sms", s.api(s.handleParseSMS))
	mux.HandleFunc("POST /api/parse/receipt", s.api(s.handleParseReceipt))
	mux.HandleFunc("POST /api/parse/voice", s.api(s.handleParseVoice))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("route not found").Write(w)
	})

	var h http.Handler = mux
	h = s.withSuspiciousRequestLog(h)
	h = log.RequestIDMiddleware(trace.RequestID)(h)
	h = s.tracer.Middleware(h)
	h = log.Middleware(s.logger)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	s.Handler = h

	return s, nil
}

// api guards a handler with the per-client rate limit and the user header.
func (s *Server) api(next http.HandlerFunc) http.HandlerFunc {
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)(requireUser(next))
	return limited.ServeHTTP
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r), log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
}

func (s *Server) withSuspiciousRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				log.FieldClientIP, s.detector.ExtractClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.UserAgent())
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and the limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
