package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"rupee/internal/core"
	"rupee/internal/ledger"
	"rupee/internal/locator"
	"rupee/internal/log"
	"rupee/internal/middleware/ratelimit"
	"rupee/internal/middleware/security"
	"rupee/internal/middleware/trace"
	"rupee/internal/services"
	"rupee/internal/stats"
)

// LedgerAPI is the service surface the handlers drive.
type LedgerAPI interface {
	Login(ctx context.Context) (services.Overview, error)
	Logout(ctx context.Context) error
	Overview() services.Overview
	CreateLedger(ctx context.Context) (locator.Resolution, error)
	ConnectLedger(ctx context.Context, idOrURL string) (locator.Resolution, error)
	Entries() ([]core.Entry, error)
	Refresh(ctx context.Context) ([]core.Entry, error)
	AddEntry(ctx context.Context, e core.Entry) (ledger.AppendResult, error)
	UpdateEntry(ctx context.Context, position int, patch core.Patch) (bool, error)
	RetryFailed(ctx context.Context) (int, error)
	Stats(opts stats.Options) (stats.DerivedStats, error)
	Budget(ctx context.Context) (services.BudgetView, error)
	SetBudget(ctx context.Context, ceiling core.Money) (services.BudgetView, error)
	ResetBudget(ctx context.Context) (services.BudgetView, error)
	Extract(ctx context.Context, src services.ExtractSource, preview bool) (services.ExtractReport, error)
}

// Options configures the server. Zero values select the defaults.
type Options struct {
	Logger *log.Logger
	// WriteLimit caps mutating requests per client per minute.
	WriteLimit int
	// LoginTimeout bounds the interactive login flow.
	LoginTimeout time.Duration
	Now          func() time.Time
}

type Server struct {
	http.Server
	api      LedgerAPI
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	now      func() time.Time
	loginTTL time.Duration

	shutdownOnce sync.Once
}

// NewServer wires the routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, api LedgerAPI, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.WriteLimit <= 0 {
		opts.WriteLimit = ratelimit.DefaultConfig().Limit
	}
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		api:      api,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(ratelimit.PerMinute(opts.WriteLimit)),
		detector: security.NewDetector(opts.Logger),
		now:      opts.Now,
		loginTTL: opts.LoginTimeout,
	}
	s.tracer = trace.NewMiddleware(opts.Logger, s.detector.ClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)

	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("POST /api/session/login", s.handleLogin)
	mux.HandleFunc("POST /api/session/logout", s.handleLogout)

	mux.HandleFunc("GET /api/ledger", s.handleSession)
	mux.Handle("POST /api/ledger", s.limited(s.handleCreateLedger))
	mux.Handle("POST /api/ledger/connect", s.limited(s.handleConnectLedger))

	mux.HandleFunc("GET /api/entries", s.handleListEntries)
	mux.Handle("POST /api/entries", s.limited(s.handleAddEntry))
	mux.Handle("PATCH /api/entries/{position}", s.limited(s.handleUpdateEntry))
	mux.Handle("POST /api/entries/retry", s.limited(s.handleRetry))
	mux.Handle("POST /api/refresh", s.limited(s.handleRefresh))

	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/categories", handleCategories)

	mux.HandleFunc("GET /api/budget", s.handleBudget)
	mux.Handle("PUT /api/budget", s.limited(s.handleSetBudget))
	mux.Handle("POST /api/budget/reset", s.limited(s.handleResetBudget))

	mux.Handle("POST /api/extract", s.limited(s.handleExtract))

	var h http.Handler = mux
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = s.detector.Middleware(h)
	h = log.RequestIDMiddleware(func(r *http.Request) string { return trace.RequestID(r.Context()) })(h)
	h = log.Middleware(logger)(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) limited(fn http.HandlerFunc) http.Handler {
	return s.limiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ClientIP(r), log.FieldPath, r.URL.Path)
		writeJSON(w, http.StatusTooManyRequests, ErrorBody{Error: "rate limit exceeded", Code: "rate_limited"})
	})(fn)
}

// Shutdown stops the listener and the limiter's cleanup loop.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.Categories)
}
