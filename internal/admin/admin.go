package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gosplit/internal"
	"gosplit/internal/metrics"
)

// HealthCheck reports an error when a dependency is unhealthy
type HealthCheck func(ctx context.Context) error

// App is the operator-facing listener: health, Prometheus metrics and pprof
type App struct {
	router  *chi.Mux
	metrics *metrics.Metrics
	checks  map[string]HealthCheck
	logger  *internal.Logger

	mu  sync.Mutex
	srv *http.Server
}

// NewApp builds the admin router. checks may be nil.
func NewApp(m *metrics.Metrics, checks map[string]HealthCheck, logger *internal.Logger) *App {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	a := &App{
		router:  chi.NewRouter(),
		metrics: m,
		checks:  checks,
		logger:  logger,
	}
	a.setupMiddleware()
	a.setupRoutes()
	return a
}

// Router exposes the mux for tests and embedding
func (a *App) Router() http.Handler {
	return a.router
}

func (a *App) setupMiddleware() {
	a.router.Use(middleware.Recoverer)
}

func (a *App) setupRoutes() {
	a.router.Get("/healthz", a.handleHealth)
	if a.metrics != nil {
		a.router.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	a.router.Route("/debug/pprof", func(r chi.Router) {
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)
		r.Handle("/{profile}", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			pprof.Handler(chi.URLParam(req, "profile")).ServeHTTP(w, req)
		}))
	})
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(a.checks))
	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			a.logger.Warn("Health check %s failed: %v", name, err)
			continue
		}
		results[name] = "ok"
	}

	body := map[string]interface{}{"status": "ok", "checks": results}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Start listens on addr until Shutdown is called
func (a *App) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.mu.Lock()
	a.srv = srv
	a.mu.Unlock()

	a.logger.Info("Admin listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	srv := a.srv
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
