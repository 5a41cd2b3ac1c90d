package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"gosplit/internal"
	"gosplit/internal/metrics"
)

// Server owns the gin router and its HTTP listener
type Server struct {
	router  *gin.Engine
	handler *Handler
	hub     *SignalHub
	metrics *metrics.Metrics
	logger  *internal.Logger

	mu  sync.Mutex
	srv *http.Server
}

// NewServer builds the router. mode is a gin mode (debug, release, test).
func NewServer(handler *Handler, m *metrics.Metrics, logger *internal.Logger, mode string) *Server {
	if mode != "" {
		gin.SetMode(mode)
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	s := &Server{
		router:  gin.New(),
		handler: handler,
		hub:     handler.hub,
		metrics: m,
		logger:  logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Router exposes the engine, mainly for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.observe())
}

// observe records request duration and logs each request at debug level
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		elapsed := time.Since(start)
		s.metrics.HTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), elapsed)
		s.logger.Debug("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), elapsed)
	}
}

func (s *Server) setupRoutes() {
	h := s.handler
	api := s.router.Group("/api")

	experiments := api.Group("/experiments")
	experiments.POST("", h.CreateExperiment)
	experiments.GET("", h.ListExperiments)
	experiments.GET("/:id", h.GetExperiment)
	experiments.POST("/:id/start", h.StartExperiment)
	experiments.POST("/:id/pause", h.PauseExperiment)
	experiments.POST("/:id/stop", h.StopExperiment)
	experiments.POST("/:id/batches", h.RunBatch)
	experiments.POST("/:id/observations", h.RecordObservation)
	experiments.GET("/:id/analysis", h.GetAnalysis)
	experiments.GET("/:id/cohorts/:definition", h.GetCohorts)

	api.POST("/power", h.Power)
	api.GET("/overview", h.Overview)
	api.GET("/templates", h.ListTemplates)

	if s.hub != nil {
		api.GET("/signals/stream", s.hub.HandleSSE)
	}
}

// Start listens on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info("API listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
