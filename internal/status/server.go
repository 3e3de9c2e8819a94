// Package status serves a read-only HTTP view of a running sweep.
//
// Endpoints:
//   - GET /health
//   - GET /metrics (Prometheus)
//   - GET /sweep, the latest published snapshot
//   - GET /sweep/trials/:label, a single trial of the current stage
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lamim/inqsweep/pkg/models"
)

// Tracker holds the most recent sweep snapshot. It satisfies the
// orchestrator's Publisher interface.
type Tracker struct {
	mu       sync.RWMutex
	snapshot *models.SweepSnapshot
}

// NewTracker returns an empty tracker
func NewTracker() *Tracker {
	return &Tracker{}
}

// Publish replaces the stored snapshot
func (t *Tracker) Publish(s models.SweepSnapshot) {
	s.Trials = append([]models.TrialHandle(nil), s.Trials...)
	t.mu.Lock()
	t.snapshot = &s
	t.mu.Unlock()
}

// Latest returns the stored snapshot, if any
func (t *Tracker) Latest() (models.SweepSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.snapshot == nil {
		return models.SweepSnapshot{}, false
	}
	return *t.snapshot, true
}

// Server is the status HTTP server
type Server struct {
	router  *gin.Engine
	server  *http.Server
	tracker *Tracker
	logger  *slog.Logger
}

// NewServer creates a server listening on addr
func NewServer(addr string, tracker *Tracker, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	s := &Server{
		router:  router,
		tracker: tracker,
		logger:  logger,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/sweep", s.handleSweep)
	s.router.GET("/sweep/trials/:label", s.handleTrial)
}

// Listen binds addr. Callers bind before starting work so a busy or
// malformed address is reported up front.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind status server: %w", err)
	}
	return ln, nil
}

// Serve blocks until the server stops. A clean shutdown returns nil.
// The listener is closed on return.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Starting status server", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown status server: %w", err)
	}
	s.logger.Info("Status server stopped")
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSweep(c *gin.Context) {
	snap, ok := s.tracker.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no sweep running"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleTrial(c *gin.Context) {
	label := models.TrialLabel(c.Param("label"))
	snap, ok := s.tracker.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no sweep running"})
		return
	}
	for _, h := range snap.Trials {
		if h.Label == label {
			c.JSON(http.StatusOK, h)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("trial %s not in current stage", label)})
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP())
	}
}
