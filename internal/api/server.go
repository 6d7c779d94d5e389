// Package api serves the latest snapshot and pipeline health over HTTP for
// sidecar consumers and load-balancer checks.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"volspike/internal/feed"
	"volspike/logger"
	"volspike/models"
)

const defaultStaleAfter = 180 * time.Second

// Config holds HTTP server settings.
type Config struct {
	Host         string
	Port         int
	StaleAfter   time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server wraps an Echo instance around the live snapshot state.
type Server struct {
	echo     *echo.Echo
	cfg      Config
	log      *logger.Log
	statusFn func() feed.Status

	mu        sync.RWMutex
	latest    models.Snapshot
	state     models.ConnectionState
	hasSnap   bool
	startedAt time.Time
}

// NewServer builds the API server. statusFn reports the feed engine's
// observable state and may be nil.
func NewServer(cfg Config, statusFn func() feed.Status) *Server {
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = defaultStaleAfter
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:      e,
		cfg:       cfg,
		log:       logger.GetLogger(),
		statusFn:  statusFn,
		state:     models.StateConnecting,
		startedAt: time.Now(),
	}

	e.GET("/health", s.handleHealth)
	e.GET("/api/v1/market", s.handleMarket)
	e.GET("/api/v1/market/:symbol", s.handleSymbol)
	e.GET("/api/v1/status", s.handleStatus)

	return s
}

// SetEmission records the latest emitted snapshot for serving.
func (s *Server) SetEmission(em feed.Emission) {
	s.mu.Lock()
	s.latest = em.Snapshot
	s.state = em.State
	s.hasSnap = true
	s.mu.Unlock()
}

// Start listens in the background; failures after bind are logged.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.echo.Server.ReadTimeout = s.cfg.ReadTimeout
	s.echo.Server.WriteTimeout = s.cfg.WriteTimeout

	go func() {
		s.log.WithComponent("api_server").WithFields(logger.Fields{
			"addr": addr,
		}).Info("api server listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithComponent("api_server").WithError(err).Error("api server failed")
		}
	}()
	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	s.log.WithComponent("api_server").Info("api server stopped")
	return nil
}

func (s *Server) snapshot() (models.Snapshot, models.ConnectionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.state, s.hasSnap
}

func (s *Server) handleHealth(c echo.Context) error {
	snap, state, ok := s.snapshot()

	resp := map[string]any{
		"status":         "ok",
		"connection":     state,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"symbols":        len(snap.Rows),
	}

	code := http.StatusOK
	if !ok {
		resp["status"] = "starting"
	} else {
		age := time.Since(time.UnixMilli(snap.EmittedAt))
		resp["snapshot_age_seconds"] = int64(age.Seconds())
		if age > s.cfg.StaleAfter {
			resp["status"] = "stale"
			code = http.StatusServiceUnavailable
		}
	}
	return c.JSON(code, resp)
}

func (s *Server) handleMarket(c echo.Context) error {
	snap, _, ok := s.snapshot()
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "no snapshot yet"})
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleSymbol(c echo.Context) error {
	symbol := c.Param("symbol")
	snap, _, ok := s.snapshot()
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "no snapshot yet"})
	}
	for _, row := range snap.Rows {
		if row.Symbol == symbol {
			return c.JSON(http.StatusOK, row)
		}
	}
	return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown symbol"})
}

func (s *Server) handleStatus(c echo.Context) error {
	resp := map[string]any{
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}
	if s.statusFn != nil {
		st := s.statusFn()
		resp["state"] = st.State
		resp["reconnect_attempts"] = st.ReconnectAttempts
		resp["messages_processed"] = st.MessagesProcessed
		resp["symbol_count"] = st.SymbolCount
		if !st.LastEmission.IsZero() {
			resp["last_emission"] = st.LastEmission.UnixMilli()
		}
		if !st.NextEmission.IsZero() {
			resp["next_emission"] = st.NextEmission.UnixMilli()
		}
	}
	return c.JSON(http.StatusOK, resp)
}
