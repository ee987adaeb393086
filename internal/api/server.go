// Package api exposes a read-only HTTP surface over the session registry.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"asian-sweep-bot/internal/session"
)

// Config holds HTTP server settings
type Config struct {
	Addr  string `json:"addr"`
	Debug bool   `json:"debug"`
}

// Server serves session state over HTTP
type Server struct {
	cfg      Config
	registry *session.Registry
	router   *gin.Engine
	srv      *http.Server
	logger   zerolog.Logger
	started  time.Time
}

func NewServer(cfg Config, registry *session.Registry, logger zerolog.Logger) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:      cfg,
		registry: registry,
		router:   router,
		logger:   logger.With().Str("component", "api").Logger(),
		started:  time.Now().UTC(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.GET("/sessions", s.handleSessions)
	v1.GET("/sessions/:symbol", s.handleSessionsBySymbol)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"uptime":   time.Since(s.started).String(),
		"sessions": s.registry.Len(),
	})
}

func (s *Server) handleSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.registry.Snapshots()})
}

func (s *Server) handleSessionsBySymbol(c *gin.Context) {
	symbol := c.Param("symbol")
	var matched []session.Snapshot
	for _, snap := range s.registry.Snapshots() {
		if snap.Symbol == symbol {
			matched = append(matched, snap)
		}
	}
	if len(matched) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no sessions for symbol"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": matched})
}

// Start runs the HTTP server until it fails or Shutdown is called
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Router exposes the handler for tests
func (s *Server) Router() http.Handler {
	return s.router
}
