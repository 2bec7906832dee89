// Package api exposes the engine's control surface over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"solana-launch-sniper/internal/config"
	"solana-launch-sniper/internal/engine"
	"solana-launch-sniper/internal/observability"
	"solana-launch-sniper/internal/position"
)

// Controller is the engine surface the API drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	UpdateSettings(ctx context.Context, partial map[string]any) error
	Settings() config.Settings
	GetState() engine.State
	CloseManual(ctx context.Context, mint string) error
}

var _ Controller = (*engine.Engine)(nil)

// Config describes the API server.
type Config struct {
	Addr   string // Default: :8080
	Engine Controller
	Logger *logrus.Logger
}

// Server serves the control API.
type Server struct {
	addr   string
	router *gin.Engine
	engine Controller
	logger *logrus.Logger
}

// NewServer builds the router.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("api server requires an engine")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	s := &Server{addr: cfg.Addr, router: router, engine: cfg.Engine, logger: cfg.Logger}
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(observability.Handler()))

	group := router.Group("/api")
	group.POST("/start", s.handleStart)
	group.POST("/stop", s.handleStop)
	group.GET("/settings", s.handleGetSettings)
	group.PATCH("/settings", s.handleUpdateSettings)
	group.GET("/state", s.handleState)
	group.POST("/positions/:mint/close", s.handleClose)

	return s, nil
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.addr }

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.WithField("addr", s.addr).Info("control api listening")

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
			"ip":     c.ClientIP(),
			"dur":    time.Since(start),
		}).Debug("http request")
	}
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.engine.Start(c.Request.Context()); err != nil {
		s.logger.WithError(err).Error("start failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "running": true})
}

func (s *Server) handleStop(c *gin.Context) {
	s.engine.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "running": false})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Settings())
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var partial map[string]any
	if err := c.ShouldBindJSON(&partial); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Validate first so a bad request is told apart from a storage failure.
	if _, err := s.engine.Settings().Apply(partial); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.UpdateSettings(c.Request.Context(), partial); err != nil {
		s.logger.WithError(err).Error("settings update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"pending_restart": s.engine.GetState().PendingRestart,
	})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.GetState())
}

func (s *Server) handleClose(c *gin.Context) {
	mint := strings.TrimSpace(c.Param("mint"))
	log := s.logger.WithFields(logrus.Fields{"mint": mint, "ip": c.ClientIP()})
	log.Info("manual close requested")

	if err := s.engine.CloseManual(c.Request.Context(), mint); err != nil {
		if errors.Is(err, position.ErrNotOpen) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		log.WithError(err).Error("manual close failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
