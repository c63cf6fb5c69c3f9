// Package webhook receives TradingView alerts over HTTP and forwards them
// through the notifier.
package webhook

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/rankwatch/internal/common"
	"github.com/ternarybob/rankwatch/internal/interfaces"
)

// SecretHeader carries the shared secret on every alert.
const SecretHeader = "X-TradingView-Secret"

const maxBodyBytes = 64 << 10

const (
	writeTimeout = 60 * time.Second
	// deliveryTimeout bounds notifier retries so a 500 is written before writeTimeout.
	deliveryTimeout = writeTimeout - 10*time.Second
)

// Server manages the webhook HTTP server and routes
type Server struct {
	config   common.WebhookConfig
	notifier interfaces.Notifier
	limiter  *rate.Limiter
	loc      *time.Location
	now      func() time.Time
	logger   arbor.ILogger
	router   *gin.Engine
	server   *http.Server

	deliveryTimeout time.Duration
}

// NewServer creates the webhook server.
func NewServer(config common.WebhookConfig, notifier interfaces.Notifier, loc *time.Location, logger arbor.ILogger) *Server {
	if loc == nil {
		loc = time.UTC
	}
	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}

	s := &Server{
		config:   config,
		notifier: notifier,
		limiter:  rate.NewLimiter(limit, burst),
		loc:      loc,
		now:      time.Now,
		logger:   logger,

		deliveryTimeout: deliveryTimeout,
	}
	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.loggingMiddleware())

	r.GET("/health", s.handleHealth)
	r.GET("/webhook/tradingview", s.handleHealth)
	r.POST("/webhook/tradingview", s.handleTradingView)
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.server.Addr).Msg("Webhook server starting")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down webhook server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Msg("Webhook server stopped")
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "TradingView Webhook is running")
}

func (s *Server) handleTradingView(c *gin.Context) {
	if s.config.Secret == "" {
		s.logger.Error().Msg("Webhook secret is not configured")
		c.String(http.StatusInternalServerError, "Server configuration error")
		return
	}

	given := c.GetHeader(SecretHeader)
	if subtle.ConstantTimeCompare([]byte(given), []byte(s.config.Secret)) != 1 {
		s.logger.Warn().Str("remote", c.ClientIP()).Msg("Webhook rejected: invalid secret")
		c.String(http.StatusForbidden, "Forbidden: Invalid secret")
		return
	}

	if !s.limiter.Allow() {
		s.logger.Warn().Str("remote", c.ClientIP()).Msg("Webhook rate limit exceeded")
		c.String(http.StatusTooManyRequests, "Too Many Requests")
		return
	}

	data, err := decodeAlert(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "Bad Request: %s", err.Error())
		return
	}

	message := FormatAlert(data, s.now().In(s.loc))
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.deliveryTimeout)
	defer cancel()
	if !s.notifier.Notify(ctx, message) {
		s.logger.Error().Msg("Failed to forward TradingView alert")
		c.String(http.StatusInternalServerError, "Failed to send notification")
		return
	}

	c.String(http.StatusOK, "OK")
}

func decodeAlert(body io.Reader) (map[string]interface{}, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxBodyBytes {
		return nil, errors.New("body too large")
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var data map[string]interface{}
	if err := decoder.Decode(&data); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errors.New("body must be a JSON object")
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON object")
	}
	return data, nil
}

// loggingMiddleware logs HTTP requests and responses
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("remote", c.ClientIP()).
			Msg("HTTP request")

		c.Next()

		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP response")
	}
}
