package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKeyRequestID is the gin context key holding the request ID.
const ContextKeyRequestID = "request_id"

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

// DefaultEndpointPath is where fortunes are served.
const DefaultEndpointPath = "/api/fortune"

// ServerConfig wires the fortune server.
type ServerConfig struct {
	Teller  Teller
	Gateway GatewayConfig
	Metrics *Metrics
	Log     logrus.FieldLogger
}

// Server is the fortune resource server.
type Server struct {
	engine  *gin.Engine
	gateway *Gateway
	log     logrus.FieldLogger
}

// NewServer builds the gin engine: request IDs, access logging, metrics,
// the free /healthz and /metrics endpoints and the paid fortune endpoint.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Teller == nil {
		return nil, errors.New("fortune server: teller is required")
	}
	if cfg.Gateway.EndpointPath == "" {
		cfg.Gateway.EndpointPath = DefaultEndpointPath
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	log := cfg.Log.WithField("component", "server")

	gateway, err := NewGateway(cfg.Gateway, cfg.Metrics, cfg.Log)
	if err != nil {
		return nil, err
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), RequestID(), AccessLog(log), cfg.Metrics.Instrument(), gateway.Middleware())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"network": cfg.Gateway.Network,
			"payTo":   cfg.Gateway.PayTo,
		})
	})
	engine.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))

	// Sub-paths of the endpoint have no route of their own; they reach the
	// handler through NoRoute after the paywall has run.
	handler := FortuneHandler(cfg.Teller, log, cfg.Metrics)
	prefix := strings.TrimSuffix(cfg.Gateway.EndpointPath, "/") + "/"
	engine.GET(cfg.Gateway.EndpointPath, handler)
	engine.NoRoute(func(c *gin.Context) {
		if c.Request.Method == http.MethodGet && strings.HasPrefix(c.Request.URL.Path, prefix) {
			handler(c)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return &Server{engine: engine, gateway: gateway, log: log}, nil
}

// Sync prepares the gateway against the facilitator. A failure is logged and
// returned; the server still serves, but paid requests fail until the
// facilitator is reachable.
func (s *Server) Sync(ctx context.Context) error {
	if err := s.gateway.Sync(ctx); err != nil {
		s.log.WithError(err).Warn("facilitator sync failed")
		return err
	}
	return nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("fortune server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// RequestID assigns every request an ID, reusing the caller's X-Request-ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// AccessLog logs one structured line per request.
func AccessLog(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"request_id": c.GetString(ContextKeyRequestID),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request handled")
	}
}
