package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/pushflow/logger"
	"github.com/kbukum/pushflow/observability"
	"github.com/kbukum/pushflow/server/endpoint"
	"github.com/kbukum/pushflow/server/middleware"
)

// Server is the HTTP server streams are served from: a Gin engine behind a
// ServeMux, wrapped for HTTP/2 cleartext so many SSE streams can share one
// connection.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	mux        *http.ServeMux
	config     Config
	log        *logger.Logger

	mu       sync.Mutex
	listener net.Listener
}

// New creates a Server. No middleware is applied yet; see ApplyDefaults.
func New(cfg Config, log *logger.Logger) *Server {
	cfg.ApplyDefaults()

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	mux := http.NewServeMux()
	mux.Handle("/", engine)

	h2s := &http2.Server{
		MaxConcurrentStreams: cfg.MaxConcurrentStreams,
		IdleTimeout:          cfg.IdleTimeout,
	}
	handler := middleware.CORS(&cfg.CORS)(mux)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           h2c.NewHandler(handler, h2s),
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		engine: engine,
		mux:    mux,
		config: cfg,
		log:    log.WithComponent("server"),
	}
}

// GinEngine returns the underlying Gin engine for route registration.
func (s *Server) GinEngine() *gin.Engine {
	return s.engine
}

// Handle mounts an http.Handler at pattern on the root ServeMux, next to Gin.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
	s.log.Debug("Handler mounted", logger.Fields("pattern", pattern))
}

// Start binds the port and begins serving. It returns once the listener is
// bound; serving continues in a goroutine.
func (s *Server) Start(_ context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server failed to bind %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("Server error", logger.ErrorFields("serve", err))
		}
	}()

	s.log.Info("HTTP server started", logger.Fields("addr", listener.Addr().String()))
	return nil
}

// Stop shuts the server down, waiting up to the configured shutdown timeout
// for open requests. Streams still running then see their request context
// cancelled, which cancels their subscriptions.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("Graceful shutdown timed out, closing connections", logger.ErrorFields("shutdown", err))
		if cerr := s.httpServer.Close(); cerr != nil {
			return fmt.Errorf("server close error: %w", cerr)
		}
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.log.Info("HTTP server shut down successfully")
	return nil
}

// Addr returns the bound address once started, the configured one before.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// ApplyMiddleware applies the standard middleware stack to the Gin engine:
// recovery, request ID and request logging.
func (s *Server) ApplyMiddleware() {
	s.engine.Use(middleware.Recovery(s.log))
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.RequestLogger(s.log))
}

// StreamGroup returns a route group for stream endpoints behind the
// per-client admission limits: StreamRate caps how fast a client opens
// streams and MaxStreamsPerClient how many it keeps open. Refusals are
// counted on metrics, which may be nil.
func (s *Server) StreamGroup(prefix string, metrics *observability.StreamMetrics) *gin.RouterGroup {
	g := s.engine.Group(prefix)
	rejected := func(name string) {
		metrics.RecordRejected(context.Background(), name)
		s.log.Debug("Stream refused", logger.Fields("limiter", name))
	}
	if s.config.StreamRate > 0 {
		g.Use(middleware.StreamRate(middleware.StreamRateConfig{
			Rate:    s.config.StreamRate,
			Burst:   s.config.StreamBurst,
			OnLimit: rejected,
		}))
	}
	if s.config.MaxStreamsPerClient > 0 {
		g.Use(middleware.StreamLimit(middleware.StreamLimitConfig{
			MaxPerClient: s.config.MaxStreamsPerClient,
			OnReject:     rejected,
		}))
	}
	return g
}

// RegisterDefaultEndpoints registers /health, /alive, /ready, /metrics and
// /version. streams is reported on /metrics and, with any extra checkers,
// on /health and /ready. It may be nil.
func (s *Server) RegisterDefaultEndpoints(serviceName string, streams *observability.StreamMetrics, checkers ...observability.HealthChecker) {
	checkers = append([]observability.HealthChecker{streams}, checkers...)
	s.engine.GET("/health", endpoint.Health(serviceName, checkers...))
	s.engine.GET("/alive", endpoint.Liveness(serviceName))
	s.engine.GET("/ready", endpoint.Readiness(serviceName, checkers...))
	s.engine.GET("/metrics", endpoint.Metrics(streams))
	s.engine.GET("/version", endpoint.Version())
}

// ApplyDefaults applies the middleware stack and registers default endpoints.
func (s *Server) ApplyDefaults(serviceName string, streams *observability.StreamMetrics, checkers ...observability.HealthChecker) {
	s.ApplyMiddleware()
	s.RegisterDefaultEndpoints(serviceName, streams, checkers...)
}
