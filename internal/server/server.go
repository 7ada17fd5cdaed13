package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/teemow/mailsense/internal/google"
	"github.com/teemow/mailsense/internal/instrumentation"
	"github.com/teemow/mailsense/internal/logging"
)

const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
)

// Options configures the HTTP server.
type Options struct {
	Addr    string
	BaseURL string

	// AllowedOrigins lists extra browser origins for CORS and WebSockets,
	// as host patterns for WebSockets and full origins for CORS.
	AllowedOrigins []string

	// Development relaxes cookie and origin checks for localhost.
	Development bool

	// MCPHandler, when set, serves MCP over streamable HTTP at MCPPath.
	MCPHandler http.Handler

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// MCPPath is where the MCP endpoint is mounted.
const MCPPath = "/mcp"

// Server is the mailsense HTTP server.
type Server struct {
	httpServer *http.Server
	health     *HealthChecker
	logger     *slog.Logger
}

// New builds the HTTP server for sc.
func New(sc *ServerContext, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithComponent(logger, "http")
	health := NewHealthChecker(sc)

	return &Server{
		health: health,
		logger: logger,
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewHandler(sc, health, opts, logger),
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			// WriteTimeout stays zero for long-lived WebSockets.
			IdleTimeout: DefaultIdleTimeout,
		},
	}
}

// NewHandler returns the router serving sc.
func NewHandler(sc *ServerContext, health *HealthChecker, opts Options, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics(opts.Metrics, logger))
	r.Use(cors(opts.AllowedOrigins))

	health.RegisterHealthEndpoints(r)

	if opts.MCPHandler != nil {
		r.Handle(MCPPath, opts.MCPHandler)
	}

	secure := !opts.Development
	if u, err := url.Parse(opts.BaseURL); err == nil && u.Scheme == "http" {
		secure = false
	}

	r.Group(func(r chi.Router) {
		r.Use(identityMiddleware(sc.Store(), secure))

		a := &api{sc: sc, secure: secure, logger: logger}
		a.routes(r)

		r.Method(http.MethodGet, "/ws/session", &sessionSocket{
			sc:             sc,
			originPatterns: websocketOrigins(opts),
			insecureOrigin: opts.Development,
			logger:         logger,
		})

		if g := sc.Google(); g != nil {
			r.Method(http.MethodGet, google.CallbackPath, g.CallbackHandler(sc.Auth()))
		}
	})

	return r
}

// websocketOrigins returns host patterns accepted for cross-origin
// WebSocket connections.
func websocketOrigins(opts Options) []string {
	var patterns []string
	if u, err := url.Parse(opts.BaseURL); err == nil && u.Host != "" {
		patterns = append(patterns, u.Host)
	}
	for _, o := range opts.AllowedOrigins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		} else {
			patterns = append(patterns, o)
		}
	}
	return patterns
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Health returns the health checker.
func (s *Server) Health() *HealthChecker {
	return s.health
}

// Start serves until Shutdown. Call it in a goroutine.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown marks the server not ready and drains connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
