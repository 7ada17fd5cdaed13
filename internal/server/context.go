package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teemow/mailsense/internal/auth"
	"github.com/teemow/mailsense/internal/broadcast"
	"github.com/teemow/mailsense/internal/flow"
	"github.com/teemow/mailsense/internal/google"
	"github.com/teemow/mailsense/internal/instrumentation"
	"github.com/teemow/mailsense/internal/session"
	"github.com/teemow/mailsense/internal/workflow"
)

// Services are the components a ServerContext serves.
type Services struct {
	Store    session.Store
	Bus      broadcast.Bus
	Tracker  *flow.Tracker
	Auth     *auth.Orchestrator
	Workflow *workflow.Service

	// Google handles the OAuth callback. It may be nil when flows complete
	// through status polling only.
	Google *google.Client

	// Metrics and Logger are optional.
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// ServerContext holds the shared state of the HTTP and MCP servers.
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	services Services
	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new server context.
func NewServerContext(ctx context.Context, services Services) (*ServerContext, error) {
	if services.Store == nil || services.Bus == nil || services.Auth == nil || services.Workflow == nil {
		return nil, fmt.Errorf("store, bus, auth and workflow services are required")
	}
	if services.Logger == nil {
		services.Logger = slog.Default()
	}
	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		services: services,
	}, nil
}

// Context returns the server context. It is cancelled on Shutdown.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Store returns the session store.
func (sc *ServerContext) Store() session.Store {
	return sc.services.Store
}

// Bus returns the broadcast bus.
func (sc *ServerContext) Bus() broadcast.Bus {
	return sc.services.Bus
}

// Auth returns the authorization orchestrator.
func (sc *ServerContext) Auth() *auth.Orchestrator {
	return sc.services.Auth
}

// Workflow returns the workflow service.
func (sc *ServerContext) Workflow() *workflow.Service {
	return sc.services.Workflow
}

// Google returns the OAuth client, or nil.
func (sc *ServerContext) Google() *google.Client {
	return sc.services.Google
}

// Metrics returns the metrics recorder, or nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.services.Metrics
}

// SetMetrics sets the metrics recorder.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.services.Metrics = m
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.services.Logger
}

// ActiveFlows returns the number of tracked authorization attempts.
func (sc *ServerContext) ActiveFlows() int {
	if sc.services.Tracker == nil {
		return 0
	}
	return sc.services.Tracker.Len()
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown abandons live authorization flows and cancels the context.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil
	}
	sc.shutdown = true
	sc.mu.Unlock()

	sc.services.Auth.Shutdown()
	sc.cancel()
	return nil
}
