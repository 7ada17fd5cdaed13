package view

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teemow/mailsense/internal/auth"
	"github.com/teemow/mailsense/internal/broadcast"
	"github.com/teemow/mailsense/internal/flow"
	"github.com/teemow/mailsense/internal/logging"
	"github.com/teemow/mailsense/internal/session"
)

// Sink displays views.
type Sink interface {
	Show(v View) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(View) error

// Show implements Sink.
func (f SinkFunc) Show(v View) error { return f(v) }

// AuthService is the part of the orchestrator a view drives.
type AuthService interface {
	Start(ctx context.Context, userID string) (auth.StartResult, error)
	Cancel(ctx context.Context, userID string) error
	Flow(userID string) *flow.Info
}

// ErrClosed is returned by a Controller after Close.
var ErrClosed = errors.New("view controller closed")

// Controller keeps a sink in sync with one user's session.
type Controller struct {
	userID string
	store  session.Store
	bus    broadcast.Bus
	auth   AuthService
	sink   Sink
	logger *slog.Logger

	// renderMu serializes read-render-show so an older read never
	// overwrites a newer view.
	renderMu sync.Mutex

	mu     sync.Mutex
	ctx    context.Context
	token  broadcast.Token
	opened bool
	closed bool
}

// NewController creates a controller for userID. logger may be nil.
func NewController(userID string, store session.Store, bus broadcast.Bus, authSvc AuthService, sink Sink, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		userID: userID,
		store:  store,
		bus:    bus,
		auth:   authSvc,
		sink:   sink,
		logger: logging.WithComponent(logger, "view").With(logging.UserHash(userID)),
	}
}

// Open subscribes to session changes and renders the current state. ctx
// bounds the store reads made for later re-renders.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.opened {
		c.mu.Unlock()
		return c.Refresh(ctx)
	}
	c.opened = true
	c.ctx = ctx
	c.mu.Unlock()

	// Subscribe before the first read so no change slips in between.
	tok := c.bus.Subscribe(c.handle)
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()

	return c.Refresh(ctx)
}

// Close unsubscribes. It is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.opened {
		c.bus.Unsubscribe(c.token)
	}
}

func (c *Controller) handle(m broadcast.Message) {
	if m.UserID != c.userID {
		return
	}
	c.mu.Lock()
	ctx, closed := c.ctx, c.closed
	c.mu.Unlock()
	if closed || ctx.Err() != nil {
		return
	}
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("Failed to refresh view", logging.Err(err))
	}
}

// Refresh re-reads the store and shows the result.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.render(ctx, false)
}

func (c *Controller) render(ctx context.Context, focus bool) error {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	rec, err := c.store.Get(ctx, c.userID)
	if err != nil {
		return err
	}
	v := Render(rec, c.auth.Flow(c.userID))
	v.FocusSurface = focus && v.AuthInProgress

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.sink.Show(v)
}

// StartAuth starts authorization, or asks the surface to focus the existing
// flow when one is already live.
func (c *Controller) StartAuth(ctx context.Context) (auth.StartResult, error) {
	res, err := c.auth.Start(ctx, c.userID)
	if err != nil {
		if rerr := c.Refresh(ctx); rerr != nil {
			c.logger.Debug("Failed to refresh view after start error", logging.Err(rerr))
		}
		return res, err
	}
	if res.Status == auth.StatusInProgress {
		return res, c.render(ctx, true)
	}
	return res, nil
}

// CancelAuth cancels the user's live flow, if any.
func (c *Controller) CancelAuth(ctx context.Context) error {
	return c.auth.Cancel(ctx, c.userID)
}
