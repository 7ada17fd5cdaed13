package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/mailsense/internal/broadcast"
	"github.com/teemow/mailsense/internal/flow"
	"github.com/teemow/mailsense/internal/instrumentation"
	"github.com/teemow/mailsense/internal/logging"
	"github.com/teemow/mailsense/internal/session"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultTimeout      = 120 * time.Second

	storeWriteTimeout   = 5 * time.Second
	surfaceCloseTimeout = 5 * time.Second
	storeWriteAttempts  = 2
)

// State is the orchestrator state of one user.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StatePolling  State = "polling"
)

// StartStatus tells a caller what Start did.
type StartStatus string

const (
	// StatusStarted means a new flow is polling.
	StatusStarted StartStatus = "started"
	// StatusInProgress means a flow was already live and nothing was started.
	StatusInProgress StartStatus = "in_progress"
	// StatusCancelled means the flow was cancelled before it reached polling.
	StatusCancelled StartStatus = "cancelled"
)

// StartResult is returned by Start.
type StartResult struct {
	Status           StartStatus `json:"status"`
	FlowID           string      `json:"flowId,omitempty"`
	HostSurfaceID    string      `json:"hostSurfaceId,omitempty"`
	AuthorizationURL string      `json:"authorizationUrl,omitempty"`
}

// AuthState combines the durable record with the live flow.
type AuthState struct {
	InProgress    bool              `json:"inProgress"`
	Authenticated bool              `json:"authenticated"`
	LastError     string            `json:"lastError,omitempty"`
	LastErrorKind session.ErrorKind `json:"lastErrorKind,omitempty"`
	HostSurfaceID string            `json:"hostSurfaceId,omitempty"`
	State         State             `json:"state"`
}

type result int

const (
	resultSucceeded result = iota
	resultFailed
	resultTimedOut
	resultCancelled
	resultShutdown
)

type outcome struct {
	result result
	kind   session.ErrorKind
	err    error
}

func (o outcome) metricLabel() string {
	switch o.result {
	case resultSucceeded:
		return instrumentation.OutcomeSuccess
	case resultTimedOut:
		return instrumentation.OutcomeTimeout
	case resultCancelled, resultShutdown:
		return instrumentation.OutcomeCancelled
	default:
		return instrumentation.OutcomeFailure
	}
}

func failedOutcome(err *Error) outcome {
	return outcome{result: resultFailed, kind: err.Kind, err: err}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPollInterval sets the status poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithTimeout sets the hard flow timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// Orchestrator owns the authorization state machine.
type Orchestrator struct {
	store    session.Store
	bus      broadcast.Bus
	tracker  *flow.Tracker
	authz    Authorizer
	surfaces SurfaceOpener

	pollInterval time.Duration
	timeout      time.Duration
	now          func() time.Time
	logger       *slog.Logger
	metrics      *instrumentation.Metrics

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// ErrShutdown is returned by Start after Shutdown.
var ErrShutdown = errors.New("authorization orchestrator shut down")

// New creates an Orchestrator.
func New(store session.Store, bus broadcast.Bus, tracker *flow.Tracker, authz Authorizer, surfaces SurfaceOpener, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        store,
		bus:          bus,
		tracker:      tracker,
		authz:        authz,
		surfaces:     surfaces,
		pollInterval: DefaultPollInterval,
		timeout:      DefaultTimeout,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.WithComponent(o.logger, "auth")
	return o
}

// Start begins a flow for userID unless one is live, in which case the live
// flow is reported with StatusInProgress.
func (o *Orchestrator) Start(ctx context.Context, userID string) (StartResult, error) {
	if !session.ValidUserID(userID) {
		return StartResult{}, fmt.Errorf("start authorization: %w", session.ErrInvalidUserID)
	}
	if o.isClosed() {
		return StartResult{}, ErrShutdown
	}

	a, acquired := o.tracker.TryAcquire(userID)
	if !acquired {
		o.metrics.RecordDuplicateStart(ctx)
		o.logger.Debug("Authorization already in progress",
			logging.UserHash(userID), logging.FlowID(a.ID))
		return StartResult{
			Status:        StatusInProgress,
			FlowID:        a.ID,
			HostSurfaceID: a.HostSurfaceID(),
		}, nil
	}
	defer a.Announced()

	ctx, span := instrumentation.StartFlowSpan(ctx, "auth.start", a.ID)
	defer span.End()

	logger := o.logger.With(logging.UserHash(userID), logging.FlowID(a.ID))

	var authURL string
	err := instrumentation.TrackExternal(ctx, o.metrics, instrumentation.ServiceGoogleOAuth, "begin",
		func(ctx context.Context) error {
			var err error
			authURL, err = o.authz.BeginAuthorization(ctx, userID, a.ID)
			return err
		})
	if err != nil {
		ferr := externalErr("begin authorization", err)
		instrumentation.SetSpanError(span, ferr)
		logger.Warn("Failed to begin authorization", logging.Err(err))
		if o.resolve(ctx, a, failedOutcome(ferr)) {
			return StartResult{}, ferr
		}
		return o.preempted(a), nil
	}
	if a.Claimed() {
		return o.preempted(a), nil
	}

	surfaceID, err := o.surfaces.Open(ctx, authURL)
	if err != nil {
		ferr := externalErr("open authorization surface", err)
		instrumentation.SetSpanError(span, ferr)
		logger.Warn("Failed to open authorization surface", logging.Err(err))
		if o.resolve(ctx, a, failedOutcome(ferr)) {
			return StartResult{}, ferr
		}
		return o.preempted(a), nil
	}

	a.MarkPolling(surfaceID)
	if a.Claimed() {
		o.closeSurface(ctx, surfaceID)
		return o.preempted(a), nil
	}

	if !o.track() {
		a.Claim()
		o.tracker.Release(a)
		o.closeSurface(ctx, surfaceID)
		return o.preempted(a), nil
	}
	o.metrics.RecordFlowStarted(ctx)
	o.bus.Publish(ctx, broadcast.InProgress(userID))
	go o.run(a)

	logger.Info("Authorization flow started", logging.Surface(surfaceID))
	instrumentation.SetSpanSuccess(span)

	return StartResult{
		Status:           StatusStarted,
		FlowID:           a.ID,
		HostSurfaceID:    surfaceID,
		AuthorizationURL: authURL,
	}, nil
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// track registers a poller unless Shutdown has begun.
func (o *Orchestrator) track() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.wg.Add(1)
	return true
}

func (o *Orchestrator) preempted(a *flow.Attempt) StartResult {
	return StartResult{Status: StatusCancelled, FlowID: a.ID}
}

// run polls the authorizer until the flow resolves, times out or is
// released by another path.
func (o *Orchestrator) run(a *flow.Attempt) {
	defer o.wg.Done()

	ctx := a.Context()
	// The timeout counts from Start, not from the first poll.
	remaining := max(o.timeout-o.now().Sub(a.StartedAt), 0)
	deadline := time.NewTimer(remaining)
	defer deadline.Stop()
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-deadline.C:
			o.resolve(ctx, a, outcome{result: resultTimedOut, kind: session.ErrorKindTimeout, err: ErrTimeout})
			return

		case <-ticker.C:
			if a.Claimed() {
				return
			}
			var ok bool
			err := instrumentation.TrackExternal(ctx, o.metrics, instrumentation.ServiceGoogleOAuth, "check",
				func(ctx context.Context) error {
					var err error
					ok, err = o.authz.CheckAuthorizationStatus(ctx, a.UserID)
					return err
				})
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				o.logger.Warn("Authorization status check failed",
					logging.UserHash(a.UserID), logging.FlowID(a.ID), logging.Err(err))
				o.resolve(ctx, a, failedOutcome(externalErr("check authorization status", err)))
				return
			}
			if ok {
				o.resolve(ctx, a, outcome{result: resultSucceeded})
				return
			}
		}
	}
}

// resolve is the single completion entry point. The first caller for an
// attempt wins; everyone after it gets false.
func (o *Orchestrator) resolve(ctx context.Context, a *flow.Attempt, out outcome) bool {
	if !a.Claim() {
		return false
	}
	o.finish(ctx, a, out)
	return true
}

func (o *Orchestrator) finish(ctx context.Context, a *flow.Attempt, out outcome) {
	ctx, span := instrumentation.StartFlowSpan(context.WithoutCancel(ctx), "auth.finish", a.ID)
	defer span.End()
	instrumentation.SetFlowOutcome(span, out.metricLabel())
	polling := a.Phase() == flow.PhasePolling
	elapsed := o.now().Sub(a.StartedAt)

	if polling {
		o.metrics.RecordFlowOutcome(ctx, out.metricLabel(), elapsed)
	} else {
		o.metrics.RecordFlowRejected(ctx)
	}

	logger := o.logger.With(logging.UserHash(a.UserID), logging.FlowID(a.ID),
		logging.Outcome(out.metricLabel()), slog.Duration(logging.KeyDuration, elapsed))

	if out.result == resultShutdown {
		logger.Debug("Authorization flow abandoned on shutdown")
		return
	}

	switch out.result {
	case resultSucceeded:
		o.updateRecord(ctx, a.UserID, func(rec *session.Record) {
			rec.Authenticated = true
			rec.ClearError()
		})
	case resultFailed, resultTimedOut:
		o.updateRecord(ctx, a.UserID, func(rec *session.Record) {
			rec.SetError(out.kind, out.err)
		})
	}

	if surfaceID := a.HostSurfaceID(); surfaceID != "" {
		o.closeSurface(ctx, surfaceID)
	}

	var msg broadcast.Message
	switch out.result {
	case resultSucceeded:
		msg = broadcast.Succeeded(a.UserID, o.now())
	case resultCancelled:
		msg = broadcast.Cancelled(a.UserID)
	default:
		msg = broadcast.Failed(a.UserID, string(out.kind), out.err)
	}

	a.After(func() {
		o.bus.Publish(ctx, msg)
		o.tracker.Release(a)
	})

	if out.err != nil {
		logger.Info("Authorization flow ended", logging.Err(out.err))
	} else {
		logger.Info("Authorization flow ended")
	}
}

// updateRecord applies mutate to the stored record, retrying once. Failures
// are logged and never block resolution.
func (o *Orchestrator) updateRecord(ctx context.Context, userID string, mutate func(*session.Record)) {
	ctx, cancel := context.WithTimeout(ctx, storeWriteTimeout)
	defer cancel()

	var err error
	for i := 0; i < storeWriteAttempts; i++ {
		var rec *session.Record
		rec, err = o.store.Get(ctx, userID)
		if err == nil {
			mutate(rec)
			err = o.store.Set(ctx, rec)
		}
		if err == nil {
			return
		}
	}
	o.logger.Error("Failed to update session record", logging.UserHash(userID), logging.Err(err))
}

func (o *Orchestrator) closeSurface(ctx context.Context, surfaceID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), surfaceCloseTimeout)
	defer cancel()
	if err := o.surfaces.Close(ctx, surfaceID); err != nil {
		o.logger.Debug("Could not close authorization surface", logging.Surface(surfaceID), logging.Err(err))
	}
}

// Cancel abandons the live flow of userID. It is a no-op when none is live.
func (o *Orchestrator) Cancel(ctx context.Context, userID string) error {
	a := o.tracker.Get(userID)
	if a == nil {
		return nil
	}
	o.resolve(ctx, a, outcome{result: resultCancelled})
	return nil
}

// CompleteFlow resolves the flow identified by flowID from a push signal,
// such as the provider callback. It reports whether the signal resolved a
// live flow.
func (o *Orchestrator) CompleteFlow(ctx context.Context, flowID string, success bool, reason string) bool {
	a := o.tracker.Lookup(flowID)
	if a == nil {
		o.logger.Debug("Ignoring completion for unknown flow", logging.FlowID(flowID))
		return false
	}
	if success {
		return o.resolve(ctx, a, outcome{result: resultSucceeded})
	}

	err := ErrDenied
	if reason != "" {
		err = errors.New(reason)
	}
	return o.resolve(ctx, a, failedOutcome(externalErr("authorization callback", err)))
}

// ObserveNavigation inspects a URL the authorization surface navigated to
// and resolves the live flow of userID when it is a completion URL for it.
func (o *Orchestrator) ObserveNavigation(ctx context.Context, userID, rawURL string) bool {
	c, ok := ParseCompletionURL(rawURL)
	if !ok {
		return false
	}
	a := o.tracker.Get(userID)
	if a == nil {
		return false
	}
	if c.FlowID != "" && c.FlowID != a.ID {
		return false
	}
	return o.CompleteFlow(ctx, a.ID, c.Success, c.Reason)
}

// State returns the orchestrator state of userID.
func (o *Orchestrator) State(userID string) State {
	a := o.tracker.Get(userID)
	if a == nil {
		return StateIdle
	}
	if a.Phase() == flow.PhasePolling {
		return StatePolling
	}
	return StateStarting
}

// InProgress reports whether a flow is live for userID and its surface id.
// A flow whose resolution has begun is no longer reported.
func (o *Orchestrator) InProgress(userID string) (bool, string) {
	a := o.live(userID)
	if a == nil {
		return false, ""
	}
	return true, a.HostSurfaceID()
}

// Flow returns a snapshot of the live flow of userID, or nil.
func (o *Orchestrator) Flow(userID string) *flow.Info {
	a := o.live(userID)
	if a == nil {
		return nil
	}
	info := a.Info()
	return &info
}

// FlowUser returns the user of the live flow flowID.
func (o *Orchestrator) FlowUser(flowID string) (string, bool) {
	a := o.tracker.Lookup(flowID)
	if a == nil || a.Claimed() {
		return "", false
	}
	return a.UserID, true
}

func (o *Orchestrator) live(userID string) *flow.Attempt {
	a := o.tracker.Get(userID)
	if a == nil || a.Claimed() {
		return nil
	}
	return a
}

// GetAuthState reads the record of userID and merges in the live flow.
func (o *Orchestrator) GetAuthState(ctx context.Context, userID string) (AuthState, error) {
	rec, err := o.store.Get(ctx, userID)
	if err != nil {
		return AuthState{}, err
	}
	inProgress, surfaceID := o.InProgress(rec.UserID)
	return AuthState{
		InProgress:    inProgress,
		Authenticated: rec.Authenticated,
		LastError:     rec.LastError,
		LastErrorKind: rec.LastErrorKind,
		HostSurfaceID: surfaceID,
		State:         o.State(rec.UserID),
	}, nil
}

// Shutdown abandons every live flow without recording or broadcasting
// failures and waits for pollers to exit.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	for _, a := range o.tracker.Shutdown() {
		if a.Claim() {
			o.finish(context.Background(), a, outcome{result: resultShutdown})
		}
		a.Announced()
	}
	o.wg.Wait()
}
