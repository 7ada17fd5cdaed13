package flow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Phase is the lifecycle position of a live attempt.
type Phase string

const (
	PhaseStarting Phase = "starting"
	PhasePolling  Phase = "polling"
)

// Attempt is one live authorization flow.
type Attempt struct {
	ID        string
	UserID    string
	StartedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	surfaceID string
	phase     Phase

	claimed atomic.Bool

	gateMu   sync.Mutex
	gateOpen bool
	queued   []func()
}

// Context is cancelled when the attempt is released or the tracker shuts
// down. Background work for the attempt runs under it.
func (a *Attempt) Context() context.Context {
	return a.ctx
}

// HostSurfaceID returns the id of the browser surface opened for the attempt.
func (a *Attempt) HostSurfaceID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.surfaceID
}

// Phase returns the current phase.
func (a *Attempt) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// MarkPolling records the opened surface and moves the attempt to polling.
func (a *Attempt) MarkPolling(surfaceID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.surfaceID = surfaceID
	a.phase = PhasePolling
}

// Claim returns true for exactly one caller over the attempt's lifetime.
func (a *Attempt) Claim() bool {
	return a.claimed.CompareAndSwap(false, true)
}

// Claimed reports whether some caller has claimed the resolution.
func (a *Attempt) Claimed() bool {
	return a.claimed.Load()
}

// After runs fn once the attempt's start announcement has been made, or
// immediately if it already has. Terminal notifications go through After so
// that they never overtake the announcement.
func (a *Attempt) After(fn func()) {
	a.gateMu.Lock()
	if !a.gateOpen {
		a.queued = append(a.queued, fn)
		a.gateMu.Unlock()
		return
	}
	a.gateMu.Unlock()
	fn()
}

// Announced opens the gate and runs everything queued by After, in order.
// Calling it more than once is harmless.
func (a *Attempt) Announced() {
	a.gateMu.Lock()
	if a.gateOpen {
		a.gateMu.Unlock()
		return
	}
	a.gateOpen = true
	queued := a.queued
	a.queued = nil
	a.gateMu.Unlock()

	for _, fn := range queued {
		fn()
	}
}

// Info is a read-only snapshot of an attempt.
type Info struct {
	FlowID        string    `json:"flowId"`
	UserID        string    `json:"userId"`
	StartedAt     time.Time `json:"startedAt"`
	HostSurfaceID string    `json:"hostSurfaceId,omitempty"`
	Phase         Phase     `json:"phase"`
}

// Info returns a snapshot of a.
func (a *Attempt) Info() Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Info{
		FlowID:        a.ID,
		UserID:        a.UserID,
		StartedAt:     a.StartedAt,
		HostSurfaceID: a.surfaceID,
		Phase:         a.phase,
	}
}
