package flow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker owns the live attempts, keyed by user id and by flow id.
type Tracker struct {
	mu     sync.Mutex
	byUser map[string]*Attempt
	byID   map[string]*Attempt
	now    func() time.Time

	base   context.Context
	cancel context.CancelFunc
}

// NewTracker creates an empty tracker. now may be nil.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		byUser: make(map[string]*Attempt),
		byID:   make(map[string]*Attempt),
		now:    now,
		base:   ctx,
		cancel: cancel,
	}
}

// TryAcquire creates an attempt for userID unless one is live. It returns
// the live attempt and false in that case.
func (t *Tracker) TryAcquire(userID string) (*Attempt, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if a, ok := t.byUser[userID]; ok {
		return a, false
	}

	ctx, cancel := context.WithCancel(t.base)
	a := &Attempt{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: t.now(),
		ctx:       ctx,
		cancel:    cancel,
		phase:     PhaseStarting,
	}
	t.byUser[userID] = a
	t.byID[a.ID] = a
	return a, true
}

// Release removes a if it is still the live attempt for its user and
// cancels its context. It reports whether a was removed.
func (t *Tracker) Release(a *Attempt) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.byUser[a.UserID]
	if !ok || cur != a {
		return false
	}
	delete(t.byUser, a.UserID)
	delete(t.byID, a.ID)
	a.cancel()
	return true
}

// Get returns the live attempt for userID, or nil.
func (t *Tracker) Get(userID string) *Attempt {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byUser[userID]
}

// Lookup returns the live attempt with the given flow id, or nil.
func (t *Tracker) Lookup(flowID string) *Attempt {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byID[flowID]
}

// Len returns the number of live attempts.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byUser)
}

// Snapshot returns info for every live attempt.
func (t *Tracker) Snapshot() []Info {
	t.mu.Lock()
	attempts := make([]*Attempt, 0, len(t.byUser))
	for _, a := range t.byUser {
		attempts = append(attempts, a)
	}
	t.mu.Unlock()

	infos := make([]Info, 0, len(attempts))
	for _, a := range attempts {
		infos = append(infos, a.Info())
	}
	return infos
}

// Shutdown releases every live attempt and returns them. Attempts acquired
// afterwards start with a cancelled context.
func (t *Tracker) Shutdown() []*Attempt {
	t.mu.Lock()
	defer t.mu.Unlock()

	released := make([]*Attempt, 0, len(t.byUser))
	for _, a := range t.byUser {
		released = append(released, a)
	}
	t.byUser = make(map[string]*Attempt)
	t.byID = make(map[string]*Attempt)
	t.cancel()
	return released
}
