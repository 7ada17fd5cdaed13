package session

import (
	"context"

	"github.com/teemow/mailsense/internal/instrumentation"
)

// InstrumentedStore records write outcomes for an underlying Store.
type InstrumentedStore struct {
	Store
	backend string
	metrics *instrumentation.Metrics
}

// NewInstrumentedStore wraps inner. metrics may be nil.
func NewInstrumentedStore(inner Store, backend string, metrics *instrumentation.Metrics) *InstrumentedStore {
	return &InstrumentedStore{Store: inner, backend: backend, metrics: metrics}
}

// Set implements Store.
func (s *InstrumentedStore) Set(ctx context.Context, rec *Record) error {
	err := s.Store.Set(ctx, rec)
	s.record(ctx, err)
	return err
}

// Reset implements Store.
func (s *InstrumentedStore) Reset(ctx context.Context, userID string) (*Record, error) {
	rec, err := s.Store.Reset(ctx, userID)
	s.record(ctx, err)
	return rec, err
}

// Ping checks the wrapped backend when it supports it.
func (s *InstrumentedStore) Ping(ctx context.Context) error {
	if p, ok := s.Store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *InstrumentedStore) record(ctx context.Context, err error) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	s.metrics.RecordStoreWrite(ctx, s.backend, status)
}
