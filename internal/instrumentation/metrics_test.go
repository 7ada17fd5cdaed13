package instrumentation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	provider := newTestProvider(t)
	m := provider.Metrics()
	ctx := context.Background()

	// None of these should panic.
	m.RecordHTTPRequest(ctx, "POST", "/api/auth/start", 200, 10*time.Millisecond)
	m.RecordFlowStarted(ctx)
	m.RecordFlowOutcome(ctx, OutcomeSuccess, 4*time.Second)
	m.RecordFlowRejected(ctx)
	m.RecordDuplicateStart(ctx)
	m.RecordBroadcast(ctx, "local")
	m.RecordStoreWrite(ctx, "memory", StatusSuccess)
	m.RecordExternalOperation(ctx, ServiceGmail, "list", StatusSuccess, time.Second)
	m.RecordToolInvocation(ctx, "auth_start", StatusError, time.Millisecond)
}

func TestMetrics_ZeroAndNil(t *testing.T) {
	ctx := context.Background()

	var zero Metrics
	zero.RecordFlowStarted(ctx)
	zero.RecordFlowOutcome(ctx, OutcomeTimeout, time.Second)
	zero.RecordStoreWrite(ctx, "sqlite", StatusError)

	var nilMetrics *Metrics
	nilMetrics.RecordBroadcast(ctx, "remote")
	nilMetrics.RecordHTTPRequest(ctx, "GET", "/", 200, 0)
}

func TestTrackExternal(t *testing.T) {
	provider := newTestProvider(t)

	called := false
	err := TrackExternal(context.Background(), provider.Metrics(), ServiceOpenAI, "complete", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)

	boom := errors.New("boom")
	err = TrackExternal(context.Background(), nil, ServiceGmail, "list", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Equal(t, "", GetTraceID(context.Background()))
}
