package instrumentation

import (
	"context"
	"time"
)

// TrackExternal runs fn inside a client span and records its duration and
// status on m. m may be nil.
func TrackExternal(ctx context.Context, m *Metrics, service, operation string, fn func(context.Context) error) error {
	ctx, span := StartExternalSpan(ctx, service, operation)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := StatusSuccess
	if err != nil {
		status = StatusError
		SetSpanError(span, err)
	} else {
		SetSpanSuccess(span)
	}
	m.RecordExternalOperation(ctx, service, operation, status, time.Since(start))

	return err
}
