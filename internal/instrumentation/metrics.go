package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrOutcome   = "outcome"
	attrOrigin    = "origin"
	attrBackend   = "backend"
	attrTool      = "tool"
)

// Metrics provides methods for recording observability metrics.
// A zero Metrics records nothing.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	flowsStarted    metric.Int64Counter
	flowOutcomes    metric.Int64Counter
	flowsActive     metric.Int64UpDownCounter
	duplicateStarts metric.Int64Counter
	flowDuration    metric.Float64Histogram

	broadcastsTotal metric.Int64Counter
	storeWrites     metric.Int64Counter

	externalOpsTotal   metric.Int64Counter
	externalOpDuration metric.Float64Histogram

	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.flowsStarted, err = meter.Int64Counter(
		"auth_flows_started_total",
		metric.WithDescription("Total number of authorization flows that reached polling"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth_flows_started_total counter: %w", err)
	}

	m.flowOutcomes, err = meter.Int64Counter(
		"auth_flow_outcomes_total",
		metric.WithDescription("Total number of terminal authorization flow outcomes"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth_flow_outcomes_total counter: %w", err)
	}

	m.flowsActive, err = meter.Int64UpDownCounter(
		"auth_flows_active",
		metric.WithDescription("Number of live authorization flow attempts"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth_flows_active gauge: %w", err)
	}

	m.duplicateStarts, err = meter.Int64Counter(
		"auth_duplicate_starts_total",
		metric.WithDescription("Start requests answered with the existing in-progress flow"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth_duplicate_starts_total counter: %w", err)
	}

	m.flowDuration, err = meter.Float64Histogram(
		"auth_flow_duration_seconds",
		metric.WithDescription("Time from flow start to terminal outcome"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 20, 30, 60, 90, 120, 180),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth_flow_duration_seconds histogram: %w", err)
	}

	m.broadcastsTotal, err = meter.Int64Counter(
		"broadcast_messages_total",
		metric.WithDescription("Total number of session broadcast messages published"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create broadcast_messages_total counter: %w", err)
	}

	m.storeWrites, err = meter.Int64Counter(
		"session_store_writes_total",
		metric.WithDescription("Total number of session record writes"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session_store_writes_total counter: %w", err)
	}

	m.externalOpsTotal, err = meter.Int64Counter(
		"external_operations_total",
		metric.WithDescription("Total number of calls to external services"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create external_operations_total counter: %w", err)
	}

	m.externalOpDuration, err = meter.Float64Histogram(
		"external_operation_duration_seconds",
		metric.WithDescription("External service call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create external_operation_duration_seconds histogram: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, route pattern, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)

	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordFlowStarted records a flow entering the polling state.
func (m *Metrics) RecordFlowStarted(ctx context.Context) {
	if m == nil || m.flowsStarted == nil || m.flowsActive == nil {
		return // Instrumentation not initialized
	}

	m.flowsStarted.Add(ctx, 1)
	m.flowsActive.Add(ctx, 1)
}

// RecordFlowOutcome records the terminal outcome of a flow that was started.
func (m *Metrics) RecordFlowOutcome(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil || m.flowOutcomes == nil || m.flowsActive == nil || m.flowDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := metric.WithAttributes(attribute.String(attrOutcome, outcome))
	m.flowOutcomes.Add(ctx, 1, attrs)
	m.flowDuration.Record(ctx, duration.Seconds(), attrs)
	m.flowsActive.Add(ctx, -1)
}

// RecordFlowRejected records a flow that failed before reaching polling.
func (m *Metrics) RecordFlowRejected(ctx context.Context) {
	if m == nil || m.flowOutcomes == nil {
		return // Instrumentation not initialized
	}

	m.flowOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOutcome, OutcomeError)))
}

// RecordDuplicateStart records a start request that found a live flow.
func (m *Metrics) RecordDuplicateStart(ctx context.Context) {
	if m == nil || m.duplicateStarts == nil {
		return // Instrumentation not initialized
	}

	m.duplicateStarts.Add(ctx, 1)
}

// RecordBroadcast records a published broadcast message.
// Origin is "local" for messages published in this process and "remote" for relayed ones.
func (m *Metrics) RecordBroadcast(ctx context.Context, origin string) {
	if m == nil || m.broadcastsTotal == nil {
		return // Instrumentation not initialized
	}

	m.broadcastsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOrigin, origin)))
}

// RecordStoreWrite records a session store write.
func (m *Metrics) RecordStoreWrite(ctx context.Context, backend, status string) {
	if m == nil || m.storeWrites == nil {
		return // Instrumentation not initialized
	}

	m.storeWrites.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrBackend, backend),
		attribute.String(attrStatus, status),
	))
}

// RecordExternalOperation records a call to an external service.
//
// Parameters:
//   - service: ServiceGoogleOAuth, ServiceGmail or ServiceOpenAI
//   - operation: begin, check, exchange, list, get, complete, ...
//   - status: StatusSuccess or StatusError
func (m *Metrics) RecordExternalOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.externalOpsTotal == nil || m.externalOpDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels {
		attrs = append(attrs, attribute.String(attrOperation, operation))
	}

	m.externalOpsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.externalOpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := metric.WithAttributes(
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	)

	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}
