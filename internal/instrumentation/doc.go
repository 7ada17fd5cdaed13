// Package instrumentation provides OpenTelemetry instrumentation for mailsense.
//
// # Metrics
//
// Authorization flow metrics:
//   - auth_flows_started_total: Counter of flows that reached the polling state
//   - auth_flow_outcomes_total: Counter of terminal outcomes by outcome
//     (success, failure, timeout, cancelled, error)
//   - auth_flows_active: Gauge of live flow attempts
//   - auth_duplicate_starts_total: Counter of start requests answered with in_progress
//   - auth_flow_duration_seconds: Histogram of time from start to terminal outcome
//
// Session metrics:
//   - broadcast_messages_total: Counter of published broadcast messages by origin
//   - session_store_writes_total: Counter of session writes by backend and status
//
// External service metrics:
//   - external_operations_total: Counter of calls to Google and OpenAI by service, operation, status
//   - external_operation_duration_seconds: Histogram of external call durations
//
// Server metrics:
//   - http_requests_total and http_request_duration_seconds
//   - mcp_tool_invocations_total and mcp_tool_duration_seconds
//
// # Tracing
//
// Spans are created for external calls (external.<service>.<operation>),
// MCP tool invocations (tool.<name>) and flow resolution (auth.resolve).
//
// # Configuration
//
// Configuration comes from environment variables, see DefaultConfig:
//
//	INSTRUMENTATION_ENABLED=true|false
//	METRICS_EXPORTER=prometheus|otlp|stdout
//	TRACING_EXPORTER=otlp|stdout|none
//	OTEL_EXPORTER_OTLP_ENDPOINT=localhost:4318
//	OTEL_TRACES_SAMPLER_ARG=0.1
//
// Every Metrics method is safe to call on a zero value, so components can be
// built without instrumentation in tests.
package instrumentation
