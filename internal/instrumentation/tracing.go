package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for mailsense.
const TracerName = "github.com/teemow/mailsense"

// Span attribute keys.
const (
	SpanAttrTool      = "mcp.tool"
	SpanAttrService   = "external.service"
	SpanAttrOperation = "external.operation"
	SpanAttrFlowID    = "auth.flow_id"
	SpanAttrOutcome   = "auth.outcome"
	SpanAttrStatus    = "mcp.status"
)

// StartSpan starts a new span with the given name and attributes.
// The caller ends the span with defer span.End().
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartFlowSpan starts an internal span tagged with an authorization flow id.
func StartFlowSpan(ctx context.Context, name, flowID string) (context.Context, trace.Span) {
	return StartSpan(ctx, name, attribute.String(SpanAttrFlowID, flowID))
}

// SetFlowOutcome tags span with the outcome a flow resolved to.
func SetFlowOutcome(span trace.Span, outcome string) {
	span.SetAttributes(attribute.String(SpanAttrOutcome, outcome))
}

// StartToolSpan starts a server span for an MCP tool invocation.
func StartToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "tool."+toolName,
		trace.WithAttributes(attribute.String(SpanAttrTool, toolName)),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartExternalSpan starts a client span for a call to an external service.
func StartExternalSpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs,
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	)
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "external."+service+"."+operation,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanStatus records a tool status. Error results are not Go errors, so
// the span status stays unset for them.
func SetSpanStatus(span trace.Span, status string) {
	span.SetAttributes(attribute.String(SpanAttrStatus, status))
	if status == StatusSuccess {
		SetSpanSuccess(span)
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID from the current span in context.
// Returns empty string if no valid span is present.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
