package common

import (
	"context"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/mailsense/internal/instrumentation"
	"github.com/teemow/mailsense/internal/logging"
	"github.com/teemow/mailsense/internal/server"
)

// ToolHandler is the handler signature mcp-go expects.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandler wraps a tool handler with metrics and logging.
// It records the tool invocation and logs failed calls.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		start := time.Now()
		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = instrumentation.StatusError
		}
		if err != nil {
			instrumentation.SetSpanError(span, err)
		} else {
			instrumentation.SetSpanStatus(span, status)
		}

		sc.Metrics().RecordToolInvocation(ctx, toolName, status, duration)

		logger := logging.WithTool(sc.Logger(), toolName)
		attrs := []any{
			logging.UserHash(UserIDFromArgs(request.GetArguments(), "")),
			logging.Status(status),
			slog.Duration(logging.KeyDuration, duration),
		}
		if traceID := instrumentation.GetTraceID(ctx); traceID != "" {
			attrs = append(attrs, slog.String("trace_id", traceID))
		}
		switch {
		case err != nil:
			logger.Warn("Tool invocation failed", append(attrs, logging.Err(err))...)
		case status == instrumentation.StatusError:
			logger.Info("Tool returned an error result", attrs...)
		default:
			logger.Debug("Tool invocation completed", attrs...)
		}
		return result, err
	}
}
