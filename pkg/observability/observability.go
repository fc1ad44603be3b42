package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bi-tools/weather-mcp/pkg/core"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AddAttributes sets attributes on the active trace span. When no span is
// recording, the attributes are logged instead so the data is not lost,
// together with trace/span IDs when present for correlation.
func AddAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		logAttrs := make([]slog.Attr, 0, len(attrs)+3)
		for _, attr := range attrs {
			logAttrs = append(logAttrs, slog.Any(string(attr.Key), attr.Value.AsInterface()))
		}
		logAttrs = append(logAttrs, slog.Bool("observability.fallback", true))
		if span != nil {
			sc := span.SpanContext()
			if sc.HasTraceID() {
				logAttrs = append(logAttrs, slog.String("trace_id", sc.TraceID().String()))
			}
			if sc.HasSpanID() {
				logAttrs = append(logAttrs, slog.String("span_id", sc.SpanID().String()))
			}
		}
		core.LoggerFromCtx(ctx).LogAttrs(ctx, slog.LevelInfo, "request attributes", logAttrs...)
		return
	}
	span.SetAttributes(attrs...)
}

// ToolMiddleware records the tool name and arguments before each tool call
// and the outcome and latency after it, on the active span or the log.
func ToolMiddleware() server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			start := time.Now()
			AddAttributes(ctx,
				attribute.String("mcp.tool", req.Params.Name),
				attribute.String("mcp.params", fmt.Sprintf("%+v", req.Params)),
			)

			res, err := next(ctx, req)
			durationMs := float64(time.Since(start).Microseconds()) / 1000.0

			status := "ok"
			var errMsg string
			if err != nil {
				status = "error"
				errMsg = err.Error()
			} else if res != nil && res.IsError {
				status = "error"
				if len(res.Content) > 0 {
					if txt, ok := res.Content[0].(mcp.TextContent); ok {
						errMsg = txt.Text
					} else {
						errMsg = fmt.Sprintf("unknown error with content type %T", res.Content[0])
					}
				} else {
					errMsg = "unknown error with no content"
				}
			}

			attrs := []attribute.KeyValue{
				attribute.String("mcp.status", status),
				attribute.Float64("mcp.duration_ms", durationMs),
			}
			if errMsg != "" {
				attrs = append(attrs, attribute.String("mcp.error", errMsg))
			}
			AddAttributes(ctx, attrs...)

			return res, err
		}
	}
}
