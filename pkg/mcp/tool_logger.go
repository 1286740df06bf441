package mcp

import (
	"context"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/logging"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/metrics"
)

// ToolCallLogger logs and counts MCP tool calls through mcp-go hooks.
// Arguments are never logged: they carry incident descriptions about people.
type ToolCallLogger struct {
	logger  *zap.Logger
	metrics *metrics.Metrics

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewToolCallLogger creates a ToolCallLogger. m may be nil.
func NewToolCallLogger(m *metrics.Metrics, logger *zap.Logger) *ToolCallLogger {
	return &ToolCallLogger{
		logger:  logger.Named("mcp-tools"),
		metrics: m,
	}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (l *ToolCallLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(l.beforeCallTool)
	hooks.AddAfterCallTool(l.afterCallTool)
	hooks.AddOnError(l.onError)
	return hooks
}

func (l *ToolCallLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	l.startTimes.Store(id, time.Now())
}

func (l *ToolCallLogger) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	duration := l.elapsed(id)

	outcome := metrics.OutcomeSuccess
	if result != nil && result.IsError {
		outcome = metrics.OutcomeFailure
	}
	l.metrics.ToolCall(req.Params.Name, outcome)

	l.logger.Info("Tool call",
		zap.String("tool", req.Params.Name),
		zap.String("outcome", outcome),
		zap.Duration("duration", duration))
}

func (l *ToolCallLogger) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	duration := l.elapsed(id)
	l.metrics.ToolCall(req.Params.Name, metrics.OutcomeFailure)
	l.logger.Error("Tool call error",
		zap.String("tool", req.Params.Name),
		zap.Duration("duration", duration),
		zap.String("error", logging.SanitizeError(err)))
}

func (l *ToolCallLogger) elapsed(id any) time.Duration {
	if v, ok := l.startTimes.LoadAndDelete(id); ok {
		return time.Since(v.(time.Time))
	}
	return 0
}
