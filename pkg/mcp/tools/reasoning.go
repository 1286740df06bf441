package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/llm"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/services"
)

// MaxHistoryMessages bounds the conversation history accepted by the reason tool.
const MaxHistoryMessages = 50

// RegisterReasoningTools registers the reason and preview_prompt tools.
func RegisterReasoningTools(s *server.MCPServer, deps *ToolDeps) {
	registerReasonTool(s, deps)
	registerPreviewPromptTool(s, deps)
}

func registerReasonTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"reason",
		mcp.WithDescription(
			"Answer a question grounded in the organization's knowledge base. "+
				"Organization-wide policy always outranks subject-specific notes. "+
				"Returns the answer with the knowledge chunk ids and authority layers it was based on.",
		),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question or message to answer")),
		mcp.WithString("subject_id", mcp.Description("Optional - UUID of the subject (e.g. an intern) the question is about")),
		mcp.WithArray(
			"history",
			mcp.Description("Optional - earlier conversation turns, oldest first"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"role":    map[string]any{"type": "string", "enum": []string{"user", "assistant"}},
					"content": map[string]any{"type": "string"},
				},
				"required": []string{"role", "content"},
			}),
		),
		mcp.WithString("sensitivity", mcp.Description("Optional - 'low', 'medium' (default) or 'high'. High keeps the request on local providers")),
		mcp.WithString("context", mcp.Description("Optional - extra context to include in the prompt")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || trimString(query) == "" {
			return NewErrorResult("invalid_parameters", "parameter 'query' cannot be empty"), nil
		}

		subjectID, err := getOptionalUUID(req, "subject_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		history, err := parseHistory(req)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		resp, err := deps.Orchestrator.Execute(ctx, services.ReasonRequest{
			Query:        trimString(query),
			SubjectID:    subjectID,
			History:      history,
			Sensitivity:  models.ParseSensitivity(getOptionalString(req, "sensitivity")),
			ExtraContext: getOptionalString(req, "context"),
		})
		if err != nil {
			return serviceErrorResult(deps.Logger, "reason", err), nil
		}
		return jsonResult(resp)
	})
}

func parseHistory(req mcp.CallToolRequest) ([]llm.Message, error) {
	var history []llm.Message
	if _, err := decodeArgument(req, "history", &history); err != nil {
		return nil, err
	}
	if len(history) > MaxHistoryMessages {
		return nil, fmt.Errorf("too many history messages: maximum %d allowed, got %d", MaxHistoryMessages, len(history))
	}
	for _, m := range history {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			return nil, fmt.Errorf("invalid history role %q: expected 'user' or 'assistant'", m.Role)
		}
	}
	return history, nil
}

func registerPreviewPromptTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"preview_prompt",
		mcp.WithDescription(
			"Render the system prompt the reason tool would send, without calling a model. "+
				"Pass a query to include the knowledge it would retrieve.",
		),
		mcp.WithString("query", mcp.Description("Optional - query used to retrieve knowledge")),
		mcp.WithString("subject_id", mcp.Description("Optional - UUID of the subject")),
		mcp.WithString("context", mcp.Description("Optional - extra context to include")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		subjectID, err := getOptionalUUID(req, "subject_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		prompt, err := deps.Orchestrator.PreviewPrompt(ctx, services.PreviewRequest{
			Query:        getOptionalString(req, "query"),
			SubjectID:    subjectID,
			ExtraContext: getOptionalString(req, "context"),
		})
		if err != nil {
			return serviceErrorResult(deps.Logger, "preview_prompt", err), nil
		}
		return mcp.NewToolResultText(prompt), nil
	})
}
