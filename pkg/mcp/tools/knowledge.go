package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

type searchKnowledgeResult struct {
	Query  string                  `json:"query"`
	Chunks []models.KnowledgeChunk `json:"chunks"`
}

// RegisterKnowledgeTools registers knowledge search tools.
func RegisterKnowledgeTools(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"search_knowledge",
		mcp.WithDescription(
			"Search the knowledge base the reason tool grounds its answers in. "+
				"Results are ordered by authority level first (1 = organization policy) and similarity second. "+
				"Pass subject_id to include notes about that subject.",
		),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to search for")),
		mcp.WithString("subject_id", mcp.Description("Optional - UUID of the subject whose notes should be included")),
		mcp.WithReadOnlyHintAnnotation(true),
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

		result := deps.Retriever.Retrieve(ctx, trimString(query), subjectID)
		chunks := result.Combined
		if chunks == nil {
			chunks = []models.KnowledgeChunk{}
		}
		return jsonResult(searchKnowledgeResult{Query: trimString(query), Chunks: chunks})
	})
}
