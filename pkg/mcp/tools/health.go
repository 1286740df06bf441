package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/services"
)

type healthProvider struct {
	Name    string `json:"name"`
	Model   string `json:"model"`
	IsLocal bool   `json:"is_local"`
}

type healthResult struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	Providers []healthProvider `json:"providers"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// Status is "degraded" when no provider is loaded.
func RegisterHealthTool(s *server.MCPServer, router services.ProviderRegistry, version string) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version and the loaded AI providers"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: version, Providers: []healthProvider{}}

		infos, err := router.Providers(ctx)
		if err != nil || len(infos) == 0 {
			result.Status = "degraded"
		}
		for _, info := range infos {
			result.Providers = append(result.Providers, healthProvider{
				Name:    info.Name,
				Model:   info.Model,
				IsLocal: info.IsLocal,
			})
		}
		return jsonResult(result)
	})
}
