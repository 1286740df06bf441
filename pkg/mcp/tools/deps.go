// Package tools exposes the reasoning core as MCP tools.
package tools

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/services"
)

// ToolDeps contains the services the MCP tools call into.
type ToolDeps struct {
	Orchestrator services.ReasoningOrchestrator
	Enforcement  services.EnforcementService
	Retriever    services.KnowledgeRetriever
	Router       services.ProviderRegistry
	Logger       *zap.Logger
}

// RegisterAll registers every reasoning tool on s.
func RegisterAll(s *server.MCPServer, deps *ToolDeps, version string) {
	RegisterHealthTool(s, deps.Router, version)
	RegisterReasoningTools(s, deps)
	RegisterEnforcementTools(s, deps)
	RegisterKnowledgeTools(s, deps)
}
