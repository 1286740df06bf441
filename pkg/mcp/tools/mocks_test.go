package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/llm"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/services"
)

type mockOrchestrator struct {
	executeFunc func(ctx context.Context, req services.ReasonRequest) (*services.ReasonResponse, error)
	previewFunc func(ctx context.Context, req services.PreviewRequest) (string, error)
	lastReq     services.ReasonRequest
}

func (m *mockOrchestrator) Execute(ctx context.Context, req services.ReasonRequest) (*services.ReasonResponse, error) {
	m.lastReq = req
	if m.executeFunc != nil {
		return m.executeFunc(ctx, req)
	}
	return &services.ReasonResponse{Response: "ok"}, nil
}

func (m *mockOrchestrator) ExecuteStream(ctx context.Context, req services.ReasonRequest) (*llm.Stream, *services.ReasonResponse, error) {
	return llm.StreamFromDeltas("ok"), &services.ReasonResponse{}, nil
}

func (m *mockOrchestrator) PreviewPrompt(ctx context.Context, req services.PreviewRequest) (string, error) {
	if m.previewFunc != nil {
		return m.previewFunc(ctx, req)
	}
	return "PROMPT", nil
}

var _ services.ReasoningOrchestrator = (*mockOrchestrator)(nil)

type mockEnforcement struct {
	checkFunc  func(ctx context.Context, req services.ViolationCheckRequest) (*models.ViolationCheck, error)
	issueFunc  func(ctx context.Context, subjectID uuid.UUID, check *models.ViolationCheck, issuedBy *uuid.UUID, isAutonomous bool) (*models.Warning, error)
	issueCalls int
	warnings   []*models.Warning
}

func (m *mockEnforcement) CheckForViolations(ctx context.Context, req services.ViolationCheckRequest) (*models.ViolationCheck, error) {
	return m.checkFunc(ctx, req)
}

func (m *mockEnforcement) IssueWarning(ctx context.Context, subjectID uuid.UUID, check *models.ViolationCheck, issuedBy *uuid.UUID, isAutonomous bool) (*models.Warning, error) {
	m.issueCalls++
	return m.issueFunc(ctx, subjectID, check, issuedBy, isAutonomous)
}

func (m *mockEnforcement) ListWarnings(ctx context.Context, subjectID uuid.UUID) ([]*models.Warning, error) {
	return m.warnings, nil
}

var _ services.EnforcementService = (*mockEnforcement)(nil)

type mockRetriever struct {
	services.KnowledgeRetriever
	result *models.RetrievalResult
}

func (m *mockRetriever) Retrieve(ctx context.Context, query string, subjectID *uuid.UUID) *models.RetrievalResult {
	return m.result
}

type mockRouter struct {
	services.ProviderRegistry
	infos []llm.ProviderInfo
	err   error
}

func (m *mockRouter) Providers(ctx context.Context) ([]llm.ProviderInfo, error) {
	return m.infos, m.err
}

func newTestServer(deps *ToolDeps) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Router == nil {
		deps.Router = &mockRouter{}
	}
	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterAll(s, deps, "test-version")
	return s
}

type toolResponse struct {
	IsError bool
	Text    string
}

// callTool invokes a tool through the JSON-RPC entry point and returns the
// first text content.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) toolResponse {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(s.HandleMessage(context.Background(), payload))
	require.NoError(t, err)

	var resp struct {
		Result struct {
			IsError bool `json:"isError"`
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.NotEmpty(t, resp.Result.Content, "response: %s", raw)
	return toolResponse{IsError: resp.Result.IsError, Text: resp.Result.Content[0].Text}
}

func decodeError(t *testing.T, r toolResponse) ErrorResponse {
	t.Helper()
	require.True(t, r.IsError)
	var e ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(r.Text), &e))
	return e
}
