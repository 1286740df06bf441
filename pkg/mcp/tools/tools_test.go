package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/llm"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/services"
)

func TestHealthTool(t *testing.T) {
	s := newTestServer(&ToolDeps{Router: &mockRouter{infos: []llm.ProviderInfo{{Name: "local", Model: "llama3.1", IsLocal: true}}}})

	r := callTool(t, s, "health", nil)
	require.False(t, r.IsError)

	var got healthResult
	require.NoError(t, json.Unmarshal([]byte(r.Text), &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, "test-version", got.Version)
	require.Len(t, got.Providers, 1)
	assert.True(t, got.Providers[0].IsLocal)
}

func TestHealthTool_DegradedWithoutProviders(t *testing.T) {
	s := newTestServer(&ToolDeps{Router: &mockRouter{err: apperrors.ErrNoProvidersAvailable}})

	var got healthResult
	require.NoError(t, json.Unmarshal([]byte(callTool(t, s, "health", nil).Text), &got))
	assert.Equal(t, "degraded", got.Status)
	assert.Empty(t, got.Providers)
}

func TestReasonTool(t *testing.T) {
	subjectID := uuid.New()
	chunkID := uuid.New()
	orch := &mockOrchestrator{
		executeFunc: func(ctx context.Context, req services.ReasonRequest) (*services.ReasonResponse, error) {
			return &services.ReasonResponse{
				Response:            "Reports are due at 6pm.",
				SourceChunkIDs:      []uuid.UUID{chunkID},
				AuthorityLayersUsed: []string{"Layer1:handbook"},
				TokenCount:          12,
			}, nil
		},
	}
	s := newTestServer(&ToolDeps{Orchestrator: orch})

	r := callTool(t, s, "reason", map[string]any{
		"query":       "  When are reports due?  ",
		"subject_id":  subjectID.String(),
		"sensitivity": "high",
		"history": []map[string]any{
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": "hello"},
		},
	})
	require.False(t, r.IsError, r.Text)

	var got services.ReasonResponse
	require.NoError(t, json.Unmarshal([]byte(r.Text), &got))
	assert.Equal(t, "Reports are due at 6pm.", got.Response)
	assert.Equal(t, []uuid.UUID{chunkID}, got.SourceChunkIDs)

	assert.Equal(t, "When are reports due?", orch.lastReq.Query)
	assert.Equal(t, subjectID, *orch.lastReq.SubjectID)
	assert.Equal(t, models.SensitivityHigh, orch.lastReq.Sensitivity)
	assert.Equal(t, []llm.Message{llm.UserMessage("hi"), llm.AssistantMessage("hello")}, orch.lastReq.History)
}

func TestReasonTool_InvalidParameters(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing query", map[string]any{}},
		{"blank query", map[string]any{"query": "   "}},
		{"bad subject", map[string]any{"query": "q", "subject_id": "not-a-uuid"}},
		{"bad role", map[string]any{"query": "q", "history": []map[string]any{{"role": "system", "content": "x"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch := &mockOrchestrator{}
			s := newTestServer(&ToolDeps{Orchestrator: orch})

			e := decodeError(t, callTool(t, s, "reason", tt.args))
			assert.Equal(t, "invalid_parameters", e.Code)
			assert.Empty(t, orch.lastReq.Query, "orchestrator must not be called")
		})
	}
}

func TestReasonTool_FailureIsGeneric(t *testing.T) {
	orch := &mockOrchestrator{
		executeFunc: func(ctx context.Context, req services.ReasonRequest) (*services.ReasonResponse, error) {
			return nil, apperrors.NewPublicError(apperrors.ErrGenerationFailed, errors.New("401 invalid x-api-key sk-live-123"))
		},
	}
	s := newTestServer(&ToolDeps{Orchestrator: orch})

	r := callTool(t, s, "reason", map[string]any{"query": "hello"})
	e := decodeError(t, r)
	assert.Equal(t, "unavailable", e.Code)
	assert.Equal(t, apperrors.ErrGenerationFailed.Error(), e.Message)
	assert.NotContains(t, r.Text, "sk-live-123")
}

func TestPreviewPromptTool(t *testing.T) {
	var seen services.PreviewRequest
	orch := &mockOrchestrator{
		previewFunc: func(ctx context.Context, req services.PreviewRequest) (string, error) {
			seen = req
			return "BASE\n\nOPERATING RULES", nil
		},
	}
	s := newTestServer(&ToolDeps{Orchestrator: orch})

	r := callTool(t, s, "preview_prompt", map[string]any{"query": "reports", "context": "week 3"})
	require.False(t, r.IsError)
	assert.Equal(t, "BASE\n\nOPERATING RULES", r.Text)
	assert.Equal(t, "reports", seen.Query)
	assert.Equal(t, "week 3", seen.ExtraContext)
}

func violationCheck() *models.ViolationCheck {
	clause := "Reports are due by 6pm."
	return &models.ViolationCheck{
		Outcome:         models.OutcomeViolation,
		IsViolation:     true,
		ViolationType:   "late_report",
		Severity:        models.SeverityModerate,
		Description:     "Report submitted at 9pm",
		ViolatedClause:  &clause,
		PointsDeduction: 25,
	}
}

func TestCheckViolationTool_IssuesWhenRequested(t *testing.T) {
	subjectID := uuid.New()
	enf := &mockEnforcement{
		checkFunc: func(ctx context.Context, req services.ViolationCheckRequest) (*models.ViolationCheck, error) {
			assert.Equal(t, subjectID, req.SubjectID)
			return violationCheck(), nil
		},
		issueFunc: func(ctx context.Context, id uuid.UUID, check *models.ViolationCheck, issuedBy *uuid.UUID, isAutonomous bool) (*models.Warning, error) {
			assert.Nil(t, issuedBy)
			assert.True(t, isAutonomous)
			return &models.Warning{SubjectID: id, WarningNumber: 1, PointsDeducted: check.PointsDeduction}, nil
		},
	}
	s := newTestServer(&ToolDeps{Enforcement: enf})

	r := callTool(t, s, "check_violation", map[string]any{
		"description": "Submitted the daily report at 9pm",
		"subject_id":  subjectID.String(),
		"issue":       true,
	})
	require.False(t, r.IsError, r.Text)

	var got checkViolationResult
	require.NoError(t, json.Unmarshal([]byte(r.Text), &got))
	assert.True(t, got.Check.IsViolation)
	require.NotNil(t, got.Warning)
	assert.Equal(t, 1, got.Warning.WarningNumber)
	assert.Equal(t, 1, enf.issueCalls)
}

func TestCheckViolationTool_DoesNotIssueWithoutViolation(t *testing.T) {
	enf := &mockEnforcement{
		checkFunc: func(ctx context.Context, req services.ViolationCheckRequest) (*models.ViolationCheck, error) {
			return &models.ViolationCheck{Outcome: models.OutcomeNoPolicy}, nil
		},
	}
	s := newTestServer(&ToolDeps{Enforcement: enf})

	r := callTool(t, s, "check_violation", map[string]any{
		"description": "Arrived five minutes early",
		"subject_id":  uuid.NewString(),
		"issue":       true,
	})
	require.False(t, r.IsError)

	var got checkViolationResult
	require.NoError(t, json.Unmarshal([]byte(r.Text), &got))
	assert.Equal(t, models.OutcomeNoPolicy, got.Check.Outcome)
	assert.Nil(t, got.Warning)
	assert.Equal(t, 0, enf.issueCalls)
}

func TestCheckViolationTool_SkipsWarningThatNeedsReview(t *testing.T) {
	enf := &mockEnforcement{
		checkFunc: func(ctx context.Context, req services.ViolationCheckRequest) (*models.ViolationCheck, error) {
			check := violationCheck()
			check.ViolatedClause = nil
			check.RequiresReview = true
			return check, nil
		},
		issueFunc: func(ctx context.Context, id uuid.UUID, check *models.ViolationCheck, issuedBy *uuid.UUID, isAutonomous bool) (*models.Warning, error) {
			return nil, apperrors.ErrRequiresReview
		},
	}
	s := newTestServer(&ToolDeps{Enforcement: enf})

	r := callTool(t, s, "check_violation", map[string]any{
		"description": "Wore jeans on Friday",
		"subject_id":  uuid.NewString(),
		"issue":       true,
	})
	require.False(t, r.IsError, r.Text)

	var got checkViolationResult
	require.NoError(t, json.Unmarshal([]byte(r.Text), &got))
	assert.True(t, got.Check.RequiresReview)
	assert.Nil(t, got.Warning)
	assert.Equal(t, apperrors.ErrRequiresReview.Error(), got.WarningSkipped)
	assert.Equal(t, 1, enf.issueCalls)
}

func TestIssueWarningTool(t *testing.T) {
	subjectID := uuid.New()
	operator := uuid.New()
	enf := &mockEnforcement{
		issueFunc: func(ctx context.Context, id uuid.UUID, check *models.ViolationCheck, issuedBy *uuid.UUID, isAutonomous bool) (*models.Warning, error) {
			assert.Equal(t, operator, *issuedBy)
			assert.False(t, isAutonomous)
			assert.Equal(t, "Reports are due by 6pm.", *check.ViolatedClause)
			return &models.Warning{SubjectID: id, WarningNumber: 3, RequiresMeeting: true}, nil
		},
	}
	s := newTestServer(&ToolDeps{Enforcement: enf})

	r := callTool(t, s, "issue_warning", map[string]any{
		"subject_id": subjectID.String(),
		"issued_by":  operator.String(),
		"violation":  violationCheck(),
	})
	require.False(t, r.IsError, r.Text)

	var got models.Warning
	require.NoError(t, json.Unmarshal([]byte(r.Text), &got))
	assert.Equal(t, 3, got.WarningNumber)
	assert.True(t, got.RequiresMeeting)
}

func TestIssueWarningTool_Errors(t *testing.T) {
	enf := &mockEnforcement{
		issueFunc: func(ctx context.Context, id uuid.UUID, check *models.ViolationCheck, issuedBy *uuid.UUID, isAutonomous bool) (*models.Warning, error) {
			return nil, apperrors.ErrNotAViolation
		},
	}
	s := newTestServer(&ToolDeps{Enforcement: enf})

	e := decodeError(t, callTool(t, s, "issue_warning", map[string]any{"subject_id": uuid.NewString()}))
	assert.Equal(t, "invalid_parameters", e.Code)

	e = decodeError(t, callTool(t, s, "issue_warning", map[string]any{
		"subject_id": uuid.NewString(),
		"violation":  map[string]any{"is_violation": false},
	}))
	assert.Equal(t, "not_a_violation", e.Code)

	enf.issueFunc = func(ctx context.Context, id uuid.UUID, check *models.ViolationCheck, issuedBy *uuid.UUID, isAutonomous bool) (*models.Warning, error) {
		return nil, apperrors.ErrRequiresReview
	}
	e = decodeError(t, callTool(t, s, "issue_warning", map[string]any{
		"subject_id": uuid.NewString(),
		"violation":  map[string]any{"is_violation": true, "requires_review": true},
	}))
	assert.Equal(t, "requires_review", e.Code)
}

func TestListWarningsTool(t *testing.T) {
	enf := &mockEnforcement{}
	s := newTestServer(&ToolDeps{Enforcement: enf})

	r := callTool(t, s, "list_warnings", map[string]any{"subject_id": uuid.NewString()})
	require.False(t, r.IsError)
	assert.Contains(t, r.Text, `"warnings":[]`)
}

func TestSearchKnowledgeTool(t *testing.T) {
	chunk := models.KnowledgeChunk{ID: uuid.New(), Content: "Reports by 6pm.", AuthorityLevel: 1, Embedding: []float32{0.1, 0.2}}
	s := newTestServer(&ToolDeps{Retriever: &mockRetriever{result: &models.RetrievalResult{Combined: []models.KnowledgeChunk{chunk}}}})

	r := callTool(t, s, "search_knowledge", map[string]any{"query": "reports"})
	require.False(t, r.IsError)

	var got searchKnowledgeResult
	require.NoError(t, json.Unmarshal([]byte(r.Text), &got))
	require.Len(t, got.Chunks, 1)
	assert.Equal(t, chunk.ID, got.Chunks[0].ID)
	assert.NotContains(t, r.Text, "embedding")
}
