package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/config"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/llm"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/prompts"
)

func newCourseFixture(response string) (*registryFixture, *mockDecisionLogRepo, CourseGenerator) {
	rf := newRegistryFixture(cloudConfig("cloud", 1))
	rf.mock("cloud").GenerateTextFunc = func(ctx context.Context, messages []llm.Message, systemPrompt string) (*llm.Result, error) {
		return &llm.Result{Text: response, Model: "cloud-model"}, nil
	}
	logs := &mockDecisionLogRepo{}
	retriever := &stubRetriever{global: []models.KnowledgeChunk{policyChunk("Safety training is mandatory.", "handbook", 1)}}
	gen := NewCourseGenerator(retriever, rf.registry(config.RoutingConfig{}), NewDecisionLogService(logs, rf.metrics, zap.NewNop()), zap.NewNop())
	return rf, logs, gen
}

func TestCourseGenerator_Generate(t *testing.T) {
	response := "```json\n" + `{"title":"Site Safety","description":"Basics","modules":[{"title":"PPE","objectives":["Wear it"],"lessons":[{"title":"Helmets","summary":"Always"}]}]}` + "\n```"
	rf, logs, gen := newCourseFixture(response)

	result, err := gen.Generate(context.Background(), prompts.CourseRequest{Topic: "site safety", ModuleCount: 1}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.GenerationSuccess, result.Status)
	require.NotNil(t, result.Outline)
	assert.Equal(t, "Site Safety", result.Outline.Title)
	require.Len(t, result.Outline.Modules, 1)
	assert.Equal(t, "Helmets", result.Outline.Modules[0].Lessons[0].Title)

	assert.Contains(t, rf.mock("cloud").LastSystemPrompt(), "JSON")

	entries := logs.all()
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionCourseGeneration, entries[0].ActionType)
	assert.Len(t, entries[0].SourceChunkIDs, 1)
	require.NotNil(t, result.DecisionLogID)
}

func TestCourseGenerator_UnusableOutput(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"prose", "Here is a course about safety."},
		{"missing modules", `{"title":"Safety","modules":[]}`},
		{"missing title", `{"modules":[{"title":"PPE"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, logs, gen := newCourseFixture(tt.response)

			result, err := gen.Generate(context.Background(), prompts.CourseRequest{Topic: "safety"}, nil)
			require.NoError(t, err)

			assert.Equal(t, models.GenerationError, result.Status)
			assert.Nil(t, result.Outline)
			assert.NotEmpty(t, result.Message)
			assert.Len(t, logs.all(), 1)
		})
	}
}

func TestCourseGenerator_ProviderFailure(t *testing.T) {
	rf, logs, gen := newCourseFixture("")
	failing(rf.mock("cloud"), errors.New("503 overloaded"))

	_, err := gen.Generate(context.Background(), prompts.CourseRequest{Topic: "safety"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrGenerationFailed)
	assert.Empty(t, logs.all())
}

func TestCourseGenerator_RequiresTopic(t *testing.T) {
	rf, _, gen := newCourseFixture("")

	_, err := gen.Generate(context.Background(), prompts.CourseRequest{Topic: "  "}, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, rf.mock("cloud").GenerateCalls())
}
