package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/llm"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/logging"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/prompts"
)

// CourseGenerator drafts training course outlines grounded in policy.
type CourseGenerator interface {
	// Generate returns GenerationError, not an error, when the model output is
	// unusable. An error is returned only when no provider could answer.
	Generate(ctx context.Context, req prompts.CourseRequest, triggeredBy *uuid.UUID) (*models.GenerationResult, error)
}

type courseGenerator struct {
	retriever KnowledgeRetriever
	router    ProviderRegistry
	decisions DecisionLogService
	logger    *zap.Logger
}

// NewCourseGenerator creates a new CourseGenerator.
func NewCourseGenerator(retriever KnowledgeRetriever, router ProviderRegistry, decisions DecisionLogService, logger *zap.Logger) CourseGenerator {
	return &courseGenerator{
		retriever: retriever,
		router:    router,
		decisions: decisions,
		logger:    logger.Named("course-generator"),
	}
}

var _ CourseGenerator = (*courseGenerator)(nil)

func (g *courseGenerator) Generate(ctx context.Context, req prompts.CourseRequest, triggeredBy *uuid.UUID) (*models.GenerationResult, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, fmt.Errorf("topic is required")
	}

	policies := g.retriever.SearchGlobal(ctx, req.Topic)

	res, err := g.router.Run(ctx,
		[]llm.Message{llm.UserMessage(prompts.BuildCoursePrompt(req, policies))},
		RunOptions{SystemPrompt: prompts.CourseGenerationSystemPrompt})
	if err != nil {
		g.logger.Error("Course generation failed", zap.String("error", logging.SanitizeError(err)))
		return nil, apperrors.NewPublicError(apperrors.ErrGenerationFailed, err)
	}

	result := &models.GenerationResult{Status: models.GenerationSuccess}
	outline, err := llm.ParseJSONResponse[models.CourseOutline](res.Text)
	switch {
	case err != nil:
		g.logger.Warn("Could not parse course outline", zap.String("error", err.Error()))
		result = generationFailed()
	case strings.TrimSpace(outline.Title) == "" || len(outline.Modules) == 0:
		g.logger.Warn("Course outline is missing a title or modules")
		result = generationFailed()
	default:
		result.Outline = &outline
	}

	chunkIDs := make([]uuid.UUID, len(policies))
	for i, p := range policies {
		chunkIDs[i] = p.ID
	}
	result.DecisionLogID = g.decisions.Record(ctx, &models.DecisionLog{
		ActionType:          models.ActionCourseGeneration,
		InputSummary:        req.Topic,
		OutputSummary:       string(result.Status),
		FullResponse:        res.Text,
		SourceChunkIDs:      chunkIDs,
		AuthorityLayersUsed: prompts.LayersUsed(&models.RetrievalResult{Global: policies}, models.PersonalityConfig{}),
		TriggeredBy:         triggeredBy,
		ModelUsed:           res.Model,
		TokenCount:          res.Usage.TotalTokens,
	})

	return result, nil
}

func generationFailed() *models.GenerationResult {
	return &models.GenerationResult{
		Status:  models.GenerationError,
		Message: "The course outline could not be generated. Please try again.",
	}
}
