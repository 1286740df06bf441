package services

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/llm"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/logging"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/prompts"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/repositories"
)

// ReasonRequest is one reasoning invocation.
type ReasonRequest struct {
	Query        string
	SubjectID    *uuid.UUID
	History      []llm.Message
	ActionType   string             // defaults to chat_response
	TriggeredBy  *uuid.UUID         // nil = autonomous
	Sensitivity  models.Sensitivity // defaults to medium
	ExtraContext string
}

// ReasonResponse is the answer plus its provenance.
type ReasonResponse struct {
	Response            string      `json:"response"`
	SourceChunkIDs      []uuid.UUID `json:"source_chunk_ids"`
	AuthorityLayersUsed []string    `json:"authority_layers_used"`
	TokenCount          int         `json:"token_count"`
	Model               string      `json:"model"`
	Provider            string      `json:"provider"`
	DecisionLogID       *uuid.UUID  `json:"decision_log_id,omitempty"`
}

// PreviewRequest selects what PreviewPrompt renders. An empty Query renders
// the prompt without retrieved knowledge.
type PreviewRequest struct {
	Query        string
	SubjectID    *uuid.UUID
	ExtraContext string
}

// ReasoningOrchestrator runs the retrieve, compose, route, audit pipeline.
type ReasoningOrchestrator interface {
	// Execute answers a request. Retrieval and audit failures never fail it;
	// provider failure returns a PublicError wrapping ErrGenerationFailed.
	Execute(ctx context.Context, req ReasonRequest) (*ReasonResponse, error)

	// ExecuteStream is Execute with a streamed answer. The decision log is
	// written when the returned stream is closed or drained.
	ExecuteStream(ctx context.Context, req ReasonRequest) (*llm.Stream, *ReasonResponse, error)

	// PreviewPrompt renders the composed system prompt without calling a model.
	PreviewPrompt(ctx context.Context, req PreviewRequest) (string, error)
}

type reasoningOrchestrator struct {
	retriever KnowledgeRetriever
	router    ProviderRegistry
	settings  repositories.SettingsRepository
	decisions DecisionLogService
	logger    *zap.Logger
}

// NewReasoningOrchestrator creates a new ReasoningOrchestrator.
func NewReasoningOrchestrator(
	retriever KnowledgeRetriever,
	router ProviderRegistry,
	settings repositories.SettingsRepository,
	decisions DecisionLogService,
	logger *zap.Logger,
) ReasoningOrchestrator {
	return &reasoningOrchestrator{
		retriever: retriever,
		router:    router,
		settings:  settings,
		decisions: decisions,
		logger:    logger.Named("reasoning"),
	}
}

var _ ReasoningOrchestrator = (*reasoningOrchestrator)(nil)

// prepared is everything known before the model is called.
type prepared struct {
	retrieval    *models.RetrievalResult
	settings     *models.EngineSettings
	systemPrompt string
	messages     []llm.Message
	layers       []string
}

func (o *reasoningOrchestrator) prepare(ctx context.Context, req ReasonRequest) *prepared {
	retrieval := o.retriever.Retrieve(ctx, req.Query, req.SubjectID)
	settings := o.loadSettings(ctx)

	messages := make([]llm.Message, 0, len(req.History)+1)
	messages = append(messages, req.History...)
	messages = append(messages, llm.UserMessage(req.Query))

	return &prepared{
		retrieval:    retrieval,
		settings:     settings,
		systemPrompt: prompts.Compose(retrieval, settings, req.ExtraContext),
		messages:     messages,
		layers:       prompts.LayersUsed(retrieval, settings.Personality),
	}
}

func (o *reasoningOrchestrator) loadSettings(ctx context.Context) *models.EngineSettings {
	s, err := o.settings.Get(ctx)
	if err != nil || s == nil {
		if err != nil {
			o.logger.Warn("Failed to load engine settings, using defaults",
				zap.String("error", logging.SanitizeError(err)))
		}
		return models.DefaultEngineSettings()
	}
	return s
}

func (o *reasoningOrchestrator) Execute(ctx context.Context, req ReasonRequest) (*ReasonResponse, error) {
	p := o.prepare(ctx, req)

	res, err := o.router.Run(ctx, p.messages, RunOptions{
		SystemPrompt: p.systemPrompt,
		Sensitivity:  sensitivityOrDefault(req.Sensitivity),
	})
	if err != nil {
		o.logger.Error("Reasoning failed",
			zap.String("action_type", actionTypeOrDefault(req.ActionType)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, apperrors.NewPublicError(apperrors.ErrGenerationFailed, err)
	}

	resp := &ReasonResponse{
		Response:            res.Text,
		SourceChunkIDs:      p.retrieval.ChunkIDs(),
		AuthorityLayersUsed: p.layers,
		TokenCount:          res.Usage.TotalTokens,
		Model:               res.Model,
		Provider:            res.Provider,
	}
	resp.DecisionLogID = o.record(ctx, req, resp)
	return resp, nil
}

func (o *reasoningOrchestrator) ExecuteStream(ctx context.Context, req ReasonRequest) (*llm.Stream, *ReasonResponse, error) {
	p := o.prepare(ctx, req)

	upstream, err := o.router.Stream(ctx, p.messages, RunOptions{
		SystemPrompt: p.systemPrompt,
		Sensitivity:  sensitivityOrDefault(req.Sensitivity),
	})
	if err != nil {
		o.logger.Error("Streaming reasoning failed",
			zap.String("error", logging.SanitizeError(err)))
		return nil, nil, apperrors.NewPublicError(apperrors.ErrGenerationFailed, err)
	}

	resp := &ReasonResponse{
		SourceChunkIDs:      p.retrieval.ChunkIDs(),
		AuthorityLayersUsed: p.layers,
		Model:               upstream.Model,
		Provider:            upstream.Provider,
	}

	// Tee the deltas so the full answer can be audited once the consumer is done.
	var sb strings.Builder
	recv := func() (string, error) {
		if !upstream.Next() {
			if err := upstream.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		sb.WriteString(upstream.Text())
		return upstream.Text(), nil
	}
	closer := func() error {
		err := upstream.Close()
		resp.Response = sb.String()
		resp.DecisionLogID = o.record(ctx, req, resp)
		return err
	}

	s := llm.NewStream(recv, closer)
	s.Provider = upstream.Provider
	s.Model = upstream.Model
	return s, resp, nil
}

func (o *reasoningOrchestrator) record(ctx context.Context, req ReasonRequest, resp *ReasonResponse) *uuid.UUID {
	return o.decisions.Record(ctx, &models.DecisionLog{
		ActionType:          actionTypeOrDefault(req.ActionType),
		InputSummary:        req.Query,
		OutputSummary:       resp.Response,
		FullResponse:        resp.Response,
		SourceChunkIDs:      resp.SourceChunkIDs,
		AuthorityLayersUsed: resp.AuthorityLayersUsed,
		SubjectID:           req.SubjectID,
		TriggeredBy:         req.TriggeredBy,
		ModelUsed:           resp.Model,
		TokenCount:          resp.TokenCount,
	})
}

func (o *reasoningOrchestrator) PreviewPrompt(ctx context.Context, req PreviewRequest) (string, error) {
	var retrieval *models.RetrievalResult
	if strings.TrimSpace(req.Query) != "" {
		retrieval = o.retriever.Retrieve(ctx, req.Query, req.SubjectID)
	}
	return prompts.Compose(retrieval, o.loadSettings(ctx), req.ExtraContext), nil
}

func actionTypeOrDefault(actionType string) string {
	if actionType == "" {
		return models.ActionChatResponse
	}
	return actionType
}

func sensitivityOrDefault(s models.Sensitivity) models.Sensitivity {
	if s == "" {
		return models.SensitivityMedium
	}
	return s
}
