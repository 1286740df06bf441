package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/config"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/llm"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/logging"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/metrics"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/prompts"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/repositories"
)

// ViolationCheckRequest describes an incident to analyze.
type ViolationCheckRequest struct {
	Description  string
	SubjectID    uuid.UUID
	ExtraContext string
	TriggeredBy  *uuid.UUID // nil = autonomous
	Sensitivity  models.Sensitivity
}

// EnforcementService turns incidents into progressive disciplinary records.
type EnforcementService interface {
	// CheckForViolations asks the model whether the incident breaks a retrieved
	// global policy. Unusable model output yields an analysis_error result that
	// requires review; it is never reported as a violation.
	CheckForViolations(ctx context.Context, req ViolationCheckRequest) (*models.ViolationCheck, error)

	// IssueWarning records the next warning for subjectID and deducts its points.
	// Warnings for the same subject are issued one at a time.
	IssueWarning(ctx context.Context, subjectID uuid.UUID, check *models.ViolationCheck, issuedBy *uuid.UUID, isAutonomous bool) (*models.Warning, error)

	// ListWarnings returns a subject's warnings in issue order.
	ListWarnings(ctx context.Context, subjectID uuid.UUID) ([]*models.Warning, error)
}

type enforcementService struct {
	retriever KnowledgeRetriever
	router    ProviderRegistry
	warnings  repositories.WarningRepository
	decisions DecisionLogService
	cfg       config.EnforcementConfig
	metrics   *metrics.Metrics
	locks     *keyedMutex
	logger    *zap.Logger
}

// NewEnforcementService creates a new EnforcementService.
func NewEnforcementService(
	retriever KnowledgeRetriever,
	router ProviderRegistry,
	warnings repositories.WarningRepository,
	decisions DecisionLogService,
	cfg config.EnforcementConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) EnforcementService {
	return &enforcementService{
		retriever: retriever,
		router:    router,
		warnings:  warnings,
		decisions: decisions,
		cfg:       cfg,
		metrics:   m,
		locks:     newKeyedMutex(),
		logger:    logger.Named("enforcement"),
	}
}

var _ EnforcementService = (*enforcementService)(nil)

// violationVerdict is the JSON shape requested by the analysis prompt.
// points_deduction tolerates 50.0 and "50".
type violationVerdict struct {
	IsViolation       bool                    `json:"is_violation"`
	ViolationType     string                  `json:"violation_type"`
	Severity          string                  `json:"severity"`
	Description       string                  `json:"description"`
	ViolatedClause    *string                 `json:"violated_clause"`
	RecommendedAction string                  `json:"recommended_action"`
	PointsDeduction   jsonutil.FlexibleNumber `json:"points_deduction"`
}

func (s *enforcementService) CheckForViolations(ctx context.Context, req ViolationCheckRequest) (*models.ViolationCheck, error) {
	policies := s.retriever.SearchGlobal(ctx, req.Description)
	if len(policies) == 0 {
		s.logger.Info("No relevant policy found, skipping analysis",
			zap.String("subject_id", req.SubjectID.String()))
		return &models.ViolationCheck{
			Outcome:     models.OutcomeNoPolicy,
			Description: "No relevant policy was found for this incident.",
		}, nil
	}
	prompts.SortByAuthority(policies)

	res, err := s.router.Run(ctx,
		[]llm.Message{llm.UserMessage(prompts.BuildViolationAnalysisPrompt(req.Description, req.ExtraContext, policies))},
		RunOptions{
			SystemPrompt: prompts.ViolationAnalysisSystemPrompt,
			Sensitivity:  sensitivityOrDefault(req.Sensitivity),
		})
	if err != nil {
		s.logger.Error("Violation analysis failed",
			zap.String("subject_id", req.SubjectID.String()),
			zap.String("error", logging.SanitizeError(err)))
		return nil, apperrors.NewPublicError(apperrors.ErrAnalysisFailed, err)
	}

	check := s.interpret(res.Text, policies)
	check.AuthorityLayersUsed = prompts.LayersUsed(&models.RetrievalResult{Global: policies}, models.PersonalityConfig{})
	check.ModelUsed = res.Model

	subjectID := req.SubjectID
	check.DecisionLogID = s.decisions.Record(ctx, &models.DecisionLog{
		ActionType:          models.ActionViolationCheck,
		InputSummary:        req.Description,
		OutputSummary:       fmt.Sprintf("%s: %s", check.Outcome, check.Description),
		FullResponse:        res.Text,
		SourceChunkIDs:      check.SourceChunkIDs,
		AuthorityLayersUsed: check.AuthorityLayersUsed,
		SubjectID:           &subjectID,
		TriggeredBy:         req.TriggeredBy,
		ModelUsed:           res.Model,
		TokenCount:          res.Usage.TotalTokens,
	})

	s.logger.Info("Violation check completed",
		zap.String("subject_id", req.SubjectID.String()),
		zap.String("outcome", string(check.Outcome)),
		zap.String("severity", string(check.Severity)),
		zap.Bool("requires_review", check.RequiresReview))

	return check, nil
}

// interpret converts raw model output into a ViolationCheck. policies must be
// sorted by authority.
func (s *enforcementService) interpret(raw string, policies []models.KnowledgeChunk) *models.ViolationCheck {
	chunkIDs := make([]uuid.UUID, len(policies))
	for i, p := range policies {
		chunkIDs[i] = p.ID
	}

	verdict, err := llm.ParseJSONResponse[violationVerdict](raw)
	if err == nil && verdict.IsViolation && !models.Severity(verdict.Severity).IsValid() {
		err = fmt.Errorf("invalid severity %q", verdict.Severity)
	}
	if err != nil {
		s.logger.Warn("Could not parse violation analysis",
			zap.String("error", err.Error()),
			zap.String("response", logging.TruncateString(logging.SanitizeText(raw), 200)))
		return &models.ViolationCheck{
			Outcome:        models.OutcomeAnalysisError,
			ViolationType:  models.ViolationTypeAnalysisError,
			Description:    "The analysis could not be completed. Manual review is required.",
			RequiresReview: true,
			SourceChunkIDs: chunkIDs,
		}
	}

	check := &models.ViolationCheck{
		Outcome:           models.OutcomeNoViolation,
		IsViolation:       verdict.IsViolation,
		ViolationType:     strings.TrimSpace(verdict.ViolationType),
		Description:       strings.TrimSpace(verdict.Description),
		RecommendedAction: strings.TrimSpace(verdict.RecommendedAction),
		SourceChunkIDs:    chunkIDs,
	}
	if !verdict.IsViolation {
		return check
	}

	check.Outcome = models.OutcomeViolation
	check.Severity = models.Severity(verdict.Severity)
	check.PointsDeduction = max(int(math.Round(verdict.PointsDeduction.Float64())), 0)

	source := &policies[0]
	if verdict.ViolatedClause != nil {
		clause := strings.TrimSpace(*verdict.ViolatedClause)
		if match := findClause(clause, policies); match != nil {
			check.ViolatedClause = &clause
			source = match
		}
	}
	// An unquoted or unverifiable clause cannot justify discipline on its own.
	if check.ViolatedClause == nil {
		check.RequiresReview = true
	}
	chunkID, docID := source.ID, source.DocumentID
	check.SourceChunkID = &chunkID
	check.SourceDocumentID = &docID

	return check
}

// findClause returns the policy chunk that contains clause, ignoring case
// and whitespace differences.
func findClause(clause string, policies []models.KnowledgeChunk) *models.KnowledgeChunk {
	needle := normalizeWhitespace(clause)
	if needle == "" {
		return nil
	}
	for i := range policies {
		if strings.Contains(normalizeWhitespace(policies[i].Content), needle) {
			return &policies[i]
		}
	}
	return nil
}

func normalizeWhitespace(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func (s *enforcementService) IssueWarning(ctx context.Context, subjectID uuid.UUID, check *models.ViolationCheck, issuedBy *uuid.UUID, isAutonomous bool) (*models.Warning, error) {
	if check == nil || !check.IsViolation {
		return nil, apperrors.ErrNotAViolation
	}
	autonomous := isAutonomous || issuedBy == nil
	// An unverified verdict only becomes a warning when an operator signs off.
	if check.RequiresReview && autonomous {
		s.logger.Info("Refusing autonomous warning for a verdict that needs review",
			zap.String("subject_id", subjectID.String()))
		return nil, apperrors.ErrRequiresReview
	}

	unlock := s.locks.Lock(subjectID)
	defer unlock()

	logID := s.decisions.Record(ctx, &models.DecisionLog{
		ActionType:          models.ActionWarningIssued,
		InputSummary:        check.Description,
		OutputSummary:       fmt.Sprintf("Warning for %s (%s), %d points recommended", check.ViolationType, check.Severity, check.PointsDeduction),
		FullResponse:        check.RecommendedAction,
		SourceChunkIDs:      check.SourceChunkIDs,
		AuthorityLayersUsed: check.AuthorityLayersUsed,
		SubjectID:           &subjectID,
		TriggeredBy:         issuedBy,
		ModelUsed:           check.ModelUsed,
	})

	sourceChunkID := check.SourceChunkID
	if sourceChunkID == nil && len(check.SourceChunkIDs) > 0 {
		id := check.SourceChunkIDs[0]
		sourceChunkID = &id
	}

	warning, balance, err := s.warnings.Issue(ctx, subjectID, func(activeCount int) (*models.Warning, error) {
		number := activeCount + 1
		w := &models.Warning{
			ID:               uuid.New(),
			SubjectID:        subjectID,
			WarningNumber:    number,
			Severity:         check.Severity,
			ViolationType:    check.ViolationType,
			Description:      check.Description,
			ViolatedClause:   check.ViolatedClause,
			SourceDocumentID: check.SourceDocumentID,
			SourceChunkID:    sourceChunkID,
			ActionTaken:      actionTaken(check.RecommendedAction, number, s.cfg.MeetingThreshold),
			PointsDeducted:   s.deductionFor(number, check.PointsDeduction),
			RequiresMeeting:  number >= s.cfg.MeetingThreshold,
			Escalated:        number > s.cfg.MeetingThreshold,
			Status:           models.WarningStatusActive,
			IssuedBy:         issuedBy,
			IsAutonomous:     autonomous,
			DecisionLogID:    logID,
		}
		if w.Escalated {
			reason := fmt.Sprintf("Warning %d exceeds the meeting threshold of %d", number, s.cfg.MeetingThreshold)
			w.EscalationReason = &reason
		}
		return w, nil
	})
	if err != nil {
		s.logger.Error("Failed to issue warning",
			zap.String("subject_id", subjectID.String()),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("issue warning: %w", err)
	}

	s.metrics.WarningIssued(string(warning.Severity))
	s.logger.Info("Warning issued",
		zap.String("subject_id", subjectID.String()),
		zap.Int("warning_number", warning.WarningNumber),
		zap.Int("points_deducted", warning.PointsDeducted),
		zap.Int("points_balance", balance),
		zap.Bool("requires_meeting", warning.RequiresMeeting),
		zap.Bool("escalated", warning.Escalated),
		zap.Bool("autonomous", warning.IsAutonomous))

	return warning, nil
}

// deductionFor applies the tier floor: warning 2 deducts at least the second
// tier floor, warning 3 and later at least the third.
func (s *enforcementService) deductionFor(number, recommended int) int {
	recommended = max(recommended, 0)
	switch {
	case number >= 3:
		return max(recommended, s.cfg.ThirdWarningMinPoints)
	case number == 2:
		return max(recommended, s.cfg.SecondWarningMinPoints)
	}
	return recommended
}

func actionTaken(recommended string, number, meetingThreshold int) string {
	if recommended != "" {
		return recommended
	}
	switch {
	case number > meetingThreshold:
		return "Escalated to program management"
	case number >= meetingThreshold:
		return "Meeting required"
	}
	return "Written warning"
}

func (s *enforcementService) ListWarnings(ctx context.Context, subjectID uuid.UUID) ([]*models.Warning, error) {
	return s.warnings.ListBySubject(ctx, subjectID)
}
