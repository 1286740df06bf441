package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/logging"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/metrics"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/repositories"
)

// Summary limits for decision log fields.
const (
	inputSummaryMaxLen  = 500
	outputSummaryMaxLen = 500
)

// DecisionLogService records the audit trail of reasoning invocations.
type DecisionLogService interface {
	// Record writes entry and returns its id. A write failure is logged and
	// counted but never fails the caller; nil is returned instead.
	Record(ctx context.Context, entry *models.DecisionLog) *uuid.UUID

	// ListBySubject returns the most recent entries about a subject.
	ListBySubject(ctx context.Context, subjectID uuid.UUID, limit int) ([]*models.DecisionLog, error)
}

type decisionLogService struct {
	repo    repositories.DecisionLogRepository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewDecisionLogService creates a new DecisionLogService.
func NewDecisionLogService(repo repositories.DecisionLogRepository, m *metrics.Metrics, logger *zap.Logger) DecisionLogService {
	return &decisionLogService{
		repo:    repo,
		metrics: m,
		logger:  logger.Named("decision-log"),
	}
}

var _ DecisionLogService = (*decisionLogService)(nil)

func (s *decisionLogService) Record(ctx context.Context, entry *models.DecisionLog) *uuid.UUID {
	entry.InputSummary = logging.TruncateString(entry.InputSummary, inputSummaryMaxLen)
	entry.OutputSummary = logging.TruncateString(entry.OutputSummary, outputSummaryMaxLen)

	// The audit write must not undo a response the caller already has.
	if err := s.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("Failed to write decision log",
			zap.String("action_type", entry.ActionType),
			zap.String("error", logging.SanitizeError(err)))
		s.metrics.AuditWriteFailure()
		return nil
	}

	id := entry.ID
	return &id
}

func (s *decisionLogService) ListBySubject(ctx context.Context, subjectID uuid.UUID, limit int) ([]*models.DecisionLog, error) {
	return s.repo.ListBySubject(ctx, subjectID, limit)
}
