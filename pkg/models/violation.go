package models

import (
	"github.com/google/uuid"
)

// ViolationOutcome distinguishes how a violation check concluded.
type ViolationOutcome string

const (
	// OutcomeViolation means the model found a violation of a quoted policy.
	OutcomeViolation ViolationOutcome = "violation"
	// OutcomeNoViolation means the model found no violation.
	OutcomeNoViolation ViolationOutcome = "no_violation"
	// OutcomeNoPolicy means no relevant policy was retrieved; the model was not called.
	OutcomeNoPolicy ViolationOutcome = "no_policy"
	// OutcomeAnalysisError means the model output could not be parsed.
	OutcomeAnalysisError ViolationOutcome = "analysis_error"
)

// ViolationTypeAnalysisError is the violation type reported for OutcomeAnalysisError.
const ViolationTypeAnalysisError = "analysis_error"

// ViolationCheck is the structured verdict of checkForViolations.
type ViolationCheck struct {
	Outcome             ViolationOutcome `json:"outcome"`
	IsViolation         bool             `json:"is_violation"`
	ViolationType       string           `json:"violation_type,omitempty"`
	Severity            Severity         `json:"severity,omitempty"`
	Description         string           `json:"description"`
	ViolatedClause      *string          `json:"violated_clause,omitempty"`
	RecommendedAction   string           `json:"recommended_action,omitempty"`
	PointsDeduction     int              `json:"points_deduction"`
	RequiresReview      bool             `json:"requires_review"`
	SourceChunkIDs      []uuid.UUID      `json:"source_chunk_ids,omitempty"`
	// SourceChunkID is the chunk containing the quoted clause, or the
	// highest-authority policy when no clause could be matched.
	SourceChunkID       *uuid.UUID       `json:"source_chunk_id,omitempty"`
	SourceDocumentID    *uuid.UUID       `json:"source_document_id,omitempty"`
	AuthorityLayersUsed []string         `json:"authority_layers_used,omitempty"`
	ModelUsed           string           `json:"model_used,omitempty"`
	DecisionLogID       *uuid.UUID       `json:"decision_log_id,omitempty"`
}

// Sensitivity is the caller-declared classification of a request.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// ParseSensitivity maps free text to a Sensitivity, defaulting to medium.
func ParseSensitivity(s string) Sensitivity {
	switch Sensitivity(s) {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		return Sensitivity(s)
	}
	return SensitivityMedium
}
