package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies a violation.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityCritical Severity = "critical"
)

// IsValid reports whether s is one of the known severities.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityMinor, SeverityModerate, SeveritySevere, SeverityCritical:
		return true
	}
	return false
}

// Warning statuses. Only active warnings count toward escalation.
const (
	WarningStatusActive   = "active"
	WarningStatusResolved = "resolved"
)

// Warning is one disciplinary record for a subject.
// Stored in reasoner_warnings.
type Warning struct {
	ID               uuid.UUID  `json:"id"`
	SubjectID        uuid.UUID  `json:"subject_id"`
	WarningNumber    int        `json:"warning_number"`
	Severity         Severity   `json:"severity"`
	ViolationType    string     `json:"violation_type"`
	Description      string     `json:"description"`
	ViolatedClause   *string    `json:"violated_clause,omitempty"`
	SourceDocumentID *uuid.UUID `json:"source_document_id,omitempty"`
	SourceChunkID    *uuid.UUID `json:"source_chunk_id,omitempty"`
	ActionTaken      string     `json:"action_taken"`
	PointsDeducted   int        `json:"points_deducted"`
	RequiresMeeting  bool       `json:"requires_meeting"`
	Escalated        bool       `json:"escalated"`
	EscalationReason *string    `json:"escalation_reason,omitempty"`
	Status           string     `json:"status"`
	IssuedBy         *uuid.UUID `json:"issued_by,omitempty"`
	IsAutonomous     bool       `json:"is_autonomous"`
	DecisionLogID    *uuid.UUID `json:"decision_log_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// SubjectProfile is the read/write view of a subject this core needs.
type SubjectProfile struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Points      int       `json:"points"`
	UpdatedAt   time.Time `json:"updated_at"`
}
