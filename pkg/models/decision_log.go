package models

import (
	"time"

	"github.com/google/uuid"
)

// Decision log action types.
const (
	ActionChatResponse     = "chat_response"
	ActionViolationCheck   = "violation_check"
	ActionWarningIssued    = "warning_issued"
	ActionCourseGeneration = "course_generation"
)

// DecisionLog is the immutable audit record of one reasoning invocation.
// Stored in reasoner_decision_logs; append-only.
type DecisionLog struct {
	ID                  uuid.UUID   `json:"id"`
	ActionType          string      `json:"action_type"`
	InputSummary        string      `json:"input_summary"`
	OutputSummary       string      `json:"output_summary"`
	FullResponse        string      `json:"full_response"`
	SourceChunkIDs      []uuid.UUID `json:"source_chunk_ids"`
	AuthorityLayersUsed []string    `json:"authority_layers_used"`
	SubjectID           *uuid.UUID  `json:"subject_id,omitempty"`
	TriggeredBy         *uuid.UUID  `json:"triggered_by,omitempty"` // nil = autonomous
	ModelUsed           string      `json:"model_used"`
	TokenCount          int         `json:"token_count"`
	CreatedAt           time.Time   `json:"created_at"`
}

// IsAutonomous reports whether no human actor initiated the invocation.
func (d *DecisionLog) IsAutonomous() bool {
	return d.TriggeredBy == nil
}
