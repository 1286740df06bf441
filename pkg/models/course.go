package models

import (
	"github.com/google/uuid"
)

// GenerationStatus is the result variant of a structured generation task.
type GenerationStatus string

const (
	GenerationSuccess GenerationStatus = "success"
	GenerationError   GenerationStatus = "generation_error"
)

// CourseLesson is one lesson inside a course module.
type CourseLesson struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// CourseModule groups lessons under learning objectives.
type CourseModule struct {
	Title      string         `json:"title"`
	Objectives []string       `json:"objectives"`
	Lessons    []CourseLesson `json:"lessons"`
}

// CourseOutline is the structured output of course generation.
type CourseOutline struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Modules     []CourseModule `json:"modules"`
}

// GenerationResult is the outcome of course generation. Outline is set only
// when Status is GenerationSuccess; a failed parse never yields partial data.
type GenerationResult struct {
	Status        GenerationStatus `json:"status"`
	Outline       *CourseOutline   `json:"outline,omitempty"`
	Message       string           `json:"message,omitempty"`
	DecisionLogID *uuid.UUID       `json:"decision_log_id,omitempty"`
}
