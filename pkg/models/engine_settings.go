package models

import (
	"time"

	"github.com/google/uuid"
)

// Tone controls the register of generated responses.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneFriendly     Tone = "friendly"
	ToneStrict       Tone = "strict"
	ToneSupportive   Tone = "supportive"
)

// AuthorityStyle controls how directives are phrased.
type AuthorityStyle string

const (
	AuthorityAdvisory      AuthorityStyle = "advisory"
	AuthorityDirective     AuthorityStyle = "directive"
	AuthorityCollaborative AuthorityStyle = "collaborative"
)

// DisciplineFramework names the disciplinary philosophy applied to violations.
type DisciplineFramework string

const (
	DisciplineProgressive   DisciplineFramework = "progressive"
	DisciplineRestorative   DisciplineFramework = "restorative"
	DisciplineZeroTolerance DisciplineFramework = "zero_tolerance"
)

// PersonalityConfig holds tone, authority and discipline parameters.
// It is embedded in EngineSettings and edited as a whole object.
type PersonalityConfig struct {
	Tone                Tone                `json:"tone,omitempty"`
	AuthorityStyle      AuthorityStyle      `json:"authority_style,omitempty"`
	DisciplineFramework DisciplineFramework `json:"discipline_framework,omitempty"`
	EscalationEnabled   bool                `json:"escalation_enabled"`
	CustomRules         []string            `json:"custom_rules,omitempty"`
}

// IsEmpty reports whether no personality directive would be rendered.
func (p PersonalityConfig) IsEmpty() bool {
	return p.Tone == "" && p.AuthorityStyle == "" && p.DisciplineFramework == "" && len(p.CustomRules) == 0
}

// EngineSettings is the singleton routing and prompt policy row.
type EngineSettings struct {
	PrivacyMode       bool              `json:"privacy_mode"`
	DefaultProviderID *uuid.UUID        `json:"default_provider_id,omitempty"`
	BaseInstructions  string            `json:"base_instructions"`
	Personality       PersonalityConfig `json:"personality"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// DefaultEngineSettings returns the settings used before an operator saves any.
func DefaultEngineSettings() *EngineSettings {
	return &EngineSettings{
		BaseInstructions: "You are an operations assistant for an internship program. " +
			"Answer using the organization's documented policies and the subject's profile.",
		Personality: PersonalityConfig{
			Tone:                ToneProfessional,
			AuthorityStyle:      AuthorityAdvisory,
			DisciplineFramework: DisciplineProgressive,
			EscalationEnabled:   true,
		},
	}
}
