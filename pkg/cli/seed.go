package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

// seedFile is the operator YAML accepted by `providers import`.
// Credentials never appear in it; api_key_env names the environment variable
// holding each key.
type seedFile struct {
	Providers []providerSeed `yaml:"providers"`
	Settings  *settingsSeed  `yaml:"settings"`
}

type providerSeed struct {
	Name               string                      `yaml:"name"`
	Kind               string                      `yaml:"kind"`
	Enabled            *bool                       `yaml:"enabled"`
	Priority           int                         `yaml:"priority"`
	IsLocal            bool                        `yaml:"is_local"`
	BaseURL            string                      `yaml:"base_url"`
	Model              string                      `yaml:"model"`
	CustomInstructions string                      `yaml:"custom_instructions"`
	APIKeyEnv          string                      `yaml:"api_key_env"`
	Capabilities       models.ProviderCapabilities `yaml:"capabilities"`
}

type settingsSeed struct {
	PrivacyMode      *bool            `yaml:"privacy_mode"`
	DefaultProvider  *string          `yaml:"default_provider"`
	BaseInstructions *string          `yaml:"base_instructions"`
	Personality      *personalitySeed `yaml:"personality"`
}

type personalitySeed struct {
	Tone                string   `yaml:"tone"`
	AuthorityStyle      string   `yaml:"authority_style"`
	DisciplineFramework string   `yaml:"discipline_framework"`
	EscalationEnabled   bool     `yaml:"escalation_enabled"`
	CustomRules         []string `yaml:"custom_rules"`
}

// resolvedProvider is a seed entry with its credential read from the environment.
type resolvedProvider struct {
	Config *models.ProviderConfig
	APIKey string
}

func parseSeed(r io.Reader) (*seedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed seedFile
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("seed file is empty")
		}
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	seen := make(map[string]bool, len(seed.Providers))
	for i, p := range seed.Providers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("providers[%d]: name is required", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("providers[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
	}
	return &seed, nil
}

// resolveProviders builds provider configs, reading keys through lookupEnv.
// A named but unset variable is an error so that a typo never stores a
// networked provider without its key.
func (s *seedFile) resolveProviders(lookupEnv func(string) (string, bool)) ([]resolvedProvider, error) {
	out := make([]resolvedProvider, 0, len(s.Providers))
	for _, p := range s.Providers {
		var apiKey string
		if p.APIKeyEnv != "" {
			v, ok := lookupEnv(p.APIKeyEnv)
			if !ok || strings.TrimSpace(v) == "" {
				return nil, fmt.Errorf("provider %q: environment variable %s is not set", p.Name, p.APIKeyEnv)
			}
			apiKey = strings.TrimSpace(v)
		}

		enabled := true
		if p.Enabled != nil {
			enabled = *p.Enabled
		}

		out = append(out, resolvedProvider{
			Config: &models.ProviderConfig{
				Name:               strings.TrimSpace(p.Name),
				Kind:               models.ProviderKind(strings.ToLower(strings.TrimSpace(p.Kind))),
				Enabled:            enabled,
				Priority:           p.Priority,
				IsLocal:            p.IsLocal,
				BaseURL:            strings.TrimSpace(p.BaseURL),
				Model:              strings.TrimSpace(p.Model),
				CustomInstructions: p.CustomInstructions,
				Capabilities:       p.Capabilities,
			},
			APIKey: apiKey,
		})
	}
	return out, nil
}

// applySettings overlays the seed's settings on current. providerIDs maps
// provider names to stored ids. Fields the seed omits are left unchanged.
func (s *seedFile) applySettings(current *models.EngineSettings, providerIDs map[string]uuid.UUID) (*models.EngineSettings, error) {
	next := *current
	if s.Settings == nil {
		return &next, nil
	}

	if s.Settings.PrivacyMode != nil {
		next.PrivacyMode = *s.Settings.PrivacyMode
	}
	if s.Settings.BaseInstructions != nil {
		next.BaseInstructions = *s.Settings.BaseInstructions
	}
	if s.Settings.DefaultProvider != nil {
		name := strings.TrimSpace(*s.Settings.DefaultProvider)
		if name == "" {
			next.DefaultProviderID = nil
		} else {
			id, ok := providerIDs[name]
			if !ok {
				return nil, fmt.Errorf("settings.default_provider: unknown provider %q", name)
			}
			next.DefaultProviderID = &id
		}
	}
	if p := s.Settings.Personality; p != nil {
		next.Personality = models.PersonalityConfig{
			Tone:                models.Tone(p.Tone),
			AuthorityStyle:      models.AuthorityStyle(p.AuthorityStyle),
			DisciplineFramework: models.DisciplineFramework(p.DisciplineFramework),
			EscalationEnabled:   p.EscalationEnabled,
			CustomRules:         p.CustomRules,
		}
	}
	return &next, nil
}
