package cli

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

const seedYAML = `
providers:
  - name: on-prem
    kind: Ollama
    model: llama3.1
    base_url: http://localhost:11434
    priority: 1
  - name: cloud
    kind: anthropic
    model: claude-sonnet
    priority: 2
    enabled: false
    api_key_env: TEST_ANTHROPIC_KEY
    capabilities:
      streaming: true
settings:
  privacy_mode: true
  default_provider: cloud
  personality:
    tone: strict
    custom_rules:
      - Cite the handbook section.
`

func envFrom(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestParseSeed_ResolvesProviders(t *testing.T) {
	seed, err := parseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)

	resolved, err := seed.resolveProviders(envFrom(map[string]string{"TEST_ANTHROPIC_KEY": " sk-ant-123 "}))
	require.NoError(t, err)
	require.Len(t, resolved, 2)

	local := resolved[0]
	assert.Equal(t, models.ProviderKindOllama, local.Config.Kind)
	assert.True(t, local.Config.Enabled, "enabled defaults to true")
	assert.Empty(t, local.APIKey)

	cloud := resolved[1]
	assert.Equal(t, models.ProviderKindAnthropic, cloud.Config.Kind)
	assert.False(t, cloud.Config.Enabled)
	assert.Equal(t, "sk-ant-123", cloud.APIKey)
	assert.True(t, cloud.Config.Capabilities.Streaming)
	assert.Empty(t, cloud.Config.CredentialEnc, "the plaintext key never lands on the config")
}

func TestParseSeed_MissingKeyEnv(t *testing.T) {
	seed, err := parseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)

	_, err = seed.resolveProviders(envFrom(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEST_ANTHROPIC_KEY")
}

func TestParseSeed_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "", "empty"},
		{"missing name", "providers:\n  - kind: openai\n    model: gpt-4o\n", "name is required"},
		{"duplicate name", "providers:\n  - name: a\n  - name: a\n", "duplicate"},
		{"unknown field", "providers:\n  - name: a\n    api_key: sk-123\n", "api_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSeed(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApplySettings(t *testing.T) {
	seed, err := parseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)

	cloudID := uuid.New()
	current := models.DefaultEngineSettings()

	next, err := seed.applySettings(current, map[string]uuid.UUID{"cloud": cloudID})
	require.NoError(t, err)

	assert.True(t, next.PrivacyMode)
	require.NotNil(t, next.DefaultProviderID)
	assert.Equal(t, cloudID, *next.DefaultProviderID)
	assert.Equal(t, models.ToneStrict, next.Personality.Tone)
	assert.Equal(t, []string{"Cite the handbook section."}, next.Personality.CustomRules)
	assert.Equal(t, current.BaseInstructions, next.BaseInstructions, "omitted fields are kept")
	assert.False(t, current.PrivacyMode, "current settings are not mutated")
}

func TestApplySettings_UnknownDefaultProvider(t *testing.T) {
	seed, err := parseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)

	_, err = seed.applySettings(models.DefaultEngineSettings(), map[string]uuid.UUID{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cloud")
}

func TestApplySettings_ClearsDefaultProvider(t *testing.T) {
	seed, err := parseSeed(strings.NewReader("settings:\n  default_provider: \"\"\n"))
	require.NoError(t, err)

	id := uuid.New()
	current := models.DefaultEngineSettings()
	current.DefaultProviderID = &id

	next, err := seed.applySettings(current, nil)
	require.NoError(t, err)
	assert.Nil(t, next.DefaultProviderID)
}
