package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/llm"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

func TestRegister(t *testing.T) {
	kind := models.ProviderKind("test-kind")
	assert.Nil(t, GetFactory(kind))

	Register(Registration{
		Info: AdapterInfo{Kind: kind, DisplayName: "Test"},
		Factory: func(cfg *models.ProviderConfig, apiKey string, logger *zap.Logger) (llm.Provider, error) {
			return llm.NewMockProvider(cfg.Name, cfg.IsLocal), nil
		},
	})

	factory := GetFactory(kind)
	if assert.NotNil(t, factory) {
		p, err := factory(&models.ProviderConfig{Name: "made", IsLocal: true}, "", zap.NewNop())
		assert.NoError(t, err)
		assert.Equal(t, "made", p.Info().Name)
	}

	var kinds []models.ProviderKind
	for _, info := range RegisteredAdapters() {
		kinds = append(kinds, info.Kind)
	}
	assert.Contains(t, kinds, kind)
}
