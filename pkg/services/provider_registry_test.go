package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/adapters/provider"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/config"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/llm"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/metrics"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

// registryFixture wires a registry to in-memory configs and mock adapters
// looked up by provider name.
type registryFixture struct {
	repo     *mockProviderConfigRepo
	settings *mockSettingsRepo
	reg      *prometheus.Registry
	metrics  *metrics.Metrics

	mu      sync.Mutex
	mocks   map[string]*llm.MockProvider
	apiKeys map[string]string
	builds  atomic.Int32
}

func newRegistryFixture(cfgs ...*models.ProviderConfig) *registryFixture {
	reg := prometheus.NewRegistry()
	f := &registryFixture{
		repo:     newMockProviderConfigRepo(cfgs...),
		settings: &mockSettingsRepo{settings: &models.EngineSettings{}},
		reg:      reg,
		metrics:  metrics.New(reg),
		mocks:    make(map[string]*llm.MockProvider),
		apiKeys:  make(map[string]string),
	}
	for _, c := range cfgs {
		f.mocks[c.Name] = llm.NewMockProvider(c.Name, c.IsLocal)
	}
	return f
}

func (f *registryFixture) factories(kind models.ProviderKind) provider.Factory {
	if kind == "unknown" {
		return nil
	}
	return func(cfg *models.ProviderConfig, apiKey string, logger *zap.Logger) (llm.Provider, error) {
		f.builds.Add(1)
		f.mu.Lock()
		defer f.mu.Unlock()
		m, ok := f.mocks[cfg.Name]
		if !ok {
			return nil, errors.New("no mock for " + cfg.Name)
		}
		m.ProviderInfo = llm.InfoFromConfig(cfg)
		f.apiKeys[cfg.Name] = apiKey
		return m, nil
	}
}

func (f *registryFixture) registry(cfg config.RoutingConfig) ProviderRegistry {
	return NewProviderRegistry(f.repo, f.settings, mockDecrypter{}, f.factories, cfg, f.metrics, zap.NewNop())
}

func (f *registryFixture) mock(name string) *llm.MockProvider {
	return f.mocks[name]
}

func cloudConfig(name string, priority int) *models.ProviderConfig {
	return &models.ProviderConfig{
		ID:            uuid.New(),
		Name:          name,
		Kind:          models.ProviderKindOpenAI,
		Enabled:       true,
		Priority:      priority,
		Model:         name + "-model",
		CredentialEnc: "enc:sk-" + name,
	}
}

func localConfig(name string, priority int) *models.ProviderConfig {
	return &models.ProviderConfig{
		ID:       uuid.New(),
		Name:     name,
		Kind:     models.ProviderKindOllama,
		Enabled:  true,
		Priority: priority,
		IsLocal:  true,
		Model:    name + "-model",
	}
}

func failing(m *llm.MockProvider, err error) {
	m.GenerateTextFunc = func(ctx context.Context, messages []llm.Message, systemPrompt string) (*llm.Result, error) {
		return nil, err
	}
}

// counterValue sums every sample of a counter family in reg.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestProviderRegistry_PrivacyRouting(t *testing.T) {
	tests := []struct {
		name        string
		privacyMode bool
		sensitivity models.Sensitivity
		want        string
	}{
		{name: "privacy mode selects local", privacyMode: true, sensitivity: models.SensitivityLow, want: "local"},
		{name: "high sensitivity selects local", sensitivity: models.SensitivityHigh, want: "local"},
		{name: "medium sensitivity selects by priority", sensitivity: models.SensitivityMedium, want: "cloud"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRegistryFixture(cloudConfig("cloud", 1), localConfig("local", 2))
			f.settings.settings.PrivacyMode = tt.privacyMode
			r := f.registry(config.RoutingConfig{})

			p, err := r.GetBestProvider(context.Background(), tt.sensitivity)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Info().Name)
		})
	}
}

func TestProviderRegistry_DefaultProvider(t *testing.T) {
	second := cloudConfig("second", 2)
	f := newRegistryFixture(cloudConfig("first", 1), second)
	f.settings.settings.DefaultProviderID = &second.ID
	r := f.registry(config.RoutingConfig{})

	p, err := r.GetBestProvider(context.Background(), models.SensitivityMedium)
	require.NoError(t, err)
	assert.Equal(t, "second", p.Info().Name)
}

func TestProviderRegistry_DefaultProviderNotLoaded(t *testing.T) {
	missing := uuid.New()
	f := newRegistryFixture(cloudConfig("first", 1), cloudConfig("second", 2))
	f.settings.settings.DefaultProviderID = &missing
	r := f.registry(config.RoutingConfig{})

	p, err := r.GetBestProvider(context.Background(), models.SensitivityMedium)
	require.NoError(t, err)
	assert.Equal(t, "first", p.Info().Name)
}

func TestProviderRegistry_PrivacyFallthrough(t *testing.T) {
	f := newRegistryFixture(cloudConfig("cloud", 1))
	f.settings.settings.PrivacyMode = true
	r := f.registry(config.RoutingConfig{})

	p, err := r.GetBestProvider(context.Background(), models.SensitivityMedium)
	require.NoError(t, err)
	assert.Equal(t, "cloud", p.Info().Name)
	assert.Equal(t, 1.0, counterValue(t, f.reg, "reasoner_privacy_fallthrough_total"))
}

func TestProviderRegistry_StrictPrivacy(t *testing.T) {
	f := newRegistryFixture(cloudConfig("cloud", 1))
	r := f.registry(config.RoutingConfig{StrictPrivacy: true})

	_, err := r.GetBestProvider(context.Background(), models.SensitivityHigh)
	assert.ErrorIs(t, err, apperrors.ErrNoLocalProvider)

	_, err = r.Run(context.Background(), []llm.Message{llm.UserMessage("hi")}, RunOptions{Sensitivity: models.SensitivityHigh})
	assert.ErrorIs(t, err, apperrors.ErrNoLocalProvider)
	assert.Equal(t, 0, f.mock("cloud").GenerateCalls())
}

func TestProviderRegistry_NoProviders(t *testing.T) {
	f := newRegistryFixture()
	r := f.registry(config.RoutingConfig{})

	_, err := r.Run(context.Background(), []llm.Message{llm.UserMessage("hi")}, RunOptions{})
	assert.ErrorIs(t, err, apperrors.ErrNoProvidersAvailable)

	_, err = r.Stream(context.Background(), []llm.Message{llm.UserMessage("hi")}, RunOptions{})
	assert.ErrorIs(t, err, apperrors.ErrNoProvidersAvailable)
}

func TestProviderRegistry_FallbackIsSingleAndDistinct(t *testing.T) {
	f := newRegistryFixture(cloudConfig("a", 1), cloudConfig("b", 2), cloudConfig("c", 3))
	failing(f.mock("a"), errors.New("primary down"))
	r := f.registry(config.RoutingConfig{})

	res, err := r.Run(context.Background(), []llm.Message{llm.UserMessage("hi")}, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "b", res.Provider)
	assert.Equal(t, 1, f.mock("a").GenerateCalls())
	assert.Equal(t, 1, f.mock("b").GenerateCalls())
	assert.Equal(t, 0, f.mock("c").GenerateCalls())
	assert.Equal(t, 1.0, counterValue(t, f.reg, "reasoner_provider_fallbacks_total"))
}

func TestProviderRegistry_NoSecondFallback(t *testing.T) {
	f := newRegistryFixture(cloudConfig("a", 1), cloudConfig("b", 2), cloudConfig("c", 3))
	primaryErr := errors.New("primary down")
	fallbackErr := errors.New("fallback down")
	failing(f.mock("a"), primaryErr)
	failing(f.mock("b"), fallbackErr)
	r := f.registry(config.RoutingConfig{})

	_, err := r.Run(context.Background(), []llm.Message{llm.UserMessage("hi")}, RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, fallbackErr)
	assert.ErrorIs(t, err, primaryErr)
	assert.Equal(t, 0, f.mock("c").GenerateCalls(), "there is no second fallback")
}

func TestProviderRegistry_NoFallbackCandidate(t *testing.T) {
	f := newRegistryFixture(cloudConfig("only", 1))
	primaryErr := errors.New("primary down")
	failing(f.mock("only"), primaryErr)
	r := f.registry(config.RoutingConfig{})

	_, err := r.Run(context.Background(), []llm.Message{llm.UserMessage("hi")}, RunOptions{})
	assert.Equal(t, primaryErr, err)
	assert.Equal(t, 1, f.mock("only").GenerateCalls())
}

func TestProviderRegistry_RestrictedFallbackMustBeLocal(t *testing.T) {
	f := newRegistryFixture(localConfig("local", 1), cloudConfig("cloud", 2))
	primaryErr := errors.New("local down")
	failing(f.mock("local"), primaryErr)
	r := f.registry(config.RoutingConfig{})

	_, err := r.Run(context.Background(), []llm.Message{llm.UserMessage("hi")}, RunOptions{Sensitivity: models.SensitivityHigh})
	assert.ErrorIs(t, err, primaryErr)
	assert.Equal(t, 0, f.mock("cloud").GenerateCalls())

	// The same failure on a non-restricted request may use the networked provider.
	res, err := r.Run(context.Background(), []llm.Message{llm.UserMessage("hi")}, RunOptions{Sensitivity: models.SensitivityLow})
	require.NoError(t, err)
	assert.Equal(t, "cloud", res.Provider)
}

func TestProviderRegistry_RestrictedFallbackToSecondLocal(t *testing.T) {
	f := newRegistryFixture(localConfig("local-a", 1), cloudConfig("cloud", 2), localConfig("local-b", 3))
	failing(f.mock("local-a"), errors.New("down"))
	f.settings.settings.PrivacyMode = true
	r := f.registry(config.RoutingConfig{})

	res, err := r.Run(context.Background(), []llm.Message{llm.UserMessage("hi")}, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "local-b", res.Provider)
	assert.Equal(t, 0, f.mock("cloud").GenerateCalls())
}

func TestProviderRegistry_AttemptTimeoutFallsBack(t *testing.T) {
	f := newRegistryFixture(cloudConfig("slow", 1), cloudConfig("fast", 2))
	f.mock("slow").GenerateTextFunc = func(ctx context.Context, messages []llm.Message, systemPrompt string) (*llm.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r := f.registry(config.RoutingConfig{AttemptTimeout: 20 * time.Millisecond})

	res, err := r.Run(context.Background(), []llm.Message{llm.UserMessage("hi")}, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fast", res.Provider)
}

func TestProviderRegistry_CustomInstructionsPrecedePrompt(t *testing.T) {
	cfg := cloudConfig("cloud", 1)
	cfg.CustomInstructions = "Answer in English."
	f := newRegistryFixture(cfg)
	r := f.registry(config.RoutingConfig{})

	_, err := r.Run(context.Background(), []llm.Message{llm.UserMessage("hi")}, RunOptions{SystemPrompt: "SYSTEM"})
	require.NoError(t, err)
	assert.Equal(t, "Answer in English.\n\nSYSTEM", f.mock("cloud").LastSystemPrompt())
}

func TestProviderRegistry_ConcurrentInitializeLoadsOnce(t *testing.T) {
	f := newRegistryFixture(cloudConfig("a", 1), localConfig("b", 2))
	r := f.registry(config.RoutingConfig{})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.GetBestProvider(context.Background(), models.SensitivityMedium)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.repo.listEnabledCalls())
	assert.Equal(t, int32(2), f.builds.Load())
}

func TestProviderRegistry_FailedLoadIsRetried(t *testing.T) {
	f := newRegistryFixture(cloudConfig("a", 1))
	f.repo.listErr = errors.New("database unavailable")
	r := f.registry(config.RoutingConfig{})

	require.Error(t, r.Initialize(context.Background()))

	f.repo.mu.Lock()
	f.repo.listErr = nil
	f.repo.mu.Unlock()

	require.NoError(t, r.Initialize(context.Background()))
	assert.Equal(t, 2, f.repo.listEnabledCalls())
}

func TestProviderRegistry_SkipsUnusableConfigs(t *testing.T) {
	good := cloudConfig("good", 1)
	badCredential := cloudConfig("bad-credential", 2)
	badCredential.CredentialEnc = "not-a-token"
	unknown := cloudConfig("unknown-kind", 3)
	unknown.Kind = "unknown"
	localWithKey := localConfig("local-with-key", 4)
	localWithKey.CredentialEnc = "enc:sk-leak"

	f := newRegistryFixture(good, badCredential, unknown, localWithKey)
	r := f.registry(config.RoutingConfig{})

	infos, err := r.Providers(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "good", infos[0].Name)
	assert.Equal(t, "sk-good", f.apiKeys["good"])
}

func TestProviderRegistry_Reload(t *testing.T) {
	f := newRegistryFixture(cloudConfig("a", 1))
	r := f.registry(config.RoutingConfig{})

	infos, err := r.Providers(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)

	added := localConfig("b", 0)
	require.NoError(t, f.repo.Create(context.Background(), added))
	f.mu.Lock()
	f.mocks["b"] = llm.NewMockProvider("b", true)
	f.mu.Unlock()

	require.NoError(t, r.Reload(context.Background()))
	infos, err = r.Providers(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "b", infos[0].Name)
}

func TestProviderRegistry_SettingsFailureUsesDefaults(t *testing.T) {
	f := newRegistryFixture(cloudConfig("cloud", 1), localConfig("local", 2))
	f.settings.getErr = errors.New("settings unavailable")
	r := f.registry(config.RoutingConfig{})

	p, err := r.GetBestProvider(context.Background(), models.SensitivityMedium)
	require.NoError(t, err)
	assert.Equal(t, "cloud", p.Info().Name)
}

func TestProviderRegistry_StreamFallback(t *testing.T) {
	f := newRegistryFixture(cloudConfig("a", 1), cloudConfig("b", 2))
	f.mock("a").StreamTextFunc = func(ctx context.Context, messages []llm.Message, systemPrompt string) (*llm.Stream, error) {
		return nil, errors.New("cannot open")
	}
	r := f.registry(config.RoutingConfig{})

	s, err := r.Stream(context.Background(), []llm.Message{llm.UserMessage("hi")}, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "b", s.Provider)

	text, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, "mock response", text)
	assert.Equal(t, 1, f.mock("a").StreamCalls())
	assert.Equal(t, 1, f.mock("b").StreamCalls())
}
