package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/repositories"
)

// mockProviderConfigRepo is an in-memory ProviderConfigRepository.
type mockProviderConfigRepo struct {
	mu          sync.Mutex
	configs     map[uuid.UUID]*models.ProviderConfig
	listErr     error
	listEnabled int
}

func newMockProviderConfigRepo(cfgs ...*models.ProviderConfig) *mockProviderConfigRepo {
	r := &mockProviderConfigRepo{configs: make(map[uuid.UUID]*models.ProviderConfig)}
	for _, c := range cfgs {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		r.configs[c.ID] = c
	}
	return r
}

func (r *mockProviderConfigRepo) Create(ctx context.Context, cfg *models.ProviderConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.configs {
		if c.Name == cfg.Name {
			return apperrors.ErrConflict
		}
	}
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	cp := *cfg
	r.configs[cfg.ID] = &cp
	return nil
}

func (r *mockProviderConfigRepo) Update(ctx context.Context, cfg *models.ProviderConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.configs[cfg.ID]; !ok {
		return apperrors.ErrNotFound
	}
	cp := *cfg
	r.configs[cfg.ID] = &cp
	return nil
}

func (r *mockProviderConfigRepo) Get(ctx context.Context, id uuid.UUID) (*models.ProviderConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *mockProviderConfigRepo) GetByName(ctx context.Context, name string) (*models.ProviderConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.configs {
		if c.Name == name {
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *mockProviderConfigRepo) List(ctx context.Context) ([]*models.ProviderConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(false), nil
}

func (r *mockProviderConfigRepo) ListEnabled(ctx context.Context) ([]*models.ProviderConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listEnabled++
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.sorted(true), nil
}

func (r *mockProviderConfigRepo) sorted(enabledOnly bool) []*models.ProviderConfig {
	var out []*models.ProviderConfig
	for _, c := range r.configs {
		if enabledOnly && !c.Enabled {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (r *mockProviderConfigRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.configs[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.configs, id)
	return nil
}

func (r *mockProviderConfigRepo) listEnabledCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listEnabled
}

var _ repositories.ProviderConfigRepository = (*mockProviderConfigRepo)(nil)

// mockSettingsRepo returns fixed settings.
type mockSettingsRepo struct {
	mu       sync.Mutex
	settings *models.EngineSettings
	getErr   error
}

func (r *mockSettingsRepo) Get(ctx context.Context) (*models.EngineSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	if r.settings == nil {
		return models.DefaultEngineSettings(), nil
	}
	cp := *r.settings
	return &cp, nil
}

func (r *mockSettingsRepo) Update(ctx context.Context, settings *models.EngineSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *settings
	r.settings = &cp
	return nil
}

var _ repositories.SettingsRepository = (*mockSettingsRepo)(nil)

// mockDecisionLogRepo records every created entry.
type mockDecisionLogRepo struct {
	mu        sync.Mutex
	entries   []*models.DecisionLog
	createErr error
}

func (r *mockDecisionLogRepo) Create(ctx context.Context, log *models.DecisionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	r.entries = append(r.entries, log)
	return nil
}

func (r *mockDecisionLogRepo) ListBySubject(ctx context.Context, subjectID uuid.UUID, limit int) ([]*models.DecisionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.DecisionLog
	for _, e := range r.entries {
		if e.SubjectID != nil && *e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *mockDecisionLogRepo) all() []*models.DecisionLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.DecisionLog(nil), r.entries...)
}

var _ repositories.DecisionLogRepository = (*mockDecisionLogRepo)(nil)

// mockWarningRepo keeps warnings and point balances in memory. Issue is
// atomic like the transactional implementation.
type mockWarningRepo struct {
	mu       sync.Mutex
	warnings []*models.Warning
	points   map[uuid.UUID]int
	issueErr error
}

func newMockWarningRepo() *mockWarningRepo {
	return &mockWarningRepo{points: make(map[uuid.UUID]int)}
}

func (r *mockWarningRepo) Issue(ctx context.Context, subjectID uuid.UUID, build repositories.WarningBuilder) (*models.Warning, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.issueErr != nil {
		return nil, 0, r.issueErr
	}
	w, err := build(r.countActiveLocked(subjectID))
	if err != nil {
		return nil, 0, err
	}
	r.warnings = append(r.warnings, w)
	r.points[subjectID] = max(r.points[subjectID]-w.PointsDeducted, 0)
	return w, r.points[subjectID], nil
}

func (r *mockWarningRepo) countActiveLocked(subjectID uuid.UUID) int {
	n := 0
	for _, w := range r.warnings {
		if w.SubjectID == subjectID && w.Status == models.WarningStatusActive {
			n++
		}
	}
	return n
}

func (r *mockWarningRepo) ListBySubject(ctx context.Context, subjectID uuid.UUID) ([]*models.Warning, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Warning
	for _, w := range r.warnings {
		if w.SubjectID == subjectID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *mockWarningRepo) balance(subjectID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.points[subjectID]
}

var _ repositories.WarningRepository = (*mockWarningRepo)(nil)

// mockKnowledgeStore returns canned chunks per scope.
type mockKnowledgeStore struct {
	mu       sync.Mutex
	global   []models.KnowledgeChunk
	subject  []models.KnowledgeChunk
	queryErr error
	upserted []*models.KnowledgeChunk
	filters  []models.KnowledgeFilter
	thresh   []float64

	// upsertErrs are returned by successive Upsert calls before any succeed.
	upsertErrs  []error
	upsertCalls int
}

func (s *mockKnowledgeStore) Upsert(ctx context.Context, chunk *models.KnowledgeChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if len(s.upsertErrs) > 0 {
		err := s.upsertErrs[0]
		s.upsertErrs = s.upsertErrs[1:]
		return err
	}
	s.upserted = append(s.upserted, chunk)
	return nil
}

func (s *mockKnowledgeStore) Query(ctx context.Context, embedding []float32, k int, filter models.KnowledgeFilter, threshold float64) ([]models.KnowledgeChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = append(s.filters, filter)
	s.thresh = append(s.thresh, threshold)
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if filter.Scope == models.ScopeSubject {
		return append([]models.KnowledgeChunk(nil), s.subject...), nil
	}
	return append([]models.KnowledgeChunk(nil), s.global...), nil
}

func (s *mockKnowledgeStore) DeleteByDocument(ctx context.Context, documentID uuid.UUID) (int64, error) {
	return 0, nil
}

var _ repositories.KnowledgeStore = (*mockKnowledgeStore)(nil)

// mockEmbedder returns a fixed vector per text.
type mockEmbedder struct {
	err error
}

func (e *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0, 0}, nil
}

func (e *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1, 0}
	}
	return out, nil
}

func (e *mockEmbedder) Dimensions() int { return 3 }
func (e *mockEmbedder) Name() string    { return "mock" }

// mockDecrypter decrypts "enc:<key>" tokens and fails on anything else.
type mockDecrypter struct{}

func (mockDecrypter) Decrypt(token string) (string, error) {
	const prefix = "enc:"
	if len(token) <= len(prefix) || token[:len(prefix)] != prefix {
		return "", errors.New("decryption failed: bad token")
	}
	return token[len(prefix):], nil
}

func (mockDecrypter) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

// stubRetriever returns a fixed retrieval result without embedding anything.
type stubRetriever struct {
	global  []models.KnowledgeChunk
	subject []models.KnowledgeChunk
}

func (r *stubRetriever) Search(ctx context.Context, query string, filter models.KnowledgeFilter, threshold float64) ([]models.KnowledgeChunk, error) {
	if filter.Scope == models.ScopeSubject {
		return r.subject, nil
	}
	return r.global, nil
}

func (r *stubRetriever) SearchGlobal(ctx context.Context, query string) []models.KnowledgeChunk {
	return append([]models.KnowledgeChunk(nil), r.global...)
}

func (r *stubRetriever) SearchSubject(ctx context.Context, query string, subjectID uuid.UUID) []models.KnowledgeChunk {
	return append([]models.KnowledgeChunk(nil), r.subject...)
}

func (r *stubRetriever) Retrieve(ctx context.Context, query string, subjectID *uuid.UUID) *models.RetrievalResult {
	res := &models.RetrievalResult{Global: r.SearchGlobal(ctx, query)}
	if subjectID != nil {
		res.Subject = r.SearchSubject(ctx, query, *subjectID)
	}
	res.Combined = append(append([]models.KnowledgeChunk(nil), res.Global...), res.Subject...)
	return res
}

func (r *stubRetriever) Index(ctx context.Context, chunks []*models.KnowledgeChunk) error {
	return nil
}

func (r *stubRetriever) DeleteDocument(ctx context.Context, documentID uuid.UUID) (int64, error) {
	return 0, nil
}

var _ KnowledgeRetriever = (*stubRetriever)(nil)

func policyChunk(content, docType string, authority int) models.KnowledgeChunk {
	return models.KnowledgeChunk{
		ID:             uuid.New(),
		DocumentID:     uuid.New(),
		Content:        content,
		Scope:          models.ScopeGlobal,
		DocType:        docType,
		AuthorityLevel: authority,
		Similarity:     0.5,
	}
}
