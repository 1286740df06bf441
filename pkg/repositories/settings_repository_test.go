//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/testhelpers"
)

func TestSettingsRepository_RoundTrip(t *testing.T) {
	db := testhelpers.GetReasonerDB(t).DB
	repo := NewSettingsRepository(db)
	ctx := context.Background()

	original, err := repo.Get(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Update(ctx, original) })

	updated := &models.EngineSettings{
		PrivacyMode:      true,
		BaseInstructions: "Be precise.",
		Personality: models.PersonalityConfig{
			Tone:        models.ToneStrict,
			CustomRules: []string{"Cite the handbook", "No speculation"},
		},
	}
	require.NoError(t, repo.Update(ctx, updated))

	got, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.True(t, got.PrivacyMode)
	assert.Nil(t, got.DefaultProviderID)
	assert.Equal(t, "Be precise.", got.BaseInstructions)
	assert.Equal(t, []string{"Cite the handbook", "No speculation"}, got.Personality.CustomRules)
}

func TestDecisionLogRepository_CreateAndList(t *testing.T) {
	db := testhelpers.GetReasonerDB(t).DB
	repo := NewDecisionLogRepository(db)
	ctx := context.Background()

	subjectID := uuid.New()
	chunkID := uuid.New()
	log := &models.DecisionLog{
		ActionType:          models.ActionChatResponse,
		InputSummary:        "When are reports due?",
		OutputSummary:       "By 6pm daily.",
		FullResponse:        "By 6pm daily.",
		SourceChunkIDs:      []uuid.UUID{chunkID},
		AuthorityLayersUsed: []string{"Layer1:handbook"},
		SubjectID:           &subjectID,
		ModelUsed:           "llama3.1",
		TokenCount:          42,
	}
	require.NoError(t, repo.Create(ctx, log))
	assert.NotEqual(t, uuid.Nil, log.ID)

	logs, err := repo.ListBySubject(ctx, subjectID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, []uuid.UUID{chunkID}, logs[0].SourceChunkIDs)
	assert.Equal(t, []string{"Layer1:handbook"}, logs[0].AuthorityLayersUsed)
	assert.True(t, logs[0].IsAutonomous())
}
