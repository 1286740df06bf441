package cli

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

func TestParseKnowledgeFile(t *testing.T) {
	subjectID := uuid.New()
	input := `
documents:
  - name: handbook
    doc_type: handbook
    authority_level: 1
    chunks:
      - Daily reports are due by 6pm.
      - "   "
      - Badges must be worn on site.
  - name: plan
    scope: subject
    subject_id: ` + subjectID.String() + `
    authority_level: 2
    chunks:
      - Weekly check-in on Fridays.
`
	chunks, err := parseKnowledgeFile(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, chunks, 3, "blank chunks are skipped")

	assert.Equal(t, models.ScopeGlobal, chunks[0].Scope, "scope defaults to global")
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 2, chunks[1].ChunkIndex, "indexes follow the file")
	assert.Equal(t, chunks[0].DocumentID, chunks[1].DocumentID)
	assert.Nil(t, chunks[0].SubjectID)

	assert.Equal(t, models.ScopeSubject, chunks[2].Scope)
	require.NotNil(t, chunks[2].SubjectID)
	assert.Equal(t, subjectID, *chunks[2].SubjectID)
	assert.Equal(t, 2, chunks[2].AuthorityLevel)
}

func TestParseKnowledgeFile_StableIDs(t *testing.T) {
	input := "documents:\n  - name: handbook\n    authority_level: 1\n    chunks: [a, b]\n"

	first, err := parseKnowledgeFile(strings.NewReader(input))
	require.NoError(t, err)
	second, err := parseKnowledgeFile(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, first, 2)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].DocumentID, second[0].DocumentID)
	assert.NotEqual(t, first[0].ID, first[1].ID)
}

func TestParseKnowledgeFile_ExplicitDocumentID(t *testing.T) {
	docID := uuid.New()
	input := "documents:\n  - id: " + docID.String() + "\n    authority_level: 1\n    chunks: [a]\n"

	chunks, err := parseKnowledgeFile(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, docID, chunks[0].DocumentID)
}

func TestParseKnowledgeFile_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", ""},
		{"no identity", "documents:\n  - authority_level: 1\n    chunks: [a]\n"},
		{"bad id", "documents:\n  - id: nope\n    chunks: [a]\n"},
		{"bad subject", "documents:\n  - name: x\n    subject_id: nope\n    chunks: [a]\n"},
		{"unknown field", "documents:\n  - name: x\n    body: a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseKnowledgeFile(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseOptionalUUID(t *testing.T) {
	id, err := parseOptionalUUID("subject", "  ")
	require.NoError(t, err)
	assert.Nil(t, id)

	_, err = parseUUID("subject", "")
	assert.EqualError(t, err, "--subject is required")

	_, err = parseOptionalUUID("subject", "not-a-uuid")
	assert.Error(t, err)
}
