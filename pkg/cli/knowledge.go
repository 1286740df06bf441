package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

// knowledgeNamespace derives stable document ids from document names, so
// re-indexing a file replaces its chunks instead of duplicating them.
var knowledgeNamespace = uuid.MustParse("6f1d2c0e-4b8a-5f3e-9a71-2c5d8e0b4f19")

func init() {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the knowledge base",
	}

	index := &cobra.Command{
		Use:   "index <file>",
		Short: "Embed and store pre-chunked documents from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE:  runKnowledgeIndex,
	}

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve knowledge the way reasoning does",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runKnowledgeSearch,
	}
	search.Flags().String("subject", "", "Subject id to include subject-scoped knowledge")

	del := &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Remove every chunk of a document",
		Args:  cobra.ExactArgs(1),
		RunE:  runKnowledgeDelete,
	}

	cmd.AddCommand(index, search, del)
	RootCmd.AddCommand(cmd)
}

// knowledgeFile is the YAML accepted by `knowledge index`.
type knowledgeFile struct {
	Documents []knowledgeDocument `yaml:"documents"`
}

type knowledgeDocument struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	DocType        string   `yaml:"doc_type"`
	Scope          string   `yaml:"scope"`
	SubjectID      string   `yaml:"subject_id"`
	AuthorityLevel int      `yaml:"authority_level"`
	Chunks         []string `yaml:"chunks"`
}

// parseKnowledgeFile turns documents into chunks with deterministic ids.
// Field rules beyond identity are enforced by the retriever.
func parseKnowledgeFile(r io.Reader) ([]*models.KnowledgeChunk, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file knowledgeFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("knowledge file is empty")
		}
		return nil, fmt.Errorf("parse knowledge file: %w", err)
	}

	var chunks []*models.KnowledgeChunk
	for i, doc := range file.Documents {
		docID, err := documentID(doc)
		if err != nil {
			return nil, fmt.Errorf("documents[%d]: %w", i, err)
		}

		scope := models.KnowledgeScope(strings.TrimSpace(doc.Scope))
		if scope == "" {
			scope = models.ScopeGlobal
		}
		subjectID, err := parseOptionalUUID("subject_id", doc.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("documents[%d]: %w", i, err)
		}

		for j, content := range doc.Chunks {
			content = strings.TrimSpace(content)
			if content == "" {
				continue
			}
			chunks = append(chunks, &models.KnowledgeChunk{
				ID:             uuid.NewSHA1(docID, fmt.Appendf(nil, "%d", j)),
				DocumentID:     docID,
				Content:        content,
				ChunkIndex:     j,
				Scope:          scope,
				DocType:        strings.TrimSpace(doc.DocType),
				AuthorityLevel: doc.AuthorityLevel,
				SubjectID:      subjectID,
			})
		}
	}
	return chunks, nil
}

func documentID(doc knowledgeDocument) (uuid.UUID, error) {
	if id := strings.TrimSpace(doc.ID); id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid id %q: %w", id, err)
		}
		return parsed, nil
	}
	name := strings.TrimSpace(doc.Name)
	if name == "" {
		return uuid.Nil, errors.New("id or name is required")
	}
	return uuid.NewSHA1(knowledgeNamespace, []byte(name)), nil
}

func runKnowledgeIndex(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	chunks, err := parseKnowledgeFile(f)
	f.Close()
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return errors.New("knowledge file contains no chunks")
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.retriever.Index(cmd.Context(), chunks); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks\n", len(chunks))
	return err
}

func runKnowledgeSearch(cmd *cobra.Command, args []string) error {
	subject, _ := cmd.Flags().GetString("subject")
	subjectID, err := parseOptionalUUID("subject", subject)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	result := a.retriever.Retrieve(cmd.Context(), strings.Join(args, " "), subjectID)
	return printJSON(cmd.OutOrStdout(), result)
}

func runKnowledgeDelete(cmd *cobra.Command, args []string) error {
	docID, err := parseUUID("document-id", args[0])
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.retriever.DeleteDocument(cmd.Context(), docID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d chunks\n", n)
	return err
}
