package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/services"
)

func init() {
	reason := &cobra.Command{
		Use:   "reason [query]",
		Short: "Answer a query with retrieved knowledge",
		Long:  "Answer a query grounded in the knowledge base. The query can be a positional arg or piped via stdin.",
		RunE:  runReason,
	}
	reason.Flags().String("subject", "", "Subject id for subject-scoped knowledge")
	reason.Flags().String("sensitivity", string(models.SensitivityMedium), "Sensitivity: low, medium, high")
	reason.Flags().String("context", "", "Extra context appended to the system prompt")
	reason.Flags().Bool("stream", false, "Print the answer as it is generated")

	preview := &cobra.Command{
		Use:   "preview-prompt [query]",
		Short: "Print the composed system prompt without calling a model",
		RunE:  runPreviewPrompt,
	}
	preview.Flags().String("subject", "", "Subject id for subject-scoped knowledge")
	preview.Flags().String("context", "", "Extra context appended to the system prompt")

	RootCmd.AddCommand(reason, preview)
}

func runReason(cmd *cobra.Command, args []string) error {
	subject, _ := cmd.Flags().GetString("subject")
	sensitivity, _ := cmd.Flags().GetString("sensitivity")
	extra, _ := cmd.Flags().GetString("context")
	stream, _ := cmd.Flags().GetBool("stream")

	query, err := readQuery(args, os.Stdin)
	if err != nil {
		return err
	}
	if query == "" {
		return fmt.Errorf("query is required (positional arg or stdin)")
	}
	subjectID, err := parseOptionalUUID("subject", subject)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	req := services.ReasonRequest{
		Query:        query,
		SubjectID:    subjectID,
		Sensitivity:  models.ParseSensitivity(sensitivity),
		ExtraContext: extra,
	}
	out := cmd.OutOrStdout()

	if !stream {
		resp, err := a.orchestrator.Execute(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(out, resp)
	}

	s, resp, err := a.orchestrator.ExecuteStream(cmd.Context(), req)
	if err != nil {
		return err
	}
	defer s.Close()

	for s.Next() {
		fmt.Fprint(out, s.Text())
	}
	fmt.Fprintln(out)
	if err := s.Err(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "provider=%s model=%s sources=%d\n", resp.Provider, resp.Model, len(resp.SourceChunkIDs))
	return nil
}

func runPreviewPrompt(cmd *cobra.Command, args []string) error {
	subject, _ := cmd.Flags().GetString("subject")
	extra, _ := cmd.Flags().GetString("context")

	subjectID, err := parseOptionalUUID("subject", subject)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	prompt, err := a.orchestrator.PreviewPrompt(cmd.Context(), services.PreviewRequest{
		Query:        strings.TrimSpace(strings.Join(args, " ")),
		SubjectID:    subjectID,
		ExtraContext: extra,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), prompt)
	return err
}

// readQuery takes the positional args, falling back to piped stdin.
func readQuery(args []string, stdin *os.File) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}

	stat, err := stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func parseOptionalUUID(name, value string) (*uuid.UUID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: %w", name, value, err)
	}
	return &id, nil
}

func parseUUID(name, value string) (uuid.UUID, error) {
	id, err := parseOptionalUUID(name, value)
	if err != nil {
		return uuid.Nil, err
	}
	if id == nil {
		return uuid.Nil, fmt.Errorf("--%s is required", name)
	}
	return *id, nil
}
