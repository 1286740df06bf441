package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/services"
)

// defaultDecisionLimit caps `decisions list` when --limit is not given.
const defaultDecisionLimit = 20

func init() {
	check := &cobra.Command{
		Use:   "check-violation [description]",
		Short: "Check an incident against policy",
		Long: "Check an incident description against the retrieved policies. " +
			"With --issue a warning is recorded when a violation is found.",
		RunE: runCheckViolation,
	}
	check.Flags().String("subject", "", "Subject id (required)")
	check.Flags().String("context", "", "Extra context for the analysis")
	check.Flags().Bool("issue", false, "Issue a warning when a violation is found")
	check.Flags().String("issued-by", "", "Operator id; omit for an autonomous warning")
	_ = check.MarkFlagRequired("subject")

	warnings := &cobra.Command{
		Use:   "warnings",
		Short: "List a subject's warnings",
		RunE:  runListWarnings,
	}
	warnings.Flags().String("subject", "", "Subject id (required)")
	_ = warnings.MarkFlagRequired("subject")

	subjects := &cobra.Command{
		Use:   "subjects",
		Short: "Manage subject point balances",
	}
	ensure := &cobra.Command{
		Use:   "ensure",
		Short: "Create a subject profile if it does not exist",
		RunE:  runEnsureSubject,
	}
	ensure.Flags().String("subject", "", "Subject id (required)")
	ensure.Flags().String("name", "", "Display name")
	ensure.Flags().Int("points", 100, "Initial point balance")
	_ = ensure.MarkFlagRequired("subject")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show a subject profile",
		RunE:  runShowSubject,
	}
	show.Flags().String("subject", "", "Subject id (required)")
	_ = show.MarkFlagRequired("subject")
	subjects.AddCommand(ensure, show)

	decisions := &cobra.Command{
		Use:   "decisions",
		Short: "List a subject's decision log",
		RunE:  runListDecisions,
	}
	decisions.Flags().String("subject", "", "Subject id (required)")
	decisions.Flags().Int("limit", defaultDecisionLimit, "Maximum entries, newest first")
	_ = decisions.MarkFlagRequired("subject")

	RootCmd.AddCommand(check, warnings, subjects, decisions)
}

type checkViolationOutput struct {
	Check          *models.ViolationCheck `json:"check"`
	Warning        *models.Warning        `json:"warning,omitempty"`
	WarningSkipped string                 `json:"warning_skipped,omitempty"`
}

func runCheckViolation(cmd *cobra.Command, args []string) error {
	subject, _ := cmd.Flags().GetString("subject")
	extra, _ := cmd.Flags().GetString("context")
	issue, _ := cmd.Flags().GetBool("issue")
	issuedByFlag, _ := cmd.Flags().GetString("issued-by")

	description, err := readQuery(args, os.Stdin)
	if err != nil {
		return err
	}
	if description == "" {
		return fmt.Errorf("description is required (positional arg or stdin)")
	}
	subjectID, err := parseUUID("subject", subject)
	if err != nil {
		return err
	}
	issuedBy, err := parseOptionalUUID("issued-by", issuedByFlag)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	check, err := a.enforcement.CheckForViolations(cmd.Context(), services.ViolationCheckRequest{
		Description:  description,
		SubjectID:    subjectID,
		ExtraContext: extra,
		TriggeredBy:  issuedBy,
	})
	if err != nil {
		return err
	}

	out := checkViolationOutput{Check: check}
	if issue && check.IsViolation {
		warning, err := a.enforcement.IssueWarning(cmd.Context(), subjectID, check, issuedBy, issuedBy == nil)
		switch {
		case errors.Is(err, apperrors.ErrRequiresReview):
			out.WarningSkipped = "needs review: rerun with --issued-by to issue it"
		case err != nil:
			return err
		default:
			out.Warning = warning
		}
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func runListWarnings(cmd *cobra.Command, args []string) error {
	subject, _ := cmd.Flags().GetString("subject")
	subjectID, err := parseUUID("subject", subject)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	warnings, err := a.enforcement.ListWarnings(cmd.Context(), subjectID)
	if err != nil {
		return err
	}
	if warnings == nil {
		warnings = []*models.Warning{}
	}
	return printJSON(cmd.OutOrStdout(), warnings)
}

func runEnsureSubject(cmd *cobra.Command, args []string) error {
	subject, _ := cmd.Flags().GetString("subject")
	name, _ := cmd.Flags().GetString("name")
	points, _ := cmd.Flags().GetInt("points")

	subjectID, err := parseUUID("subject", subject)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	profile, err := a.subjects.Ensure(cmd.Context(), subjectID, name, points)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), profile)
}

func runShowSubject(cmd *cobra.Command, args []string) error {
	subject, _ := cmd.Flags().GetString("subject")
	subjectID, err := parseUUID("subject", subject)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	profile, err := a.subjects.Get(cmd.Context(), subjectID)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), profile)
}

func runListDecisions(cmd *cobra.Command, args []string) error {
	subject, _ := cmd.Flags().GetString("subject")
	limit, _ := cmd.Flags().GetInt("limit")

	subjectID, err := parseUUID("subject", subject)
	if err != nil {
		return err
	}
	if limit <= 0 {
		limit = defaultDecisionLimit
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	logs, err := a.decisions.ListBySubject(cmd.Context(), subjectID, limit)
	if err != nil {
		return err
	}
	if logs == nil {
		logs = []*models.DecisionLog{}
	}
	return printJSON(cmd.OutOrStdout(), logs)
}
