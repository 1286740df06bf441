package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/prompts"
)

func init() {
	cmd := &cobra.Command{
		Use:   "course <topic>",
		Short: "Generate a structured course outline from policy",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCourse,
	}
	cmd.Flags().String("audience", "", "Who the course is for")
	cmd.Flags().Int("modules", 0, "Number of modules (0 lets the model decide)")
	cmd.Flags().String("triggered-by", "", "Operator id; omit for an autonomous run")

	RootCmd.AddCommand(cmd)
}

func runCourse(cmd *cobra.Command, args []string) error {
	audience, _ := cmd.Flags().GetString("audience")
	modules, _ := cmd.Flags().GetInt("modules")
	triggeredByFlag, _ := cmd.Flags().GetString("triggered-by")

	triggeredBy, err := parseOptionalUUID("triggered-by", triggeredByFlag)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.courses.Generate(cmd.Context(), prompts.CourseRequest{
		Topic:       strings.Join(args, " "),
		Audience:    audience,
		ModuleCount: modules,
	}, triggeredBy)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}
