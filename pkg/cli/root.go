// Package cli implements the ekaya-reasoner commands.
package cli

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

var (
	configPath string
	appVersion = "dev"
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "ekaya-reasoner",
	Short: "AI reasoning and enforcement core",
	Long: "Retrieves institutional knowledge, composes prompts, routes them to the configured AI providers " +
		"and turns incident reports into progressive disciplinary records.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Config file (environment variables override it)")
}

// Execute runs the command line with the build version.
func Execute(version string) error {
	appVersion = version
	RootCmd.Version = version
	return RootCmd.Execute()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
