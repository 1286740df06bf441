package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/adapters/provider"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/services"
)

func init() {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Manage AI provider configs",
	}

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Create or update providers and settings from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE:  runProvidersImport,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored providers with masked credentials",
		RunE:  runProvidersList,
	}

	test := &cobra.Command{
		Use:   "test <name-or-id>",
		Short: "Issue a trivial generation against a stored provider",
		Args:  cobra.ExactArgs(1),
		RunE:  runProvidersTest,
	}

	del := &cobra.Command{
		Use:   "delete <name-or-id>",
		Short: "Delete a stored provider",
		Args:  cobra.ExactArgs(1),
		RunE:  runProvidersDelete,
	}

	adapters := &cobra.Command{
		Use:   "adapters",
		Short: "List the provider kinds this build supports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), provider.RegisteredAdapters())
		},
	}

	cmd.AddCommand(importCmd, list, test, del, adapters)
	RootCmd.AddCommand(cmd)
}

func runProvidersImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	seed, err := parseSeed(f)
	f.Close()
	if err != nil {
		return err
	}
	resolved, err := seed.resolveProviders(os.LookupEnv)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	for _, r := range resolved {
		view, err := a.providers.Upsert(ctx, r.Config, r.APIKey)
		if err != nil {
			return fmt.Errorf("provider %q: %w", r.Config.Name, err)
		}
		a.logger.Info("Imported provider",
			zap.String("provider", view.Name),
			zap.String("kind", string(view.Kind)),
			zap.Bool("is_local", view.IsLocal))
	}

	if seed.Settings != nil {
		if err := importSettings(ctx, a, seed); err != nil {
			return err
		}
	}

	views, err := a.providers.List(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), views)
}

func importSettings(ctx context.Context, a *app, seed *seedFile) error {
	views, err := a.providers.List(ctx)
	if err != nil {
		return err
	}
	ids := make(map[string]uuid.UUID, len(views))
	for _, v := range views {
		ids[v.Name] = v.ID
	}

	current, err := a.settings.Get(ctx)
	if err != nil {
		return err
	}
	next, err := seed.applySettings(current, ids)
	if err != nil {
		return err
	}
	if err := a.settings.Update(ctx, next); err != nil {
		return err
	}
	// The default provider and privacy mode drive routing.
	return a.router.Reload(ctx)
}

func runProvidersList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	views, err := a.providers.List(cmd.Context())
	if err != nil {
		return err
	}
	if views == nil {
		views = []*services.ProviderConfigView{}
	}
	return printJSON(cmd.OutOrStdout(), views)
}

func runProvidersTest(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	view, err := findProvider(cmd.Context(), a.providers, args[0])
	if err != nil {
		return err
	}
	result, err := a.providers.Test(cmd.Context(), view.ID)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("provider %q failed its connection test", view.Name)
	}
	return nil
}

func runProvidersDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	view, err := findProvider(cmd.Context(), a.providers, args[0])
	if err != nil {
		return err
	}
	if err := a.providers.Delete(cmd.Context(), view.ID); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", view.Name)
	return err
}

// findProvider resolves ref as a provider id, then as a name.
func findProvider(ctx context.Context, providers services.ProviderConfigService, ref string) (*services.ProviderConfigView, error) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		return providers.Get(ctx, id)
	}

	views, err := providers.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range views {
		if v.Name == ref {
			return v, nil
		}
	}
	return nil, fmt.Errorf("provider %q not found", ref)
}
