// Package main is the entry point for the sbus CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/sbus/internal/config"
	"github.com/flemzord/sbus/internal/core"
	"github.com/flemzord/sbus/internal/security"
	"github.com/flemzord/sbus/pkg/app"

	// Compiled-in modules.
	_ "github.com/flemzord/sbus/internal/gateway"
	_ "github.com/flemzord/sbus/internal/reaper"
	_ "github.com/flemzord/sbus/modules/storemem"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sbus",
		Short:         "An in-memory message store and router with an HTTP gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), configCmd(), initCmd(), serviceCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sbus %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range mods {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start sbus with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			return app.Run(cmd.Context(), runParams(cfgPath, dataDir))
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().String("data-dir", "", "Override the data directory")
	return cmd
}

func runParams(cfgPath, dataDir string) app.RunParams {
	return app.RunParams{
		ConfigPath: cfgPath,
		DataDir:    dataDir,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	check := &cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			show, _ := cmd.Flags().GetBool("print")
			return checkConfig(cmd.Context(), cmd.OutOrStdout(), args[0], show)
		},
	}
	check.Flags().Bool("print", false, "Print the expanded configuration with secrets redacted")
	cmd.AddCommand(check)
	return cmd
}

// checkConfig validates the file at path and provisions its modules without
// starting them.
func checkConfig(_ context.Context, out io.Writer, path string, show bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	cfg, err := config.Parse(raw)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := core.NewAppContext(logger, app.DefaultDataDir()).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService("security.redactor", security.NewRedactor())

	application := core.NewApp(appCtx)
	ids := config.Resolve(cfg)
	if err := application.LoadModules(ids); err != nil {
		return err
	}
	defer application.Stop()

	fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(out, "  %s\n", id)
	}
	if !show {
		return nil
	}

	redacted, err := redactedConfig(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	_, err = out.Write(redacted)
	return err
}

// redactedConfig renders cfg as YAML with secret-looking values replaced.
func redactedConfig(cfg *config.Config) ([]byte, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	security.NewRedactor().RedactMap(doc)
	return yaml.Marshal(doc)
}
