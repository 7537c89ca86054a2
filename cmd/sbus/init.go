package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/sbus/pkg/app"
)

// initAnswers holds what the init form asks for.
type initAnswers struct {
	LogLevel      string
	GroupCapacity string
	Channels      string
	GroupTimeout  string
	Gateway       bool
	Bind          string
	BearerToken   string
}

func defaultAnswers() initAnswers {
	return initAnswers{
		LogLevel:      "info",
		GroupCapacity: "100",
		Channels:      "",
		GroupTimeout:  "10m",
		Gateway:       true,
		Bind:          "127.0.0.1:8080",
		BearerToken:   "${SBUS_TOKEN}",
	}
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("output")
			if path == "" {
				path = app.DefaultConfigPath()
			}
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			answers := defaultAnswers()
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				if err := initForm(&answers).Run(); err != nil {
					if errors.Is(err, huh.ErrUserAborted) {
						return nil
					}
					return err
				}
			}

			raw, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, raw, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Where to write the configuration")
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	cmd.Flags().BoolP("yes", "y", false, "Accept the defaults without prompting")
	return cmd
}

func initForm(a *initAnswers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Log level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&a.LogLevel),
			huh.NewInput().
				Title("Messages per group").
				Description("0 means unbounded").
				Value(&a.GroupCapacity).
				Validate(validateNonNegativeInt),
			huh.NewInput().
				Title("Channels").
				Description("Comma-separated group-backed channels to create").
				Value(&a.Channels),
			huh.NewInput().
				Title("Expire groups older than").
				Description("Empty disables the reaper").
				Value(&a.GroupTimeout).
				Validate(validateOptionalDuration),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the HTTP gateway?").
				Value(&a.Gateway),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Value(&a.Bind),
			huh.NewInput().
				Title("Bearer token").
				Description("Environment references like ${SBUS_TOKEN} are expanded at load").
				Value(&a.BearerToken),
		).WithHideFunc(func() bool { return !a.Gateway }),
	)
}

func validateNonNegativeInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return errors.New("enter a whole number, 0 or more")
	}
	return nil
}

func validateOptionalDuration(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := time.ParseDuration(s); err != nil {
		return errors.New("enter a duration such as 10m or 1h")
	}
	return nil
}

// renderConfig turns the answers into a configuration document.
func renderConfig(a initAnswers) ([]byte, error) {
	if err := validateNonNegativeInt(a.GroupCapacity); err != nil {
		return nil, fmt.Errorf("group capacity: %w", err)
	}
	if err := validateOptionalDuration(a.GroupTimeout); err != nil {
		return nil, fmt.Errorf("group timeout: %w", err)
	}
	capacity, _ := strconv.Atoi(strings.TrimSpace(a.GroupCapacity))

	store := map[string]any{"group_capacity": capacity}
	var channels []string
	for _, c := range strings.Split(a.Channels, ",") {
		if c = strings.TrimSpace(c); c != "" {
			channels = append(channels, c)
		}
	}
	if len(channels) > 0 {
		store["channels"] = channels
	}

	modules := map[string]any{"store.memory": store}
	if timeout := strings.TrimSpace(a.GroupTimeout); timeout != "" {
		modules["reaper.cron"] = map[string]any{"timeout": timeout}
	}
	if a.Gateway {
		gw := map[string]any{"bind": a.Bind}
		if a.BearerToken != "" {
			gw["auth"] = map[string]any{"bearer_token": a.BearerToken}
		}
		modules["gateway.http"] = gw
	}

	doc := map[string]any{
		"version":   "1",
		"log_level": a.LogLevel,
		"modules":   modules,
	}
	return yaml.Marshal(doc)
}
