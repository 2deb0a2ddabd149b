package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Mindburn-Labs/assetrisk/pkg/config"
	"github.com/Mindburn-Labs/assetrisk/pkg/format"
	"github.com/Mindburn-Labs/assetrisk/pkg/formula"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	catalog    string
	profileDir string
	markdown   bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "riskcalc",
		Short: "Risk-based inspection formula calculator",
		Long: "riskcalc evaluates damage factor, consequence of failure and risk matrix\n" +
			"formulas for pressure equipment and piping.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(cmd, opts.logLevel)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.catalog, "catalog", cfg.CatalogPath, "formula catalog YAML (default: built-in catalog)")
	f.StringVar(&opts.profileDir, "profile-dir", cfg.ProfileDir, "directory holding profile_<code>.yaml site profiles")
	f.BoolVar(&opts.markdown, "markdown", false, "render tables as Markdown")
	f.StringVar(&opts.logLevel, "log-level", cfg.LogLevel, "DEBUG, INFO, WARN or ERROR")

	root.AddCommand(
		newFormulasCmd(opts),
		newDescribeCmd(opts),
		newCalcCmd(opts),
		newMatrixCmd(opts),
		newDemoCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
		newVersionCmd(opts),
	)
	return root
}

// setupLogging sends text logs to stderr so stdout stays clean for
// tables, JSON and the MCP stdio transport.
func setupLogging(cmd *cobra.Command, level string) {
	h := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: levelOf(level)})
	slog.SetDefault(slog.New(h))
}

func (o *globalOptions) mode() format.Mode {
	if o.markdown {
		return format.Markdown
	}
	return format.ASCII
}

// engine builds an engine over the configured catalog.
func (o *globalOptions) engine() (*formula.Engine, error) {
	if o.catalog == "" {
		return formula.DefaultEngine()
	}
	reg, err := formula.LoadCatalogFile(o.catalog)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return formula.NewEngine(reg)
}

// profiles loads every site profile and checks its defaults against the
// catalog. No directory setting means no profiles.
func (o *globalOptions) profiles(reg *formula.Registry) (map[string]*config.SiteProfile, error) {
	if o.profileDir == "" {
		return map[string]*config.SiteProfile{}, nil
	}
	if _, err := os.Stat(o.profileDir); err != nil {
		return nil, fmt.Errorf("profile directory: %w", err)
	}
	profiles, err := config.LoadAllProfiles(o.profileDir)
	if err != nil {
		return nil, err
	}
	fields := reg.FieldNames()
	for _, p := range profiles {
		if err := p.CheckFields(fields); err != nil {
			return nil, err
		}
	}
	return profiles, nil
}

func newVersionCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the program and catalog versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.engine()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "riskcalc %s (catalog %s)\n", version, e.Registry().Version())
			return nil
		},
	}
}
