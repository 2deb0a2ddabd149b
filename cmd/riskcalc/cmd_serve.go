package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/assetrisk/pkg/api"
	"github.com/Mindburn-Labs/assetrisk/pkg/config"
	"github.com/Mindburn-Labs/assetrisk/pkg/mcptools"
	"github.com/Mindburn-Labs/assetrisk/pkg/observability"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the formula engine over HTTP",
		Long: `Starts the HTTP API. Configuration comes from the environment
(PORT, LOG_LEVEL, CATALOG_PATH, PROFILE_DIR, RATE_LIMIT_RPS, RATE_LIMIT_BURST,
SESSION_TTL, BATCH_PARALLELISM, OTEL_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT,
OTEL_INSECURE); flags override it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if port != "" {
				cfg.Port = port
			}
			return runServe(cmd.Context(), opts, cfg)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (default $PORT or 8080)")
	return cmd
}

func runServe(ctx context.Context, opts *globalOptions, cfg *config.Config) error {
	// Servers log JSON for collectors.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: levelOf(opts.logLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := opts.engine()
	if err != nil {
		return err
	}
	profiles, err := opts.profiles(engine.Registry())
	if err != nil {
		return err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obsCfg.Insecure = cfg.OTelInsecure
	obsCfg.Enabled = cfg.OTelEnabled
	provider, err := observability.New(ctx, obsCfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("observability shutdown", "error", err)
		}
	}()

	srv := api.NewServer(ctx, engine, api.Options{
		RateLimitRPS:     cfg.RateLimitRPS,
		RateLimitBurst:   cfg.RateLimitBurst,
		SessionTTL:       cfg.SessionTTL,
		BatchParallelism: cfg.BatchParallelism,
		Observer:         provider,
		Profiles:         profiles,
		Version:          version,
	})

	logger.Info("starting riskcalc",
		"version", version,
		"catalog", engine.Registry().Version(),
		"profiles", len(profiles),
		"otel", cfg.OTelEnabled)

	err = srv.ListenAndServe(ctx, ":"+cfg.Port)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func levelOf(name string) slog.Level {
	c := config.Config{LogLevel: strings.ToUpper(name)}
	return c.SlogLevel()
}

func newMCPCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the calculation tools over MCP stdio",
		Long: `Starts a Model Context Protocol server on stdin/stdout with the tools
list_formulas, describe_formula, calculate, classify_risk, get_history and
clear_history. All calls share one calculation session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := opts.engine()
			if err != nil {
				return err
			}
			profiles, err := opts.profiles(engine.Registry())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := mcptools.NewServer(engine, version, profiles)
			return srv.Run(ctx)
		},
	}
}
