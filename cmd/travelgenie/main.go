// Command travelgenie is the entry point for the TravelGenie concierge: an
// HTTP server exposing the tool-calling chat agent and the RAG service, plus
// a few operator subcommands.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/travelgenie/internal/app"
	"github.com/MrWong99/travelgenie/internal/config"
	"github.com/MrWong99/travelgenie/internal/observe"
)

var (
	version = "0.1.0"

	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:           "travelgenie",
		Short:         "TravelGenie: a tool-calling travel concierge",
		Long:          "TravelGenie plans trips with flight, hotel, weather, places and event tools, and answers questions from your own documents.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	root.AddCommand(serveCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(toolsCmd())
	root.AddCommand(ingestCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "travelgenie: %v\n", err)
		os.Exit(1)
	}
}

// ── Configuration ─────────────────────────────────────────────────────────────

// loadConfig reads the config file and applies the --log-level override.
func loadConfig(path, level string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", path)
		}
		return nil, err
	}
	if level != "" {
		l := config.LogLevel(level)
		if !l.IsValid() {
			return nil, fmt.Errorf("invalid --log-level %q", level)
		}
		cfg.Server.LogLevel = l
	}
	return cfg, nil
}

// ── Runtime ───────────────────────────────────────────────────────────────────

// instance is a fully wired application plus the process-wide state that
// outlives it.
type instance struct {
	cfg   *config.Config
	level *slog.LevelVar
	app   *app.App

	shutdownTelemetry func(context.Context) error
}

// bootstrap loads the configuration, installs the logger and telemetry, builds
// the model providers and wires the application.
func bootstrap(ctx context.Context) (*instance, error) {
	cfg, err := loadConfig(configPath, logLevel)
	if err != nil {
		return nil, err
	}

	lv := new(slog.LevelVar)
	lv.Set(app.Level(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(lv))

	slog.Info("travelgenie starting",
		"version", version,
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		_ = shutdownTelemetry(ctx)
		return nil, err
	}

	application, err := app.New(ctx, cfg, providers, app.WithLevelVar(lv))
	if err != nil {
		_ = shutdownTelemetry(ctx)
		return nil, fmt.Errorf("initialise application: %w", err)
	}

	return &instance{
		cfg:               cfg,
		level:             lv,
		app:               application,
		shutdownTelemetry: shutdownTelemetry,
	}, nil
}

// close shuts the application down and flushes telemetry.
func (r *instance) close(ctx context.Context) error {
	err := r.app.Shutdown(ctx)
	if terr := r.shutdownTelemetry(ctx); terr != nil {
		slog.Warn("telemetry shutdown error", "err", terr)
	}
	return err
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
