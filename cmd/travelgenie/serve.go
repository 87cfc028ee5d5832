package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/travelgenie/internal/config"
	"github.com/MrWong99/travelgenie/internal/tool"
)

func serveCmd() *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (chat API, RAG service, MCP endpoint)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), !noWatch)
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "disable config hot reload")
	return cmd
}

func runServe(parent context.Context, watch bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	inst, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	cfg, application := inst.cfg, inst.app

	printStartupSummary(os.Stdout, cfg, application.Registry().Statuses())

	// ── Config hot reload ─────────────────────────────────────────────────────
	if watch {
		w, err := config.NewWatcher(configPath, func(old, new *config.Config, _ config.ConfigDiff) {
			if logLevel != "" {
				new.Server.LogLevel = config.LogLevel(logLevel)
			}
			application.ApplyConfig(old, new)
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	if err := inst.close(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

const summaryWidth = 19

func printStartupSummary(w io.Writer, cfg *config.Config, statuses []tool.Status) {
	fmt.Fprintln(w, "╔══════════════════════════════════════════╗")
	fmt.Fprintln(w, "║       TravelGenie: startup summary       ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════════╣")
	printRow(w, "LLM", providerValue(cfg.Providers.LLM.Name, cfg.Providers.LLM.Model))
	printRow(w, "Fallbacks", fmt.Sprintf("%d", len(cfg.Providers.LLMFallbacks)))
	printRow(w, "Embeddings", providerValue(cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model))
	switch {
	case cfg.Cache.Disabled:
		printRow(w, "Tool cache", "(disabled)")
	case cfg.Cache.RedisAddr != "":
		printRow(w, "Tool cache", "redis "+cfg.Cache.RedisAddr)
	default:
		printRow(w, "Tool cache", "memory")
	}
	if cfg.RAG.Enabled() {
		printRow(w, "RAG", "postgres / "+cfg.RAG.Collection)
	} else {
		printRow(w, "RAG", "(disabled)")
	}
	if cfg.MCP.Enabled {
		printRow(w, "MCP", cfg.MCP.Path)
	} else {
		printRow(w, "MCP", "(disabled)")
	}
	printRow(w, "Listen addr", cfg.Server.ListenAddr)
	fmt.Fprintln(w, "╠══════════════════════════════════════════╣")
	for _, s := range statuses {
		state := "ready"
		if !s.Configured {
			state = "(not configured)"
		}
		printRow(w, s.Name, state)
	}
	fmt.Fprintln(w, "╚══════════════════════════════════════════╝")
}

func providerValue(name, model string) string {
	switch {
	case name == "":
		return "(not configured)"
	case model != "":
		return name + " / " + model
	default:
		return name
	}
}

func printRow(w io.Writer, label, value string) {
	if r := []rune(value); len(r) > summaryWidth {
		value = string(r[:summaryWidth-1]) + "…"
	}
	fmt.Fprintf(w, "║  %-18s: %-*s ║\n", label, summaryWidth, value)
}
