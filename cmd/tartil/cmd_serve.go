package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/tartil/internal/analysis"
	"github.com/MrWong99/tartil/internal/config"
	"github.com/MrWong99/tartil/internal/health"
	"github.com/MrWong99/tartil/internal/observe"
	"github.com/MrWong99/tartil/internal/server"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis API over HTTP",
		Long: `Serve the analysis API over HTTP.

The configuration file is watched while the server runs: log level and
Tajweed settings are applied immediately, other changes are logged and take
effect after a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, root, listenAddr)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "override server.listen_addr")
	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions, listenAddr string) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		SampleRatio:    cfg.Server.TraceSampleRatio,
		Attributes: []attribute.KeyValue{
			observe.AttrASRProvider.String(cfg.Providers.ASR.Name),
			observe.AttrFeaturesProvider.String(cfg.Providers.Features.Name),
			observe.AttrHistoryBackend.String(cfg.History.Backend),
		},
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Analyzer and collaborators ────────────────────────────────────────────
	analyzer, collab, err := setup(cfg, metrics)
	if err != nil {
		return err
	}

	// ── History ───────────────────────────────────────────────────────────────
	store, closeStore, err := openHistory(ctx, cfg.History)
	if err != nil {
		return err
	}
	defer closeStore()

	// ── Readiness ─────────────────────────────────────────────────────────────
	var checks []health.Checker
	if p, ok := store.(health.Pinger); ok {
		checks = append(checks, health.PingCheck("history", p))
	}
	if cfg.Tajweed.IsEnabled() {
		checks = append(checks, health.CatalogCheck(analyzer.Engine))
	}
	for _, g := range collab.groups() {
		checks = append(checks, health.GroupCheck(g))
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	if root.configPath != "" {
		w, err := config.NewWatcher(root.configPath, onConfigChange(analyzer, root.logLevel != ""))
		if err != nil {
			return err
		}
		defer w.Stop()
	}

	// ── Server ────────────────────────────────────────────────────────────────
	var certFile, keyFile string
	if tls := cfg.Server.TLS; tls != nil {
		certFile, keyFile = tls.CertFile, tls.KeyFile
	}
	srv, err := server.New(server.Config{
		ListenAddr: cfg.Server.ListenAddr,
		CertFile:   certFile,
		KeyFile:    keyFile,
		Analyzer:   analyzer,
		History:    store,
		Health:     health.New(checks...),
		Metrics:    metrics,

		HistoryDimensions: cfg.History.CentroidDimensions(),
	})
	if err != nil {
		return err
	}

	printStartupSummary(cmd.OutOrStdout(), cfg, analyzer)
	slog.Info("server ready, press Ctrl+C to shut down")

	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}
	slog.Info("goodbye")
	return nil
}

// onConfigChange applies the hot-reloadable parts of a new configuration.
// keepLevel is set when --log-level pins the verbosity.
func onConfigChange(a *analysis.Analyzer, keepLevel bool) func(old, new *config.Config, d config.ConfigDiff) {
	return func(old, new *config.Config, d config.ConfigDiff) {
		if d.LogLevelChanged && !keepLevel {
			setLogLevel(new.Server.LogLevel)
			slog.Info("log level changed", "level", new.Server.LogLevel)
		}
		restart := d.RestartRequired
		if d.TajweedChanged {
			switch {
			case old.Tajweed.IsEnabled() != new.Tajweed.IsEnabled():
				// Readiness checks are fixed at startup.
				restart = append(restart, "tajweed.enabled")
			default:
				engine, err := new.Tajweed.Engine()
				if err != nil {
					slog.Error("tajweed reload failed, keeping the previous rules", "err", err)
					break
				}
				a.SetEngine(engine)
				slog.Info("tajweed engine reloaded",
					"catalog_edited", d.CatalogChanged,
					"rules", engine.Catalog().Len(),
					"categories", len(engine.Categories()),
				)
			}
		}
		if len(restart) > 0 {
			slog.Warn("configuration changes take effect after a restart", "sections", restart)
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config, a *analysis.Analyzer) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║         Tartil - startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "ASR", cfg.Providers.ASR.Name, cfg.Providers.ASR.Model)
	printProvider(w, "ASR fallbacks", fmt.Sprint(len(cfg.Providers.ASRFallbacks)), "")
	printProvider(w, "Features", cfg.Providers.Features.Name, cfg.Providers.Features.Model)
	printProvider(w, "Feat. fallbacks", fmt.Sprint(len(cfg.Providers.FeaturesFallbacks)), "")
	printProvider(w, "History", cfg.History.Backend, "")
	if e := a.Engine(); e != nil {
		fmt.Fprintf(w, "║  %-15s : %-19s ║\n", "Tajweed rules", fmt.Sprintf("%d in %d categories", e.Catalog().Len(), len(e.Categories())))
	} else {
		fmt.Fprintf(w, "║  %-15s : %-19s ║\n", "Tajweed rules", "(disabled)")
	}
	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = server.DefaultListenAddr
	}
	fmt.Fprintf(w, "║  %-15s : %-19s ║\n", "Listen addr", addr)
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Fprintf(w, "║  %-15s : %-19s ║\n", kind, value)
}
