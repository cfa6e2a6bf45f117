package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"preset-relay/api"
	"preset-relay/config"
	"preset-relay/logging"
	"preset-relay/preset"
	"preset-relay/relay"
	"preset-relay/watch"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		envFile      string
		addr         string
		presetFile   string
		logLevel     string
		logFormat    string
		transport    string
		mirrorStatus bool
	)

	cmd := &cobra.Command{
		Use:           "preset-relay",
		Short:         "HTTP relay that forwards requests through named presets",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.BindAddress = addr
			}
			if flags.Changed("preset-file") {
				cfg.PresetFile = presetFile
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = logFormat
			}
			if flags.Changed("transport") {
				cfg.Transport = transport
			}
			if flags.Changed("mirror-status") {
				cfg.MirrorStatus = mirrorStatus
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&envFile, "env-file", ".env", "path to .env file (ignored if missing)")
	f.StringVar(&addr, "addr", "", "listen address (overrides BIND_ADDRESS)")
	f.StringVar(&presetFile, "preset-file", "", "YAML or JSON preset seed file (overrides PRESET_FILE)")
	f.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	f.StringVar(&logFormat, "log-format", "", "text or json (overrides LOG_FORMAT)")
	f.StringVar(&transport, "transport", "", "outbound client: http or fasthttp (overrides TRANSPORT)")
	f.BoolVar(&mirrorStatus, "mirror-status", false, "return the downstream status instead of 200 (overrides MIRROR_STATUS)")
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: logging.ParseFormat(cfg.LogFormat),
	})
	slog.SetDefault(logger)

	registry := preset.NewRegistry(preset.WithMaxEntries(cfg.MaxPresets))
	if cfg.PresetFile != "" {
		seeds, err := preset.LoadSeedFile(cfg.PresetFile)
		if err != nil {
			return fmt.Errorf("failed to load presets: %w", err)
		}
		if err := preset.Seed(registry, seeds); err != nil {
			return err
		}
		logger.Info("presets seeded", "file", cfg.PresetFile, "count", len(seeds))
	}

	hub := watch.NewHub()
	registry.OnChange(hub.Publish)

	engine := relay.NewEngine(registry, newTransport(cfg), relay.NewHistory(cfg.HistorySize), logger, relay.Options{
		MirrorStatus:    cfg.MirrorStatus,
		UsePresetMethod: cfg.UsePresetMethod,
		UsePresetBody:   cfg.UsePresetBody,
	})

	router := api.RegisterRoutes(registry, engine, hub, logger, api.Options{ResponseMode: cfg.ResponseMode})
	srv := &http.Server{
		Addr:              cfg.BindAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("preset-relay listening", "addr", cfg.BindAddress, "transport", cfg.Transport)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newTransport(cfg config.Config) relay.Transport {
	if cfg.Transport == config.TransportFastHTTP {
		return relay.NewFastHTTPTransport(cfg.TransportTimeout)
	}
	return relay.NewHTTPTransport(cfg.TransportTimeout)
}
