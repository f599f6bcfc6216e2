package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/eteran/s3mock/pkg/config"
	"github.com/eteran/s3mock/pkg/core"
	"github.com/eteran/s3mock/pkg/metrics"
	"github.com/eteran/s3mock/pkg/service"
	"github.com/eteran/s3mock/pkg/store"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// prepareDataDir resolves the data directory, creating a temporary one when
// none is configured. The returned cleanup removes a temporary directory
// unless files are retained.
func prepareDataDir(cfg config.Config) (string, func(), error) {
	if cfg.DataDir == "" {
		dir, err := os.MkdirTemp("", "s3mockFileStore")
		if err != nil {
			return "", nil, fmt.Errorf("failed to create temporary data directory: %w", err)
		}

		cleanup := func() {
			if cfg.RetainFilesOnExit {
				slog.Info("Retaining data directory", "dir", dir)
				return
			}
			if err := os.RemoveAll(dir); err != nil {
				slog.Error("Failed to remove data directory", "dir", dir, "err", err)
			}
		}
		return dir, cleanup, nil
	}

	// Ensure data directory is absolute for easier debugging.
	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return absDataDir, func() {}, nil
}

// parseFlags parses args into the config file path and the options of the
// flags that were given. Flags left unset keep the file and environment
// values.
func parseFlags(args []string) (string, []config.ConfigOption, error) {
	fs := flag.NewFlagSet("s3mock", flag.ContinueOnError)

	configPath := fs.String("config", "", "path to a YAML configuration file")
	fs.String("listen", "", "HTTP listen address")
	fs.String("data-dir", "", "directory to store object data")
	fs.Bool("retain-files", false, "keep a temporary data directory on exit")
	fs.String("region", "", "region reported for buckets")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("initial-buckets", "", "comma separated buckets to create at startup")
	fs.Bool("metrics", true, "serve Prometheus metrics on /metrics")

	if err := fs.Parse(args); err != nil {
		return "", nil, err
	}

	var opts []config.ConfigOption
	fs.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "listen":
			opts = append(opts, config.WithAddress(v))
		case "data-dir":
			opts = append(opts, config.WithDataDir(v))
		case "retain-files":
			opts = append(opts, config.WithRetainFilesOnExit(v == "true"))
		case "region":
			opts = append(opts, config.WithRegion(v))
		case "log-level":
			opts = append(opts, config.WithLogLevel(v))
		case "initial-buckets":
			opts = append(opts, config.WithInitialBuckets(v))
		case "metrics":
			opts = append(opts, config.WithMetrics(v == "true"))
		}
	})

	return *configPath, opts, nil
}

func Run(ctx context.Context, args []string) error {

	configPath, opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	cfg, err := config.Load(configPath, opts...)
	if err != nil {
		return err
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           level,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})

	slog.SetDefault(slog.New(handler))

	root, cleanup, err := prepareDataDir(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	svc, err := service.Open(ctx, root, store.Owner{ID: cfg.Owner.ID, DisplayName: cfg.Owner.DisplayName})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer svc.Close()

	if err := svc.EnsureBuckets(ctx, cfg.InitialBuckets...); err != nil {
		return fmt.Errorf("failed to create initial buckets: %w", err)
	}

	coreOpts := []core.ConfigOption{core.WithRegion(cfg.Region)}
	if cfg.Metrics {
		coreOpts = append(coreOpts, core.WithMetrics(metrics.New()))
	}

	server := core.NewServer(svc, core.NewConfig(coreOpts...))
	router := server.Handler()

	httpServer := &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
	}

	httpsServer := &http.Server{
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		Addr:              cfg.TLSAddress,
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	shutdown := func(srv *http.Server) error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}

	eg.Go(func() error { return shutdown(httpsServer) })
	eg.Go(func() error { return shutdown(httpServer) })

	eg.Go(func() error {
		if cfg.TLSCertFile == "" || cfg.TLSKeyFile == "" {
			slog.Debug("Skipping HTTPS service because no certificate was provided")
			return nil
		}

		slog.Info("Starting s3mock HTTPS server", "addr", cfg.TLSAddress)
		err := httpsServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	eg.Go(func() error {
		slog.Info("Starting s3mock HTTP server", "addr", cfg.Address)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	slog.Info("s3mock started", "data_dir", root, "region", cfg.Region, "initial_buckets", cfg.InitialBuckets)
	return eg.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx, os.Args[1:]); err != nil {
		slog.Error("s3mock exited with error", "error", err)
		stop()
		os.Exit(1)
	}
}
