// Package main is the entry point for the Stoxy CDMI storage proxy.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/stoxy/stoxy/internal/audit"
	"github.com/stoxy/stoxy/internal/auth"
	"github.com/stoxy/stoxy/internal/config"
	"github.com/stoxy/stoxy/internal/handlers"
	"github.com/stoxy/stoxy/internal/hierarchy"
	"github.com/stoxy/stoxy/internal/logging"
	"github.com/stoxy/stoxy/internal/metadata"
	"github.com/stoxy/stoxy/internal/metrics"
	"github.com/stoxy/stoxy/internal/resolver"
	"github.com/stoxy/stoxy/internal/server"
	"github.com/stoxy/stoxy/internal/storage"
)

func main() {
	configPath := flag.String("config", "stoxy.yaml", "path to configuration file")
	port := flag.Int("port", 0, "override listening port (default: from config or 8080)")
	host := flag.String("host", "", "override listening host (default: from config or 0.0.0.0)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default: from config or info)")
	logFormat := flag.String("log-format", "", "log format: text, json (default: from config or text)")
	shutdownTimeout := flag.Int("shutdown-timeout", 0, "graceful shutdown timeout in seconds (default: from config or 30)")
	maxObjectSize := flag.Int64("max-object-size", 0, "maximum PUT body size in bytes (default: from config or 5368709120)")
	defaultRoot := flag.String("default-root", "", "override the default file backend root directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file values.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *shutdownTimeout != 0 {
		cfg.Server.ShutdownTimeout = *shutdownTimeout
	}
	if *maxObjectSize != 0 {
		cfg.Server.MaxObjectSize = *maxObjectSize
	}
	if *defaultRoot != "" {
		cfg.Storage.DefaultRoot = *defaultRoot
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if cfg.Observability.Metrics {
		metrics.Register()
	}

	ctx := context.Background()

	// Crash-only design: every startup is recovery. SQLite WAL recovers on
	// open, the root container is created if missing and leftover temp
	// files under the default root are removed.
	meta, err := metadata.Open(cfg.Metadata.Engine, cfg.Metadata.SQLite.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize metadata store: %v\n", err)
		os.Exit(1)
	}
	defer meta.Close()

	tree := hierarchy.NewTree(meta, hierarchy.WithReservedRootNames(server.ReservedRootName))
	rootOwner := "admin"
	if len(cfg.Auth.Admins) > 0 {
		rootOwner = cfg.Auth.Admins[0]
	}
	if _, err := tree.Bootstrap(ctx, rootOwner); err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap hierarchy: %v\n", err)
		os.Exit(1)
	}

	root, err := filepath.Abs(cfg.Storage.DefaultRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid storage.default_root: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create storage root directory: %v\n", err)
		os.Exit(1)
	}
	if n, err := storage.CleanTempFiles(root); err != nil {
		slog.Warn("Failed to clean temp files", "root", root, "error", err)
	} else if n > 0 {
		slog.Info("Removed orphaned temp files", "root", root, "count", n)
	}

	registry, err := buildRegistry(ctx, cfg, root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize backend stores: %v\n", err)
		os.Exit(1)
	}
	slog.Info("Backend stores registered", "schemes", registry.Schemes(), "default_root", root)

	auditLog := audit.Multi{audit.NewSlogSink(slog.Default())}
	if cfg.Audit.RedisURL != "" {
		sink, err := audit.NewRedisSink(ctx, cfg.Audit.RedisURL, cfg.Audit.Stream)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect audit stream: %v\n", err)
			os.Exit(1)
		}
		defer sink.Close()
		auditLog = append(auditLog, sink)
		slog.Info("Audit stream enabled", "stream", cfg.Audit.Stream)
	}

	policy := auth.NewPolicy(cfg.Auth.Admins, cfg.Auth.AnonymousRead, len(cfg.Auth.Tokens) > 0)
	if policy.Open {
		slog.Warn("No auth tokens configured, every caller has full access")
	}
	h := handlers.New(tree, resolver.New(tree, registry, root), policy, auditLog, handlers.Config{
		ChunkSize:     cfg.Storage.ChunkSize,
		MaxObjectSize: cfg.Server.MaxObjectSize,
	})

	srv, err := server.New(cfg, h,
		server.WithPrincipalResolver(auth.NewResolver(cfg.Auth.Tokens, cfg.Auth.Anonymous)),
		server.WithCheck("metadata", meta.Ping),
		server.WithCheck("storage", func(context.Context) error {
			info, err := os.Stat(root)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", root)
			}
			return nil
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// Start the server in a goroutine so we can handle shutdown signals.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Stoxy listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// SIGTERM/SIGINT handler: stop accepting connections, wait for in-flight
	// requests with a timeout, then exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received signal, shutting down", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Shutdown error", "error", err)
		}
		slog.Info("Server stopped")

	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}
}

// buildRegistry registers every backend store scheme the configuration
// supports. file and null are always present; s3 and gs are registered with
// lazily authenticated clients; azure needs an account URL.
func buildRegistry(ctx context.Context, cfg *config.Config, defaultRoot string) (*storage.Registry, error) {
	chunk := cfg.Storage.ChunkSize
	roots := []string{defaultRoot}
	for _, r := range cfg.Storage.Roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("invalid storage root %q: %w", r, err)
		}
		roots = append(roots, abs)
	}

	profiles := make(storage.RemoteProfiles, len(cfg.Storage.Remotes))
	for name, r := range cfg.Storage.Remotes {
		profiles[name] = storage.RemoteProfile{Bucket: r.Bucket, Prefix: r.Prefix}
	}

	reg := storage.NewRegistry()
	reg.Register("file", storage.NewFileFactory(roots, chunk))
	reg.Register("null", storage.NewDiscardFactory())

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Region:       cfg.Storage.S3.Region,
		Endpoint:     cfg.Storage.S3.Endpoint,
		UsePathStyle: cfg.Storage.S3.PathStyle,
	})
	if err != nil {
		return nil, err
	}
	reg.Register("s3", storage.NewS3Factory(s3Client, profiles, chunk))
	reg.Register("gs", storage.NewGCSFactory(storage.NewGCSClientFunc(cfg.Storage.GCS.Endpoint), profiles, chunk))

	if cfg.Storage.Azure.AccountURL != "" {
		reg.Register("azure", storage.NewAzureFactory(storage.NewAzureClientFunc(cfg.Storage.Azure.AccountURL), profiles, chunk))
	}
	return reg, nil
}
