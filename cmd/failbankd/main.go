// Failbankd is a daemon that classifies CI/CD failure logs and suggests
// remediations, backed by a persistent vector knowledge base.
//
// Every submitted log resolves through three tiers: an exact fingerprint
// lookup, a semantic nearest-neighbor match, and finally a fresh language
// model analysis that grows the knowledge base.
//
// Configuration is loaded from ~/.config/failbank/config.yaml and
// FAILBANK_-prefixed environment variables. See internal/config for details.
//
// Usage:
//
//	# Start daemon with defaults
//	failbankd
//
//	# Custom config file
//	failbankd -config /etc/failbank/config.yaml
//
//	# Configure via environment
//	FAILBANK_SERVER__PORT=8080 FAILBANK_PROVIDER__API_KEY=sk-... failbankd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/failbank/internal/config"
	"github.com/fyrsmithlabs/failbank/internal/engine"
	failbankhttp "github.com/fyrsmithlabs/failbank/internal/http"
	"github.com/fyrsmithlabs/failbank/internal/logging"
	"github.com/fyrsmithlabs/failbank/internal/provider"
	"github.com/fyrsmithlabs/failbank/internal/store"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/failbank/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  failbankd           Start the failbank daemon\n")
			fmt.Fprintf(os.Stderr, "  failbankd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("failbankd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until the context is cancelled.
//
// Initialization order: configuration, logger, vector store, language model
// provider, resolution engine, HTTP server. Shutdown reverses it, bounded
// by the configured shutdown timeout.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting failbankd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	st, err := store.New(cfg.VectorStore, logger)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
	}()

	prov, err := provider.NewService(cfg.Provider, logger)
	if err != nil {
		return fmt.Errorf("initializing provider: %w", err)
	}
	if !prov.Configured() {
		logger.Warn("No API key configured; resolution and search will be unavailable")
	}

	eng, err := engine.New(st, prov, cfg.Engine, logger)
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}

	srv, err := failbankhttp.NewServer(eng, logger, &failbankhttp.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	return nil
}
