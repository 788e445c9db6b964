package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeek-r/bookflow-gateway/internal/config"
	"github.com/zeek-r/bookflow-gateway/internal/logger"
	"github.com/zeek-r/bookflow-gateway/internal/storage"
)

const defaultConfigFile = "config.yaml"

// Run starts the gateway with the process arguments and blocks until SIGINT
// or SIGTERM. It returns the process exit code.
func Run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stderr)
}

// run is Run with an explicit stop context and arguments
func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("bookflow-gateway", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", defaultConfigFile, "Path to configuration file")
	verboseFlag := fs.Bool("verbose", false, "Enable verbose logging (overrides config file setting)")
	migrateDown := fs.Bool("migrate-down", false, "Roll back the most recent schema migration and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// The default file is optional; an explicitly named one must exist
	path := *configFile
	explicit := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}

	// Load configuration
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	// If verbose flag is set, override the log level
	if *verboseFlag {
		cfg.Logging.Level = logger.LevelDebug
	}
	logger.Initialize(cfg.Logging)

	if *migrateDown {
		return rollback(cfg)
	}

	application := New(cfg)

	if err := application.Init(ctx); err != nil {
		logger.ErrorWithFields("Startup failed, refusing to accept traffic", err, map[string]interface{}{
			"state":        application.State().String(),
			"config_error": config.IsConfigError(err),
		})
		application.Close(context.Background())
		return 1
	}

	if err := application.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Error("Failed to bind listener", err)
		application.Close(context.Background())
		return 1
	}

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	case err := <-application.Done():
		if err != nil {
			logger.Error("Server error", err)
			exitCode = 1
		}
	}

	if err := application.Close(context.Background()); err != nil {
		return 1
	}
	return exitCode
}

// rollback undoes the latest schema migration
func rollback(cfg *config.Config) int {
	migrator, err := storage.NewMigrator(cfg.Storage.URL)
	if err == nil {
		err = migrator.Down()
	}
	if err != nil {
		logger.Error("Schema rollback failed", err)
		return 1
	}
	logger.Info("Rolled back the latest schema migration")
	return 0
}
