package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"flapevo/internal/config"
	"flapevo/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "inspect":
		return runInspect(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "config":
		return runConfig(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: flapevoctl <run|reset|inspect|runs|config> [flags]", msg)
}

// storeFlags are shared by every command that opens the persistence backend.
type storeFlags struct {
	configPath *string
	backend    *string
	dataDir    *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		configPath: fs.String("config", "", "YAML config file overlaid on the defaults"),
		backend:    fs.String("backend", "", "persistence backend: file|sqlite|memory"),
		dataDir:    fs.String("data-dir", "", "directory (file backend) or database path (sqlite backend)"),
	}
}

// loadConfig reads the config file and applies the store flags that were set
// explicitly on fs.
func loadConfig(fs *flag.FlagSet, sf storeFlags) (*config.Config, error) {
	cfg, err := config.Load(*sf.configPath)
	if err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Persistence.Backend = *sf.backend
		case "data-dir":
			cfg.Persistence.DataDir = *sf.dataDir
			cfg.Persistence.SQLitePath = ""
		}
	})
	return cfg, nil
}

func openBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	backend, err := storage.NewBackend(cfg.Persistence.Backend, cfg.StoragePath())
	if err != nil {
		return nil, err
	}
	if err := backend.Init(ctx); err != nil {
		return nil, fmt.Errorf("init %s backend: %w", cfg.Persistence.Backend, err)
	}
	return backend, nil
}

func isQuit(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
