package main

import (
	"fmt"
	"strings"

	"github.com/aatumaykin/jobspool/internal/config"
	"github.com/aatumaykin/jobspool/internal/logger"
	"github.com/aatumaykin/jobspool/internal/spool"
)

const envFile = "./.env"

// loadConfig reads .env, the config file (defaults when absent) and the
// --log-level override, then validates the result.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvOptional(envFile); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, "  - "+e.Error())
		}
		return nil, fmt.Errorf("configuration validation failed:\n%s", strings.Join(msgs, "\n"))
	}

	return cfg, nil
}

// newLogger builds the configured logger. Client commands keep stdout for
// their own output, so stdout logging is redirected to stderr for them.
func newLogger(cfg *config.Config, client bool) (*logger.Logger, error) {
	output := cfg.Logging.Output
	if client && strings.EqualFold(output, "stdout") {
		output = "stderr"
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

// openStore opens the configured spool backend.
func openStore(cfg *config.Config, log *logger.Logger, opts ...spool.Option) (spool.Store, error) {
	switch cfg.Spool.Backend {
	case config.BackendSQLite:
		return spool.NewSQLiteStore(cfg.Spool.DatabasePath(), cfg.Scheduler.MaxConcurrentProcess, log, opts...)
	default:
		return spool.NewFileStore(cfg.Spool.Dir, cfg.Scheduler.MaxConcurrentProcess, log, opts...)
	}
}
