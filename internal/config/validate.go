package config

import (
	"fmt"
	"strings"

	"github.com/aatumaykin/jobspool/internal/logger"
	"github.com/aatumaykin/jobspool/internal/scheduler"
)

// Validate проверяет валидность конфигурации
func (c *Config) Validate() []error {
	var errors []error

	errors = append(errors, c.Spool.validate()...)
	errors = append(errors, c.Scheduler.validate()...)
	errors = append(errors, c.Server.validate()...)
	errors = append(errors, c.Logging.validate()...)

	return errors
}

func (c *SpoolConfig) validate() []error {
	var errors []error

	switch c.Backend {
	case BackendFile, BackendSQLite:
	default:
		errors = append(errors, fmt.Errorf("invalid spool.backend: %s (expected: file, sqlite)", c.Backend))
	}

	if c.Dir == "" {
		errors = append(errors, fmt.Errorf("spool.dir is required"))
	} else if err := validatePath(c.Dir, "spool.dir"); err != nil {
		errors = append(errors, err)
	}

	if c.SQLitePath != "" {
		if err := validatePath(c.SQLitePath, "spool.sqlite_path"); err != nil {
			errors = append(errors, err)
		}
	}

	if c.DoneRetentionHours < 0 {
		errors = append(errors, fmt.Errorf("spool.done_retention_hours must be >= 0 (got %d)", c.DoneRetentionHours))
	}
	if c.DoneRetentionHours > 0 {
		if err := scheduler.ValidateSchedule(c.PruneSchedule); err != nil {
			errors = append(errors, fmt.Errorf("spool.prune_schedule: %w", err))
		}
	}

	return errors
}

func (c *SchedulerConfig) validate() []error {
	var errors []error

	if c.CycleTimeoutMS < 1 {
		errors = append(errors, fmt.Errorf("scheduler.cycle_timeout_ms must be >= 1 (got %d)", c.CycleTimeoutMS))
	}
	if c.MaxConcurrentProcess < 1 {
		errors = append(errors, fmt.Errorf("scheduler.max_concurrent_process must be >= 1 (got %d)", c.MaxConcurrentProcess))
	}
	if c.SpawnRate < 0 {
		errors = append(errors, fmt.Errorf("scheduler.spawn_rate must be >= 0 (got %g)", c.SpawnRate))
	}
	if c.JobTimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("scheduler.job_timeout_seconds must be >= 0 (got %d)", c.JobTimeoutSeconds))
	}

	return errors
}

func (c *ServerConfig) validate() []error {
	if !c.Enabled {
		return nil
	}

	var errors []error
	if c.Hostname == "" {
		errors = append(errors, fmt.Errorf("server.hostname is required when server is enabled"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errors = append(errors, fmt.Errorf("server.port must be between 1 and 65535 (got %d)", c.Port))
	}
	return errors
}

func (c *LoggingConfig) validate() []error {
	var errors []error

	if c.Level == "" {
		errors = append(errors, fmt.Errorf("logging.level is required"))
	} else {
		if !logger.ValidLevel(c.Level) {
			errors = append(errors, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Level))
		}
	}

	if c.Format == "" {
		errors = append(errors, fmt.Errorf("logging.format is required"))
	} else {
		validFormats := map[string]bool{"json": true, "text": true}
		if !validFormats[strings.ToLower(c.Format)] {
			errors = append(errors, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Format))
		}
	}

	if c.Output == "" {
		errors = append(errors, fmt.Errorf("logging.output is required"))
	}

	return errors
}

func validatePath(path, fieldName string) error {
	if path == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}

	if strings.HasPrefix(path, "~") {
		return nil
	}

	if strings.Contains(path, "..") {
		return fmt.Errorf("%s contains potentially dangerous path traversal sequence", fieldName)
	}

	return nil
}
