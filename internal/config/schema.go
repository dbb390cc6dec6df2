// Package config provides configuration loading and validation for jobspool.
// It supports TOML configuration files with environment variable expansion,
// default values, and validation.
//
// Configuration structure:
//   - [spool]: Storage backend, spool directory and done retention
//   - [scheduler]: Cycle period, concurrency limit, spawn rate and job timeout
//   - [server]: HTTP listener and metrics endpoint
//   - [logging]: Logging level, format, and output
//
// Environment variables:
// String values can reference environment variables using ${VAR} or
// ${VAR:default} syntax. For example: dir = "${JOBSPOOL_DIR:./spool}"
package config

import (
	"path/filepath"
	"time"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config represents the main application configuration.
type Config struct {
	Spool     SpoolConfig     `toml:"spool"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Server    ServerConfig    `toml:"server"`
	Logging   LoggingConfig   `toml:"logging"`
}

// SpoolConfig представляет конфигурацию хранилища заданий
type SpoolConfig struct {
	Backend            string `toml:"backend"`
	Dir                string `toml:"dir"`
	SQLitePath         string `toml:"sqlite_path"`
	DoneRetentionHours int    `toml:"done_retention_hours"`
	PruneSchedule      string `toml:"prune_schedule"`
}

// DatabasePath returns the SQLite file, defaulting to spool.db inside Dir.
func (c *SpoolConfig) DatabasePath() string {
	if c.SQLitePath != "" {
		return c.SQLitePath
	}
	return filepath.Join(c.Dir, "spool.db")
}

// DoneRetention returns the janitor retention; zero disables the janitor.
func (c *SpoolConfig) DoneRetention() time.Duration {
	return time.Duration(c.DoneRetentionHours) * time.Hour
}

// PIDFile returns the scheduler pid file path inside the spool directory.
func (c *SpoolConfig) PIDFile() string {
	return filepath.Join(c.Dir, "jobspool.pid")
}

// SchedulerConfig представляет конфигурацию планировщика
type SchedulerConfig struct {
	CycleTimeoutMS       int     `toml:"cycle_timeout_ms"`
	MaxConcurrentProcess int     `toml:"max_concurrent_process"`
	SpawnRate            float64 `toml:"spawn_rate"`
	JobTimeoutSeconds    int     `toml:"job_timeout_seconds"`
	Watch                bool    `toml:"watch"`
}

// CycleTimeout returns the pause between scheduler cycles.
func (c *SchedulerConfig) CycleTimeout() time.Duration {
	return time.Duration(c.CycleTimeoutMS) * time.Millisecond
}

// JobTimeout returns the per-job limit; zero means unbounded.
func (c *SchedulerConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Hostname string `toml:"hostname"`
	Port     int    `toml:"port"`
	Metrics  *bool  `toml:"metrics"`
}

// MetricsEnabled reports whether /metrics is served. Unset means enabled.
func (c *ServerConfig) MetricsEnabled() bool {
	return c.Metrics == nil || *c.Metrics
}

// LoggingConfig представляет конфигурацию логирования
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}
