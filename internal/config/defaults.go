package config

// Default values.
const (
	DefaultSpoolDir             = "./spool"
	DefaultPruneSchedule        = "@hourly"
	DefaultCycleTimeoutMS       = 1000
	DefaultMaxConcurrentProcess = 20
	DefaultHostname             = "0.0.0.0"
	DefaultPort                 = 3000
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults применяет значения по умолчанию
func applyDefaults(c *Config) {
	if c.Spool.Backend == "" {
		c.Spool.Backend = BackendFile
	}
	if c.Spool.Dir == "" {
		c.Spool.Dir = DefaultSpoolDir
	}
	if c.Spool.PruneSchedule == "" {
		c.Spool.PruneSchedule = DefaultPruneSchedule
	}

	if c.Scheduler.CycleTimeoutMS == 0 {
		c.Scheduler.CycleTimeoutMS = DefaultCycleTimeoutMS
	}
	if c.Scheduler.MaxConcurrentProcess == 0 {
		c.Scheduler.MaxConcurrentProcess = DefaultMaxConcurrentProcess
	}

	if c.Server.Hostname == "" {
		c.Server.Hostname = DefaultHostname
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}
