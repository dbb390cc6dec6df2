package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/aatumaykin/jobspool/internal/config"
	"github.com/aatumaykin/jobspool/internal/executor"
	"github.com/aatumaykin/jobspool/internal/logger"
	"github.com/aatumaykin/jobspool/internal/metrics"
	"github.com/aatumaykin/jobspool/internal/pidfile"
	"github.com/aatumaykin/jobspool/internal/scheduler"
	"github.com/aatumaykin/jobspool/internal/server"
	"github.com/aatumaykin/jobspool/internal/spool"
	"github.com/aatumaykin/jobspool/internal/version"
)

const shutdownTimeout = 10 * time.Second

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler until interrupted (main command)",
	Long: `Start the scheduler loop against the configured spool.
Every cycle moves pending jobs to ongoing, runs them and files the
successful ones under done. The HTTP server answers 404 on every path
and exposes Prometheus metrics on /metrics.

SIGINT or SIGTERM stops the loop and waits for running jobs.`,
	Args: cobra.NoArgs,
	RunE: serveHandler,
}

func serveHandler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	release, err := pidfile.Acquire(cfg.Spool.PIDFile())
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			log.Warn("failed to remove pid file", logger.Field{Key: "error", Value: err})
		}
	}()

	log.Info("🚀 Starting jobspool",
		logger.Field{Key: "version", Value: version.String()},
		logger.Field{Key: "config", Value: configPath},
		logger.Field{Key: "backend", Value: cfg.Spool.Backend},
		logger.Field{Key: "spool_dir", Value: cfg.Spool.Dir},
		logger.Field{Key: "max_concurrent_process", Value: cfg.Scheduler.MaxConcurrentProcess})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New("jobspool", reg)

	store, err := openStore(cfg, log, spool.WithObserver(m))
	if err != nil {
		return err
	}
	defer store.Close()

	sched, err := newScheduler(cfg, store, log, m)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	log.Info("✅ Scheduler started",
		logger.Field{Key: "cycle_timeout", Value: cfg.Scheduler.CycleTimeout().String()})

	if cfg.Scheduler.Watch {
		startWatcher(ctx, store, sched, log)
	}

	var srv *server.Server
	if cfg.Server.Enabled {
		srv = server.New(server.Config{
			Hostname: cfg.Server.Hostname,
			Port:     cfg.Server.Port,
			Metrics:  cfg.Server.MetricsEnabled(),
		}, log, reg)
		if err := srv.Start(ctx); err != nil {
			_ = sched.Stop()
			return err
		}
		log.Info("✅ HTTP server listening", logger.Field{Key: "addr", Value: srv.Addr()})
	}

	notifySystemd(log, daemon.SdNotifyReady)

	<-ctx.Done()
	log.Info("🛑 Shutting down")
	notifySystemd(log, daemon.SdNotifyStopping)

	var errs []error
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, srv.Shutdown(shutdownCtx))
		cancel()
	}
	errs = append(errs, sched.Stop())

	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.Info("✅ jobspool stopped")
	return nil
}

// newScheduler wires the executor, janitor and limits from cfg.
func newScheduler(cfg *config.Config, store spool.Store, log *logger.Logger, m *metrics.Metrics) (*scheduler.Scheduler, error) {
	exec := executor.New(store, log,
		executor.WithTimeout(cfg.Scheduler.JobTimeout()),
		executor.WithMetrics(m))

	opts := []scheduler.Option{
		scheduler.WithCycleTimeout(cfg.Scheduler.CycleTimeout()),
		scheduler.WithSpawnRate(cfg.Scheduler.SpawnRate),
		scheduler.WithMetrics(m),
	}

	if retention := cfg.Spool.DoneRetention(); retention > 0 {
		janitor, err := scheduler.NewJanitor(store, retention, cfg.Spool.PruneSchedule, log, m)
		if err != nil {
			return nil, fmt.Errorf("failed to create janitor: %w", err)
		}
		opts = append(opts, scheduler.WithJanitor(janitor))
	}

	return scheduler.New(store, exec, log, opts...), nil
}

// startWatcher nudges sched whenever a record lands in the pending
// partition of a file store.
func startWatcher(ctx context.Context, store spool.Store, sched *scheduler.Scheduler, log *logger.Logger) {
	fs, ok := store.(*spool.FileStore)
	if !ok {
		log.Warn("scheduler.watch needs the file backend, ignoring")
		return
	}

	w, err := spool.NewWatcher(fs.StateDir(spool.StatePending), log, func(string) {
		sched.Nudge()
	})
	if err != nil {
		log.Warn("failed to start spool watcher", logger.Field{Key: "error", Value: err})
		return
	}

	go func() {
		defer w.Close()
		w.Run(ctx)
	}()
	log.Info("👀 Watching pending spool", logger.Field{Key: "dir", Value: fs.StateDir(spool.StatePending)})
}

// notifySystemd reports state to systemd when running under a Type=notify unit.
func notifySystemd(log *logger.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("systemd notify failed", logger.Field{Key: "state", Value: state}, logger.Field{Key: "error", Value: err})
		return
	}
	if sent {
		log.Debug("systemd notified", logger.Field{Key: "state", Value: state})
	}
}
