package main

import (
	"context"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/jobspool/internal/logger"
	"github.com/aatumaykin/jobspool/internal/pidfile"
	"github.com/aatumaykin/jobspool/internal/scheduler"
	"github.com/aatumaykin/jobspool/internal/spool"
)

var runOnce bool

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run scheduler cycles in the foreground and exit",
	Long: `Run a single scheduler cycle and wait for the jobs it started.

With --once=false cycles repeat until the pending partition is empty or
a cycle makes no progress (every namespace is at its ongoing limit).`,
	Args: cobra.NoArgs,
	RunE: runHandler,
}

func runHandler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg, false)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	release, err := pidfile.Acquire(cfg.Spool.PIDFile())
	if err != nil {
		return err
	}
	defer release()

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	sched, err := newScheduler(cfg, store, log, nil)
	if err != nil {
		return err
	}

	cycles, err := drain(ctx, sched, store, runOnce)
	if err != nil {
		return err
	}
	log.Info("run finished", logger.Field{Key: "cycles", Value: cycles})
	return nil
}

// drain runs cycles until once is satisfied, nothing is pending or a cycle
// leaves the pending set unchanged.
func drain(ctx context.Context, sched *scheduler.Scheduler, store spool.Store, once bool) (int, error) {
	var cycles int
	before, err := pendingSnapshot(ctx, store)
	if err != nil {
		return 0, err
	}

	for ctx.Err() == nil {
		sched.RunCycle(ctx)
		sched.Wait()
		cycles++

		if once {
			break
		}

		after, err := pendingSnapshot(ctx, store)
		if err != nil {
			return cycles, err
		}
		if len(after) == 0 || slices.Equal(before, after) {
			break
		}
		before = after
	}
	return cycles, nil
}

// pendingSnapshot returns every pending "ns/id" key in sorted order.
func pendingSnapshot(ctx context.Context, store spool.Store) ([]string, error) {
	namespaces, err := store.NamespacesIn(ctx, spool.StatePending)
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, ns := range namespaces {
		ids, err := store.List(ctx, spool.StatePending, ns)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			keys = append(keys, ns+"/"+id)
		}
	}
	return keys, nil
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", true, "Run a single cycle; false drains the pending partition")
}
