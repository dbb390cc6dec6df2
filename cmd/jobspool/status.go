package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/jobspool/internal/pidfile"
	"github.com/aatumaykin/jobspool/internal/spool"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the scheduler runs and how many jobs each state holds",
	Args:  cobra.NoArgs,
	RunE:  statusHandler,
}

func statusHandler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg, true)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	pidPath := cfg.Spool.PIDFile()
	if pid, err := pidfile.Read(pidPath); err == nil && pidfile.IsRunning(pid) {
		fmt.Fprintf(out, "scheduler: running (pid %d)\n", pid)
	} else {
		fmt.Fprintln(out, "scheduler: stopped")
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tNAMESPACE\tJOBS")
	for _, state := range spool.States {
		namespaces, err := store.NamespacesIn(ctx, state)
		if err != nil {
			return err
		}
		for _, ns := range namespaces {
			ids, err := store.List(ctx, state, ns)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\n", state, ns, len(ids))
		}
	}
	return tw.Flush()
}
