package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/jobspool/internal/job"
	"github.com/aatumaykin/jobspool/internal/scheduler"
)

var (
	submitFile       string
	submitNamespace  string
	submitRecurrence string
	submitID         string
)

// submitCmd represents the submit command
var submitCmd = &cobra.Command{
	Use:   "submit [flags] [--] <cmd> [args...]",
	Short: "Add a job to the pending spool",
	Long: `Add a job to the pending spool and print its id.

The job is either given on the command line or read from a JSON or YAML
record file with --file. Flags override the fields of the file. A job
with a recurrence other than "once" is also copied to the recurrence
partition.`,
	Example: `  jobspool submit -- tar czf /backup/etc.tgz /etc
  jobspool submit --ns reports --recurrence daily ./report.sh
  jobspool submit --file job.yaml`,
	RunE: submitHandler,
}

func submitHandler(cmd *cobra.Command, args []string) error {
	rec, err := buildRecord(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg, true)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := scheduler.New(store, nil, log).Schedule(cmd.Context(), rec); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), rec.ID)
	return nil
}

// buildRecord assembles the record from --file and the positional arguments.
func buildRecord(args []string) (*job.Record, error) {
	rec := &job.Record{}
	if submitFile != "" {
		loaded, err := job.DecodeFile(submitFile)
		if err != nil {
			return nil, err
		}
		rec = loaded
	}

	if len(args) > 0 {
		rec.Cmd = args[0]
		rec.Args = append([]string{}, args[1:]...)
	}
	if rec.Cmd == "" {
		return nil, errors.New("a command is required: pass it as arguments or with --file")
	}

	if submitID != "" {
		rec.ID = submitID
	}
	if submitNamespace != "" {
		rec.Namespace = submitNamespace
	}
	if submitRecurrence != "" {
		rec.Recurrence = submitRecurrence
	}
	return rec, nil
}

func init() {
	submitCmd.Flags().StringVarP(&submitFile, "file", "f", "", "Read the job record from a JSON or YAML file")
	submitCmd.Flags().StringVarP(&submitNamespace, "ns", "n", "", "Namespace of the job (default \"default\")")
	submitCmd.Flags().StringVarP(&submitRecurrence, "recurrence", "r", "", "Recurrence tag; anything but \"once\" keeps a copy under recurrence")
	submitCmd.Flags().StringVar(&submitID, "id", "", "Explicit job id (generated when empty)")
	submitCmd.Flags().SetInterspersed(false)
}
