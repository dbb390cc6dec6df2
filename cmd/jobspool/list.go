package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/jobspool/internal/spool"
)

var (
	listState     string
	listNamespace string
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List job ids stored in a spool partition",
	Long: `List the ids stored under one state.

With --ns only that namespace is listed, one id per line. Without it
every namespace holding records in the state is listed as "ns<TAB>id".`,
	Args: cobra.NoArgs,
	RunE: listHandler,
}

func listHandler(cmd *cobra.Command, args []string) error {
	state, err := spool.ParseState(listState)
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

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if listNamespace != "" {
		ids, err := store.List(ctx, state, listNamespace)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return nil
	}

	namespaces, err := store.NamespacesIn(ctx, state)
	if err != nil {
		return err
	}
	for _, ns := range namespaces {
		ids, err := store.List(ctx, state, ns)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintf(out, "%s\t%s\n", ns, id)
		}
	}
	return nil
}

func init() {
	listCmd.Flags().StringVarP(&listState, "state", "s", string(spool.StatePending), "State to list (pending, ongoing, done, recurrence)")
	listCmd.Flags().StringVarP(&listNamespace, "ns", "n", "", "Only list this namespace")
}
