package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cairn/internal/checkpoint"
)

// NewThreadsCmd creates the threads command group.
func NewThreadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "threads",
		Aliases: []string{"thread"},
		Short:   "Inspect and manage checkpointed threads",
	}

	cmd.AddCommand(newThreadsListCmd())
	cmd.AddCommand(newThreadsShowCmd())
	cmd.AddCommand(newThreadsDeleteCmd())
	cmd.AddCommand(newThreadsPruneCmd())

	return cmd
}

func newThreadsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List threads",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}
			ctx := cmd.Context()
			stack, err := cliCtx.Stack(ctx)
			if err != nil {
				return err
			}
			ids, err := stack.Agent.Threads(ctx)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No threads.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "THREAD\tSTEP\tMESSAGES\tPENDING\tUPDATED")
			for _, id := range ids {
				cp, err := stack.Agent.Thread(ctx, id)
				if err != nil {
					return err
				}
				s := checkpoint.Summarize(cp)
				pending := "-"
				if s.HasInterrupt {
					pending = cp.PendingInterrupt.ID
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", s.ThreadID, s.Step, s.Messages, pending,
					cp.UpdatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}

func newThreadsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <thread>",
		Short: "Print a thread checkpoint as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}
			ctx := cmd.Context()
			stack, err := cliCtx.Stack(ctx)
			if err != nil {
				return err
			}
			cp, err := stack.Agent.Thread(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cp)
		},
	}
}

func newThreadsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <thread>...",
		Aliases: []string{"rm"},
		Short:   "Delete threads",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}
			ctx := cmd.Context()
			stack, err := cliCtx.Stack(ctx)
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := stack.Agent.DeleteThread(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			}
			return nil
		},
	}
}

func newThreadsPruneCmd() *cobra.Command {
	var (
		olderThan      time.Duration
		includePending bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete threads not updated recently",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}
			if olderThan <= 0 {
				olderThan = cliCtx.Config.Checkpoint.Retention
			}
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			if !cmd.Flags().Changed("include-pending") {
				includePending = cliCtx.Config.Checkpoint.PrunePending
			}

			ctx := cmd.Context()
			stack, err := cliCtx.Stack(ctx)
			if err != nil {
				return err
			}
			pruner, ok := stack.Pruner()
			if !ok {
				return fmt.Errorf("checkpoint driver %q does not support pruning", cliCtx.Config.Checkpoint.Driver)
			}
			n, err := pruner.Prune(ctx, time.Now().Add(-olderThan), includePending)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d thread(s)\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age cutoff (defaults to checkpoint.retention)")
	cmd.Flags().BoolVar(&includePending, "include-pending", false, "also prune threads waiting on an interrupt")
	return cmd
}
