package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"cairn/internal/agent"
)

// NewResumeCmd creates the resume command.
func NewResumeCmd() *cobra.Command {
	var (
		approve   bool
		deny      bool
		reason    string
		jsonOut   bool
		waitTasks bool
	)

	cmd := &cobra.Command{
		Use:   "resume <thread> <interrupt-id> [response-json]",
		Short: "Answer a pending interrupt and continue the thread",
		Example: `  cairn resume docs int_call_1 --approve
  cairn resume docs int_call_1 --deny --reason "not on prod"
  cairn resume docs int_call_2:1 '{"choice":"b"}'`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}

			var response json.RawMessage
			var err error
			switch {
			case approve && deny:
				return fmt.Errorf("--approve and --deny are exclusive")
			case approve || deny:
				if len(args) == 3 {
					return fmt.Errorf("response-json cannot be combined with --approve or --deny")
				}
				response, err = approvalResponse(approve, reason)
			case len(args) == 3:
				response, err = customResponse(args[2])
			default:
				return fmt.Errorf("a response is required: pass response-json, --approve or --deny")
			}
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			stack, err := cliCtx.Stack(ctx)
			if err != nil {
				return err
			}
			res, err := stack.Agent.Resume(ctx, args[0], args[1], response,
				&agent.ResumeOptions{WaitForBackgroundTasks: waitTasks})
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res, jsonOut, false)
		},
	}

	cmd.Flags().BoolVar(&approve, "approve", false, "approve the paused tool call")
	cmd.Flags().BoolVar(&deny, "deny", false, "deny the paused tool call")
	cmd.Flags().StringVar(&reason, "reason", "", "reason reported to the model on --deny")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&waitTasks, "wait-tasks", false, "wait for background tasks before returning")

	return cmd
}
