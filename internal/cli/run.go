package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cairn/internal/agent"
	"cairn/internal/checkpoint"
)

type runOptions struct {
	threadID  string
	forkFrom  string
	model     string
	system    string
	maxSteps  int
	schema    string
	jsonOut   bool
	stream    bool
	noInput   bool
	waitTasks bool
}

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [prompt...]",
		Short: "Run the agent on a prompt",
		Long: `Run the agent on a prompt in a new or existing thread.

When a tool call pauses for approval or input and stdin is a terminal,
run asks for the answer and resumes the thread. Otherwise it prints the
interrupt id so the thread can be continued with "cairn resume".`,
		Example: `  cairn run "summarize README.md"
  cairn run -t docs "now list the open todos"
  echo "hello" | cairn run --no-input`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.threadID, "thread", "t", "", "thread id (new thread when empty)")
	cmd.Flags().StringVar(&opts.forkFrom, "fork", "", "fork an existing thread first")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "model override, e.g. ollama:llama3")
	cmd.Flags().StringVar(&opts.system, "system", "", "system prompt override")
	cmd.Flags().IntVar(&opts.maxSteps, "max-steps", 0, "step ceiling override")
	cmd.Flags().StringVar(&opts.schema, "schema", "", "JSON schema file for structured output")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "print text as it is generated")
	cmd.Flags().BoolVar(&opts.noInput, "no-input", false, "never prompt, print interrupts instead")
	cmd.Flags().BoolVar(&opts.waitTasks, "wait-tasks", false, "wait for background tasks before returning")

	return cmd
}

func runRun(cmd *cobra.Command, args []string, opts runOptions) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}

	prompt := strings.Join(args, " ")
	interactive := !opts.noInput && term.IsTerminal(int(os.Stdin.Fd()))
	if prompt == "" && !interactive {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read prompt: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}

	req := agent.Request{
		ThreadID:               opts.threadID,
		ForkFrom:               opts.forkFrom,
		Prompt:                 prompt,
		Model:                  opts.model,
		System:                 opts.system,
		MaxSteps:               opts.maxSteps,
		WaitForBackgroundTasks: opts.waitTasks,
	}
	if opts.schema != "" {
		schema, err := readSchema(opts.schema)
		if err != nil {
			return err
		}
		req.OutputSchema = schema
	}

	ctx := cmd.Context()
	stack, err := cliCtx.Stack(ctx)
	if err != nil {
		return err
	}

	var res *agent.Result
	if opts.stream && !opts.jsonOut {
		res, err = streamRun(ctx, stack.Agent, req, cmd.OutOrStdout())
	} else {
		res, err = stack.Agent.Generate(ctx, req)
	}
	if err != nil {
		return err
	}

	if interactive && !opts.jsonOut {
		in := bufio.NewReader(cmd.InOrStdin())
		for res.Interrupted() {
			response, err := askInterrupt(cmd.OutOrStdout(), in, res.Interrupt)
			if err != nil {
				return err
			}
			res, err = stack.Agent.Resume(ctx, res.ThreadID, res.Interrupt.ID, response,
				&agent.ResumeOptions{WaitForBackgroundTasks: opts.waitTasks})
			if err != nil {
				return err
			}
		}
	}

	return printResult(cmd.OutOrStdout(), res, opts.jsonOut, opts.stream)
}

func readSchema(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}
	return schema, nil
}

// streamRun prints text deltas as they arrive and returns the final result.
func streamRun(ctx context.Context, a *agent.Agent, req agent.Request, w io.Writer) (*agent.Result, error) {
	events, err := a.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	var res *agent.Result
	var streamErr error
	for ev := range events {
		switch ev.Type {
		case agent.EventTextDelta:
			fmt.Fprint(w, ev.Delta)
		case agent.EventToolCall:
			if ev.ToolCall != nil {
				fmt.Fprintf(w, "\n[tool] %s\n", ev.ToolCall.Name)
			}
		case agent.EventDone:
			res = ev.Result
		case agent.EventError:
			streamErr = fmt.Errorf("generation failed: %s", ev.Error)
		}
	}
	fmt.Fprintln(w)
	if streamErr != nil {
		return nil, streamErr
	}
	if res == nil {
		return nil, fmt.Errorf("stream ended without a result")
	}
	return res, nil
}

// askInterrupt prompts for the answer to in.
func askInterrupt(w io.Writer, in *bufio.Reader, intr *checkpoint.Interrupt) (json.RawMessage, error) {
	switch intr.Type {
	case checkpoint.InterruptApproval:
		fmt.Fprintf(w, "\nTool %s wants to run with %s\n", intr.ToolName, intr.Args)
		fmt.Fprint(w, "Approve? [y/N] ")
		line, err := readLine(in)
		if err != nil {
			return nil, err
		}
		answer := strings.ToLower(line)
		if answer == "y" || answer == "yes" {
			return approvalResponse(true, "")
		}
		fmt.Fprint(w, "Reason (optional): ")
		reason, err := readLine(in)
		if err != nil {
			return nil, err
		}
		return approvalResponse(false, reason)
	default:
		fmt.Fprintf(w, "\n%s is waiting for input", intr.ToolName)
		if len(intr.Request) > 0 {
			fmt.Fprintf(w, ": %s", intr.Request)
		}
		fmt.Fprint(w, "\n> ")
		line, err := readLine(in)
		if err != nil {
			return nil, err
		}
		return customResponse(line)
	}
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// approvalResponse encodes an approval decision.
func approvalResponse(approved bool, reason string) (json.RawMessage, error) {
	body := map[string]any{"approved": approved}
	if !approved && reason != "" {
		body["reason"] = reason
	}
	return json.Marshal(body)
}

// customResponse passes valid JSON through and encodes anything else as a
// JSON string.
func customResponse(s string) (json.RawMessage, error) {
	if s != "" && json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}
	return json.Marshal(s)
}

func printResult(w io.Writer, res *agent.Result, jsonOut, streamed bool) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if !streamed && res.Text != "" {
		fmt.Fprintln(w, res.Text)
	}
	if len(res.Output) > 0 {
		fmt.Fprintf(w, "Output: %s\n", res.Output)
	}
	if res.Interrupted() {
		intr := res.Interrupt
		fmt.Fprintf(w, "Thread %s paused (%s): %s interrupt %s on %s\n",
			res.ThreadID, res.Status, intr.Type, intr.ID, intr.ToolName)
		if len(intr.Request) > 0 {
			fmt.Fprintf(w, "Request: %s\n", intr.Request)
		}
		fmt.Fprintf(w, "Resume with: cairn resume %s %s\n", res.ThreadID, intr.ID)
		return nil
	}
	if res.ThreadID != "" {
		fmt.Fprintf(w, "Thread: %s\n", res.ThreadID)
	}
	return nil
}
