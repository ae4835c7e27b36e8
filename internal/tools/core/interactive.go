package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cairn/internal/tools"
)

// RunBackgroundArgs defines the parameters for the run_background tool.
type RunBackgroundArgs struct {
	Command string `json:"command" jsonschema:"description=Shell command to run in the background,required"`
	Name    string `json:"name,omitempty" jsonschema:"description=Short label for the task"`
}

// AskUserArgs defines the parameters for the ask_user tool.
type AskUserArgs struct {
	Question string   `json:"question" jsonschema:"description=The question to ask,required"`
	Options  []string `json:"options,omitempty" jsonschema:"description=Suggested answers"`
}

// RunBackground starts a shell command as a background task. Its result
// arrives later as a follow-up turn.
func RunBackground() *tools.Tool {
	return &tools.Tool{
		Name:        "run_background",
		Description: "Run a shell command in the background. Its output is reported in a later turn when it finishes.",
		Parameters:  tools.BuildSchema(RunBackgroundArgs{}),
		Source:      Source,
		Execute: func(ctx context.Context, call *tools.Call) (any, error) {
			if call.Tasks == nil {
				return nil, errors.New("background tasks are not available")
			}
			var args RunBackgroundArgs
			if err := call.Bind(&args); err != nil {
				return nil, err
			}
			if args.Command == "" {
				return nil, tools.NewInvalidArgsError(call.Name, "command is required", nil)
			}
			id, err := call.Tasks.StartShell(ctx, args.Name, args.Command)
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Started background task %s", id), nil
		},
	}
}

// AskUser pauses the conversation until the user answers a question.
func AskUser() *tools.Tool {
	return &tools.Tool{
		Name:        "ask_user",
		Description: "Ask the user a question and wait for the answer.",
		Parameters:  tools.BuildSchema(AskUserArgs{}),
		Source:      Source,
		Execute: func(ctx context.Context, call *tools.Call) (any, error) {
			if call.Wait == nil {
				return nil, errors.New("asking the user requires interrupt support")
			}
			var args AskUserArgs
			if err := call.Bind(&args); err != nil {
				return nil, err
			}
			if args.Question == "" {
				return nil, tools.NewInvalidArgsError(call.Name, "question is required", nil)
			}
			resp, err := call.Wait(ctx, args)
			if err != nil {
				return nil, err
			}
			return answerText(resp), nil
		},
	}
}

// answerText accepts a bare JSON string, an object with an answer field,
// or any other JSON value verbatim.
func answerText(resp json.RawMessage) string {
	var s string
	if json.Unmarshal(resp, &s) == nil {
		return s
	}
	var obj struct {
		Answer *string `json:"answer"`
	}
	if json.Unmarshal(resp, &obj) == nil && obj.Answer != nil {
		return *obj.Answer
	}
	return string(resp)
}
