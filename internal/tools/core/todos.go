package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"cairn/internal/checkpoint"
	"cairn/internal/tools"
)

// TodoArg is one entry of the write_todos argument list.
type TodoArg struct {
	ID      string `json:"id,omitempty" jsonschema:"description=Stable id of the item"`
	Content string `json:"content" jsonschema:"description=What needs to be done,required"`
	Status  string `json:"status" jsonschema:"description=Progress of the item,required,enum=pending|in_progress|completed"`
}

// WriteTodosArgs defines the parameters for the write_todos tool.
type WriteTodosArgs struct {
	Todos []TodoArg `json:"todos" jsonschema:"description=The complete todo list replacing the current one,required"`
}

// WriteTodos replaces the conversation's todo list.
func WriteTodos() *tools.Tool {
	return &tools.Tool{
		Name:        "write_todos",
		Description: "Replace the todo list used to plan and track multi-step work. Send the complete list every time.",
		Parameters:  tools.BuildSchema(WriteTodosArgs{}),
		Source:      Source,
		Execute: func(_ context.Context, call *tools.Call) (any, error) {
			st, err := state(call)
			if err != nil {
				return nil, err
			}
			var args WriteTodosArgs
			if err := call.Bind(&args); err != nil {
				return nil, err
			}

			todos := make([]checkpoint.Todo, 0, len(args.Todos))
			for i, t := range args.Todos {
				if strings.TrimSpace(t.Content) == "" {
					return nil, tools.NewInvalidArgsError(call.Name, fmt.Sprintf("todo %d has no content", i+1), nil)
				}
				status := checkpoint.TodoStatus(t.Status)
				switch status {
				case "":
					status = checkpoint.TodoPending
				case checkpoint.TodoPending, checkpoint.TodoInProgress, checkpoint.TodoCompleted:
				default:
					return nil, tools.NewInvalidArgsError(call.Name, fmt.Sprintf("todo %d has unknown status %q", i+1, t.Status), nil)
				}
				id := t.ID
				if id == "" {
					id = strconv.Itoa(i + 1)
				}
				todos = append(todos, checkpoint.Todo{ID: id, Content: t.Content, Status: status})
			}
			st.Todos = todos
			return formatTodos(todos), nil
		},
	}
}

func formatTodos(todos []checkpoint.Todo) string {
	if len(todos) == 0 {
		return "Todo list cleared."
	}
	var sb strings.Builder
	done := 0
	for _, t := range todos {
		mark := " "
		switch t.Status {
		case checkpoint.TodoCompleted:
			mark = "x"
			done++
		case checkpoint.TodoInProgress:
			mark = "~"
		}
		fmt.Fprintf(&sb, "[%s] %s. %s\n", mark, t.ID, t.Content)
	}
	fmt.Fprintf(&sb, "%d/%d completed", done, len(todos))
	return sb.String()
}
