package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "echo " + name,
		Execute: func(_ context.Context, call *Call) (any, error) {
			return call.Args, nil
		},
	}
}

func TestSetOrderAndDuplicates(t *testing.T) {
	s, err := NewSet(echoTool("b"), echoTool("a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, s.Names())

	err = s.Add(echoTool("a"))
	assert.ErrorIs(t, err, ErrToolAlreadyExists)

	assert.ErrorIs(t, s.Add(&Tool{}), ErrInvalidArgs)

	replacement := echoTool("b")
	replacement.Description = "new"
	assert.True(t, s.Put(replacement))
	got, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, "new", got.Description)
	assert.Equal(t, []string{"b", "a"}, s.Names())
}

func TestSetMapAndFilter(t *testing.T) {
	s, err := NewSet(echoTool("read"), echoTool("write"), &Tool{Name: "client_side"})
	require.NoError(t, err)

	executable := s.Filter(func(t *Tool) bool { return t.Executable() })
	assert.Equal(t, []string{"read", "write"}, executable.Names())

	var calls []string
	wrapped := s.Map(func(t *Tool) *Tool {
		if !t.Executable() {
			return t
		}
		inner := t.Execute
		return t.WithExecute(func(ctx context.Context, call *Call) (any, error) {
			calls = append(calls, call.Name)
			return inner(ctx, call)
		})
	})

	tool, _ := wrapped.Get("write")
	_, err = tool.Execute(context.Background(), &Call{Name: "write"})
	require.NoError(t, err)
	assert.Equal(t, []string{"write"}, calls)

	// The source set is untouched.
	orig, _ := s.Get("write")
	_, _ = orig.Execute(context.Background(), &Call{Name: "write"})
	assert.Len(t, calls, 1)

	passthrough, _ := wrapped.Get("client_side")
	assert.Nil(t, passthrough.Execute)
}

func TestDefinitions(t *testing.T) {
	type args struct {
		Path string `json:"path" jsonschema:"description=File path,required"`
		Mode string `json:"mode,omitempty" jsonschema:"enum=r|w"`
	}
	tool := echoTool("read_file")
	tool.Parameters = BuildSchema(args{})
	s, err := NewSet(tool, echoTool("bare"))
	require.NoError(t, err)

	defs, err := s.Definitions()
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.JSONEq(t, `{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "File path"},
			"mode": {"type": "string", "enum": ["r", "w"]}
		},
		"required": ["path"]
	}`, string(defs[0].Parameters))
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(defs[1].Parameters))
}

func TestParseArgsAndBind(t *testing.T) {
	args, err := ParseArgs(`{"path":"/a.txt","lines":3}`)
	require.NoError(t, err)

	var dst struct {
		Path  string `json:"path"`
		Lines int    `json:"lines"`
	}
	call := &Call{Name: "read_file", Args: args}
	require.NoError(t, call.Bind(&dst))
	assert.Equal(t, "/a.txt", dst.Path)
	assert.Equal(t, 3, dst.Lines)

	empty, err := ParseArgs("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseArgs("{not json")
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestFormatOutput(t *testing.T) {
	assert.Equal(t, "", FormatOutput(nil))
	assert.Equal(t, "plain", FormatOutput("plain"))
	assert.Equal(t, `{"ok":true}`, FormatOutput(json.RawMessage(`{"ok":true}`)))
	assert.Equal(t, `{"n":1}`, FormatOutput(map[string]int{"n": 1}))
}

func TestErrorMatching(t *testing.T) {
	var execErr error = &ExecutionError{Tool: "shell", Reason: "denied in plan mode"}
	assert.True(t, errors.Is(execErr, ErrExecution))
	assert.Contains(t, execErr.Error(), "plan mode")

	var denied error = &PermissionDeniedError{Tool: "shell", Reason: "blocked"}
	assert.True(t, errors.Is(denied, ErrPermissionDenied))
	assert.False(t, errors.Is(denied, ErrExecution))

	assert.ErrorIs(t, NewToolNotFoundError("x"), ErrToolNotFound)
}
