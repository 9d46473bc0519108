package omnifocus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shaharia-lab/omnifocus-gtd/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a fake Executor that records every command it receives.
type recorder struct {
	calls  []Command
	output string
	err    error
}

func (r *recorder) Run(_ context.Context, cmd Command) (string, error) {
	r.calls = append(r.calls, cmd)
	return r.output, r.err
}

func callTool(t *testing.T, tm *mcp.ToolManager, name, args string) (mcp.CallToolResult, error) {
	t.Helper()
	params := mcp.CallToolParams{Name: name}
	if args != "" {
		params.Arguments = json.RawMessage(args)
	}
	return tm.CallTool(context.Background(), params)
}

func TestCatalog(t *testing.T) {
	tm, err := NewToolManager(&recorder{}, nil)
	require.NoError(t, err)

	result := tm.ListTools(context.Background())
	require.Len(t, result.Tools, 5)

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{"add_task", "list_inbox", "today_tasks", "complete_task", "weekly_review"}, names)

	var addTask struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	require.NoError(t, json.Unmarshal(result.Tools[0].InputSchema, &addTask))
	assert.Equal(t, "object", addTask.Type)
	assert.Equal(t, []string{"name"}, addTask.Required)
	assert.Len(t, addTask.Properties, 5)
	assert.JSONEq(t, `{"type":"boolean","description":"Whether to flag this task as important","default":false}`, string(addTask.Properties["flagged"]))

	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(result.Tools[1].InputSchema))
}

func TestTools_OneExecutorCallPerInvocation(t *testing.T) {
	tests := []struct {
		tool string
		args string
	}{
		{tool: ToolAddTask, args: `{"name":"Buy milk"}`},
		{tool: ToolListInbox},
		{tool: ToolTodayTasks, args: `{}`},
		{tool: ToolCompleteTask, args: `{"task_name":"milk"}`},
		{tool: ToolWeeklyReview, args: `null`},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			rec := &recorder{output: "done"}
			tm, err := NewToolManager(rec, nil)
			require.NoError(t, err)

			result, err := callTool(t, tm, tt.tool, tt.args)
			require.NoError(t, err)

			require.Len(t, rec.calls, 1)
			assert.Equal(t, tt.tool, rec.calls[0].Tool)
			assert.Equal(t, mcp.TextResult("done"), result)
		})
	}
}

func TestTools_OutputIsReturnedVerbatim(t *testing.T) {
	ambiguous := "🔍 Multiple tasks found (3):\n• Call Bob\n• Call Bobby\n• Call Bobcat\n\nPlease be more specific."
	rec := &recorder{output: ambiguous}
	tm, err := NewToolManager(rec, nil)
	require.NoError(t, err)

	result, err := callTool(t, tm, ToolCompleteTask, `{"task_name":"Call Bob"}`)
	require.NoError(t, err)

	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	assert.Equal(t, ambiguous, result.Content[0].Text)
	assert.Len(t, rec.calls, 1)
}

func TestTools_ExecutorFailure(t *testing.T) {
	rec := &recorder{err: &ExecError{ExitCode: 1, Stderr: "OmniFocus is not running", Err: errors.New("exit status 1")}}
	tm, err := NewToolManager(rec, nil)
	require.NoError(t, err)

	_, err = callTool(t, tm, ToolListInbox, "")
	require.Error(t, err)

	assert.True(t, errors.Is(err, mcp.ErrExecutionFailed))
	assert.Equal(t, mcp.ErrorCodeInternal, mcp.AsError(err).Code())
	assert.Equal(t, "Tool execution failed: AppleScript execution failed: exit status 1: OmniFocus is not running", err.Error())

	var execErr *ExecError
	assert.True(t, errors.As(err, &execErr))
	assert.Len(t, rec.calls, 1)
}

func TestTools_UnknownTool(t *testing.T) {
	rec := &recorder{}
	tm, err := NewToolManager(rec, nil)
	require.NoError(t, err)

	_, err = callTool(t, tm, "delete_everything", `{}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, mcp.ErrUnknownTool))
	assert.Equal(t, "Unknown tool: delete_everything", err.Error())
	assert.Empty(t, rec.calls)
}

func TestTools_NonObjectArguments(t *testing.T) {
	rec := &recorder{}
	tm, err := NewToolManager(rec, nil)
	require.NoError(t, err)

	_, err = callTool(t, tm, ToolAddTask, `"Buy milk"`)
	require.Error(t, err)
	assert.Equal(t, mcp.ErrorCodeInvalidParams, mcp.AsError(err).Code())
	assert.Empty(t, rec.calls)
}

func TestTools_MissingRequiredArgumentStillDispatches(t *testing.T) {
	rec := &recorder{output: "❌ Please provide a task name to complete"}
	tm, err := NewToolManager(rec, nil)
	require.NoError(t, err)

	result, err := callTool(t, tm, ToolCompleteTask, `{}`)
	require.NoError(t, err)
	assert.Equal(t, "❌ Please provide a task name to complete", result.Content[0].Text)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, []string{""}, rec.calls[0].Args)
}

func TestArguments(t *testing.T) {
	args, err := ParseArguments(json.RawMessage(`{"s":"x","n":3,"f":1.5,"b":true,"bs":"true","bad":"nope","z":null}`))
	require.NoError(t, err)

	assert.Equal(t, "x", args.String("s"))
	assert.Equal(t, "3", args.String("n"))
	assert.Equal(t, "1.5", args.String("f"))
	assert.Equal(t, "true", args.String("b"))
	assert.Equal(t, "", args.String("z"))
	assert.Equal(t, "", args.String("missing"))

	assert.True(t, args.Bool("b", false))
	assert.True(t, args.Bool("bs", false))
	assert.True(t, args.Bool("n", false))
	assert.False(t, args.Bool("bad", false))
	assert.True(t, args.Bool("missing", true))

	empty, err := ParseArguments(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseArguments(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}
