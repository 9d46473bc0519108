package omnifocus

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shaharia-lab/omnifocus-gtd/mcp"
	"github.com/shaharia-lab/omnifocus-gtd/observability"
)

const (
	ToolAddTask      = "add_task"
	ToolListInbox    = "list_inbox"
	ToolTodayTasks   = "today_tasks"
	ToolCompleteTask = "complete_task"
	ToolWeeklyReview = "weekly_review"
)

// Tools binds the GTD tool set to an Executor.
type Tools struct {
	executor Executor
	logger   observability.Logger
}

// NewTools creates the tool set. Every tool call results in exactly one
// executor call.
func NewTools(executor Executor, logger observability.Logger) *Tools {
	if logger == nil {
		logger = observability.NewNullLogger()
	}
	return &Tools{executor: executor, logger: logger}
}

// Catalog returns the tool definitions in advertisement order.
func (t *Tools) Catalog() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        ToolAddTask,
			Description: "Add a new task to OmniFocus inbox or specific project",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{
				"name":     {Type: "string", Description: "The task name/title"},
				"note":     {Type: "string", Description: "Optional note or description for the task"},
				"project":  {Type: "string", Description: "Optional project name to add the task to"},
				"due_date": {Type: "string", Description: "Optional due date (e.g., 'tomorrow', 'next week', 'Friday')"},
				"flagged":  {Type: "boolean", Description: "Whether to flag this task as important", Default: false},
			}, "name").MustJSON(),
			Handler: t.handle(addTaskCommand),
		},
		{
			Name:        ToolListInbox,
			Description: "List all tasks currently in the OmniFocus inbox",
			InputSchema: mcp.ObjectSchema(nil).MustJSON(),
			Handler:     t.handle(listInboxCommand),
		},
		{
			Name:        ToolTodayTasks,
			Description: "List all tasks due today",
			InputSchema: mcp.ObjectSchema(nil).MustJSON(),
			Handler:     t.handle(todayTasksCommand),
		},
		{
			Name:        ToolCompleteTask,
			Description: "Mark a task as complete by searching for it by name",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{
				"task_name": {Type: "string", Description: "Name or partial name of the task to complete"},
			}, "task_name").MustJSON(),
			Handler: t.handle(completeTaskCommand),
		},
		{
			Name:        ToolWeeklyReview,
			Description: "Get a comprehensive weekly review summary",
			InputSchema: mcp.ObjectSchema(nil).MustJSON(),
			Handler:     t.handle(weeklyReviewCommand),
		},
	}
}

// NewToolManager registers the GTD catalog with a ToolManager.
func NewToolManager(executor Executor, logger observability.Logger) (*mcp.ToolManager, error) {
	return mcp.NewToolManager(logger, NewTools(executor, logger).Catalog()...)
}

type commandBuilder func(args Arguments) Command

// handle turns a command builder into a tool handler: parse arguments, build
// one command, run it once, wrap the output verbatim.
func (t *Tools) handle(build commandBuilder) mcp.ToolHandler {
	return func(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
		args, err := ParseArguments(params.Arguments)
		if err != nil {
			return mcp.CallToolResult{}, err
		}

		cmd := build(args)
		t.logger.WithFields(map[string]interface{}{
			"tool":    params.Name,
			"command": cmd.String(),
		}).Debug("Dispatching tool")

		output, err := t.executor.Run(ctx, cmd)
		if err != nil {
			return mcp.CallToolResult{}, err
		}

		return mcp.TextResult(output), nil
	}
}

// Arguments holds decoded tool arguments.
type Arguments map[string]interface{}

// ParseArguments decodes a tool's arguments. Empty or null input yields an
// empty set.
func ParseArguments(raw json.RawMessage) (Arguments, error) {
	args := Arguments{}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, mcp.NewError(mcp.KindInvalidParams, "Invalid params: arguments must be an object", err)
	}
	return args, nil
}

// String returns the argument as text. Missing and null values are "".
func (a Arguments) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Bool reads a boolean. Clients that send "true" as a string are accepted.
func (a Arguments) Bool(key string, def bool) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return b
	case float64:
		return v != 0
	default:
		return def
	}
}

// dueHour is the time of day given to due dates set by add_task.
const dueHour = 17

// dueDateOffset maps the supported due date keywords to a day offset.
func dueDateOffset(value string) (int, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case v == "":
		return 0, false
	case strings.Contains(v, "tomorrow"):
		return 1, true
	case strings.Contains(v, "today"):
		return 0, true
	case strings.Contains(v, "week"):
		return 7, true
	}
	return 0, false
}

func addTaskCommand(args Arguments) Command {
	b := newScript(ToolAddTask)

	name := b.arg(args.String("name"))
	props := []string{"name:" + name}
	if note := args.String("note"); note != "" {
		props = append(props, "note:"+b.arg(note))
	}
	if args.Bool("flagged", false) {
		props = append(props, "flagged:true")
	}
	properties := "{" + strings.Join(props, ", ") + "}"

	b.line(`if %s is "" then error "Task name is required"`, name)
	b.line(`tell application "OmniFocus"`)
	b.line(`	tell default document`)
	if project := args.String("project"); project != "" {
		p := b.arg(project)
		b.line(`		set matchingProjects to (every flattened project whose name contains %s)`, p)
		b.line(`		if (count of matchingProjects) > 0 then`)
		b.line(`			set newTask to make new task with properties %s at end of tasks of (item 1 of matchingProjects)`, properties)
		b.line(`		else`)
		b.line(`			set newTask to make new inbox task with properties %s`, properties)
		b.line(`		end if`)
	} else {
		b.line(`		set newTask to make new inbox task with properties %s`, properties)
	}
	if days, ok := dueDateOffset(args.String("due_date")); ok {
		b.line(`		set dueDate to (current date) + %d * days`, days)
		b.line(`		set time of dueDate to %d * hours`, dueHour)
		b.line(`		set due date of newTask to dueDate`)
	}
	b.line(`		return "✅ Added: " & (name of newTask)`)
	b.line(`	end tell`)
	b.line(`end tell`)

	return b.build()
}

func listInboxCommand(Arguments) Command {
	b := newScript(ToolListInbox)
	b.block(`
tell application "OmniFocus"
	tell default document
		set inboxTasks to every inbox task whose completed is false
		if (count of inboxTasks) = 0 then return "📥 Inbox is empty"
		set taskList to "📥 Inbox (" & (count of inboxTasks) & " items):"
		repeat with aTask in inboxTasks
			set taskList to taskList & linefeed & "• " & (name of aTask)
			if flagged of aTask then set taskList to taskList & " 🚩"
		end repeat
		return taskList
	end tell
end tell
`)
	return b.build()
}

func todayTasksCommand(Arguments) Command {
	b := newScript(ToolTodayTasks)
	b.block(`
tell application "OmniFocus"
	tell default document
		set todayStart to current date
		set time of todayStart to 0
		set todayEnd to todayStart + (1 * days)
		set todayTasks to every flattened task whose due date ≥ todayStart and due date < todayEnd and completed is false
		if (count of todayTasks) = 0 then return "📅 No tasks due today"
		set taskList to "📅 Today's Tasks (" & (count of todayTasks) & "):"
		repeat with aTask in todayTasks
			set taskList to taskList & linefeed & "• " & (name of aTask)
			try
				set taskList to taskList & " (" & (name of containing project of aTask) & ")"
			end try
		end repeat
		return taskList
	end tell
end tell
`)
	return b.build()
}

// completeTaskCommand completes the task only when exactly one incomplete
// task matches. Several matches are listed back without changing anything.
func completeTaskCommand(args Arguments) Command {
	b := newScript(ToolCompleteTask)
	term := b.arg(args.String("task_name"))

	b.line(`if %s is "" then return "❌ Please provide a task name to complete"`, term)
	b.line(`tell application "OmniFocus"`)
	b.line(`	tell default document`)
	b.line(`		set foundTasks to every flattened task whose name contains %s and completed is false`, term)
	b.line(`		set matchCount to count of foundTasks`)
	b.line(`		if matchCount = 0 then return "❌ No matching tasks found for: " & %s`, term)
	b.block(`
		if matchCount = 1 then
			set targetTask to item 1 of foundTasks
			set taskName to name of targetTask
			mark complete targetTask
			return "✅ Completed: " & taskName
		end if
		set taskList to "🔍 Multiple tasks found (" & matchCount & "):" & linefeed
		repeat with aTask in foundTasks
			set taskList to taskList & "• " & (name of aTask) & linefeed
		end repeat
		return taskList & linefeed & "Please be more specific."
	end tell
end tell
`)
	return b.build()
}

func weeklyReviewCommand(Arguments) Command {
	b := newScript(ToolWeeklyReview)
	b.block(`
tell application "OmniFocus"
	tell default document
		set weekAgo to (current date) - 7 * days
		set completedCount to count of (every flattened task whose completed is true and completion date > weekAgo)
		set inboxCount to count of (every inbox task whose completed is false)
		set overdueCount to count of (every flattened task whose due date < (current date) and completed is false)
		set flaggedCount to count of (every flattened task whose flagged is true and completed is false)
		set weekFromNow to (current date) + 7 * days
		set dueThisWeekCount to count of (every flattened task whose due date ≤ weekFromNow and completed is false)
		set activeProjectCount to count of (every flattened project whose status is active)
		set projectCount to count of every flattened project
		set reviewText to "📊 Weekly Review" & linefeed & linefeed
		set reviewText to reviewText & "✅ Completed this week: " & completedCount & " tasks" & linefeed
		set reviewText to reviewText & "📥 Inbox: " & inboxCount & " items" & linefeed
		set reviewText to reviewText & "⚠️ Overdue: " & overdueCount & " tasks" & linefeed
		set reviewText to reviewText & "🚩 Flagged: " & flaggedCount & " tasks" & linefeed
		set reviewText to reviewText & "📅 Due this week: " & dueThisWeekCount & " tasks" & linefeed
		set reviewText to reviewText & "📁 Active projects: " & activeProjectCount & " of " & projectCount
		if inboxCount > 0 then set reviewText to reviewText & linefeed & linefeed & "💡 Action: Process " & inboxCount & " inbox items"
		if overdueCount > 0 then set reviewText to reviewText & linefeed & "💡 Action: Review " & overdueCount & " overdue tasks"
		return reviewText
	end tell
end tell
`)
	return b.build()
}
