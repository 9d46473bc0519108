package omnifocus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptBuilder(t *testing.T) {
	b := newScript("demo")
	first := b.arg("one")
	second := b.arg("two")
	b.line(`return %s & %s`, first, second)
	b.block(`
log "a"
log "b"
`)

	cmd := b.build()

	assert.Equal(t, "arg1", first)
	assert.Equal(t, "arg2", second)
	assert.Equal(t, []string{"one", "two"}, cmd.Args)
	assert.Equal(t, "on run argv\n"+
		"\tset arg1 to item 1 of argv\n"+
		"\tset arg2 to item 2 of argv\n"+
		"\treturn arg1 & arg2\n"+
		"\tlog \"a\"\n"+
		"\tlog \"b\"\n"+
		"end run", cmd.Script)
}

func TestCommandString(t *testing.T) {
	cmd := Command{Tool: ToolAddTask, Args: []string{"Buy milk", `say "hi"`}}
	assert.Equal(t, `add_task("Buy milk", "say \"hi\"")`, cmd.String())
}

func TestAddTaskCommand(t *testing.T) {
	tests := []struct {
		name        string
		args        Arguments
		wantArgs    []string
		contains    []string
		notContains []string
	}{
		{
			name:     "name only",
			args:     Arguments{"name": "Buy milk"},
			wantArgs: []string{"Buy milk"},
			contains: []string{
				`if arg1 is "" then error "Task name is required"`,
				`make new inbox task with properties {name:arg1}`,
			},
			notContains: []string{"note:", "flagged:", "due date", "flattened project"},
		},
		{
			name:     "note and flag",
			args:     Arguments{"name": "Call mom", "note": "Sunday", "flagged": true},
			wantArgs: []string{"Call mom", "Sunday"},
			contains: []string{`{name:arg1, note:arg2, flagged:true}`},
		},
		{
			name:        "flag as string false",
			args:        Arguments{"name": "Call mom", "flagged": "false"},
			wantArgs:    []string{"Call mom"},
			notContains: []string{"flagged:true"},
		},
		{
			name:     "project falls back to inbox",
			args:     Arguments{"name": "Draft", "project": "Writing"},
			wantArgs: []string{"Draft", "Writing"},
			contains: []string{
				`every flattened project whose name contains arg2`,
				`at end of tasks of (item 1 of matchingProjects)`,
				`make new inbox task with properties {name:arg1}`,
			},
		},
		{
			name:     "due tomorrow",
			args:     Arguments{"name": "Pay rent", "due_date": "Tomorrow"},
			wantArgs: []string{"Pay rent"},
			contains: []string{
				`set dueDate to (current date) + 1 * days`,
				`set time of dueDate to 17 * hours`,
				`set due date of newTask to dueDate`,
			},
		},
		{
			name:     "due today is anchored to the afternoon",
			args:     Arguments{"name": "Pay rent", "due_date": "today"},
			wantArgs: []string{"Pay rent"},
			contains: []string{
				`set dueDate to (current date) + 0 * days`,
				`set time of dueDate to 17 * hours`,
				`set due date of newTask to dueDate`,
			},
			notContains: []string{`set due date of newTask to (current date)`},
		},
		{
			name:     "due next week",
			args:     Arguments{"name": "Pay rent", "due_date": "next week"},
			wantArgs: []string{"Pay rent"},
			contains: []string{`+ 7 * days`},
		},
		{
			name:        "unrecognised due date is ignored",
			args:        Arguments{"name": "Pay rent", "due_date": "Friday"},
			wantArgs:    []string{"Pay rent"},
			notContains: []string{"due date"},
		},
		{
			name:     "missing name is passed as empty",
			args:     Arguments{},
			wantArgs: []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := addTaskCommand(tt.args)

			assert.Equal(t, ToolAddTask, cmd.Tool)
			assert.Equal(t, tt.wantArgs, cmd.Args)
			for _, s := range tt.contains {
				assert.Contains(t, cmd.Script, s)
			}
			for _, s := range tt.notContains {
				assert.NotContains(t, cmd.Script, s)
			}
		})
	}
}

func TestCommands_UserTextNeverInScript(t *testing.T) {
	hostile := `x" & (do shell script "rm -rf ~") & "`

	commands := []Command{
		addTaskCommand(Arguments{"name": hostile, "note": hostile, "project": hostile, "due_date": hostile}),
		completeTaskCommand(Arguments{"task_name": hostile}),
	}

	for _, cmd := range commands {
		t.Run(cmd.Tool, func(t *testing.T) {
			assert.NotContains(t, cmd.Script, "do shell script")
			assert.NotContains(t, cmd.Script, "rm -rf")
			require.NotEmpty(t, cmd.Args)
			assert.Contains(t, cmd.Args, hostile)
		})
	}
}

func TestCompleteTaskCommand(t *testing.T) {
	cmd := completeTaskCommand(Arguments{"task_name": "Call Bob"})

	assert.Equal(t, []string{"Call Bob"}, cmd.Args)
	assert.Contains(t, cmd.Script, `every flattened task whose name contains arg1 and completed is false`)
	assert.Contains(t, cmd.Script, `"🔍 Multiple tasks found (" & matchCount & "):"`)
	assert.Contains(t, cmd.Script, `"Please be more specific."`)

	// completion only happens on the single-match branch
	assert.Equal(t, 1, strings.Count(cmd.Script, "mark complete"))
	single := strings.Index(cmd.Script, "if matchCount = 1 then")
	mark := strings.Index(cmd.Script, "mark complete")
	multiple := strings.Index(cmd.Script, "Multiple tasks found")
	assert.True(t, single < mark && mark < multiple)
}

func TestStaticCommands(t *testing.T) {
	tests := []struct {
		cmd      Command
		contains []string
	}{
		{
			cmd:      listInboxCommand(nil),
			contains: []string{`"📥 Inbox is empty"`, `" 🚩"`, "every inbox task whose completed is false"},
		},
		{
			cmd:      todayTasksCommand(nil),
			contains: []string{`"📅 No tasks due today"`, "due date ≥ todayStart and due date < todayEnd", "containing project"},
		},
		{
			cmd: weeklyReviewCommand(nil),
			contains: []string{
				"completion date > weekAgo",
				`"📥 Inbox: "`,
				`"⚠️ Overdue: "`,
				`"🚩 Flagged: "`,
				`"✅ Completed this week: "`,
				"every flattened task whose due date ≤ weekFromNow and completed is false",
				`"📅 Due this week: " & dueThisWeekCount & " tasks"`,
				"every flattened project whose status is active",
				`"📁 Active projects: " & activeProjectCount & " of " & projectCount`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.cmd.Tool, func(t *testing.T) {
			assert.Empty(t, tt.cmd.Args)
			assert.True(t, strings.HasPrefix(tt.cmd.Script, "on run argv\n"))
			assert.True(t, strings.HasSuffix(tt.cmd.Script, "end run"))
			for _, s := range tt.contains {
				assert.Contains(t, tt.cmd.Script, s)
			}
		})
	}
}

func TestDueDateOffset(t *testing.T) {
	tests := []struct {
		in     string
		days   int
		wantOK bool
	}{
		{"", 0, false},
		{"today", 0, true},
		{"TOMORROW", 1, true},
		{"next week", 7, true},
		{"Friday", 0, false},
	}
	for _, tt := range tests {
		days, ok := dueDateOffset(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.days, days, tt.in)
	}
}
