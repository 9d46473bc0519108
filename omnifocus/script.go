package omnifocus

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is one automation command: an AppleScript program and the values it
// reads from argv. User supplied text only ever travels in Args, so it is
// never parsed as script source or seen by a shell.
type Command struct {
	Tool   string
	Script string
	Args   []string
}

// String renders the command for logs.
func (c Command) String() string {
	quoted := make([]string, len(c.Args))
	for i, a := range c.Args {
		quoted[i] = strconv.Quote(a)
	}
	return fmt.Sprintf("%s(%s)", c.Tool, strings.Join(quoted, ", "))
}

// scriptBuilder assembles an "on run argv" handler. Values passed to arg are
// bound to local variables in the prologue and referenced by name in the body.
type scriptBuilder struct {
	tool     string
	prologue []string
	body     []string
	args     []string
}

func newScript(tool string) *scriptBuilder {
	return &scriptBuilder{tool: tool}
}

// arg binds value to a fresh local and returns the local's name.
func (b *scriptBuilder) arg(value string) string {
	b.args = append(b.args, value)
	name := fmt.Sprintf("arg%d", len(b.args))
	b.prologue = append(b.prologue, fmt.Sprintf("set %s to item %d of argv", name, len(b.args)))
	return name
}

// line appends one body line. Only builder generated names and constants may
// be formatted into it.
func (b *scriptBuilder) line(format string, a ...interface{}) {
	if len(a) == 0 {
		b.body = append(b.body, format)
		return
	}
	b.body = append(b.body, fmt.Sprintf(format, a...))
}

// block appends a multi-line fixed fragment.
func (b *scriptBuilder) block(fragment string) {
	for _, l := range strings.Split(strings.Trim(fragment, "\n"), "\n") {
		b.body = append(b.body, l)
	}
}

func (b *scriptBuilder) build() Command {
	var sb strings.Builder
	sb.WriteString("on run argv\n")
	for _, l := range b.prologue {
		sb.WriteString("\t" + l + "\n")
	}
	for _, l := range b.body {
		sb.WriteString("\t" + l + "\n")
	}
	sb.WriteString("end run")

	args := make([]string, len(b.args))
	copy(args, b.args)
	return Command{Tool: b.tool, Script: sb.String(), Args: args}
}
