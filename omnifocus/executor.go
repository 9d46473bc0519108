package omnifocus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/shaharia-lab/omnifocus-gtd/observability"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const (
	DefaultBinary         = "osascript"
	DefaultTimeout        = 10 * time.Second
	DefaultMaxOutputBytes = 1024 * 1024
)

var errOutputTooLarge = errors.New("output exceeds limit")

// Executor runs one automation command synchronously and returns its
// trimmed standard output.
type Executor interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, cmd Command) (string, error)

func (f ExecutorFunc) Run(ctx context.Context, cmd Command) (string, error) {
	return f(ctx, cmd)
}

// ExecError is returned when the automation command fails. Stderr carries the
// host's diagnostic text.
type ExecError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	msg := "AppleScript execution failed"
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	}
	return msg
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// ExecutorConfig configures the osascript runner.
type ExecutorConfig struct {
	// Binary is the interpreter, osascript unless overridden.
	Binary string
	// Args are placed before "-e <script>".
	Args []string
	// Env is appended to the inherited environment.
	Env []string
	// Timeout bounds one command. A hung host application is killed when it
	// expires.
	Timeout time.Duration
	// MinInterval is the minimum spacing between two launches; zero disables
	// throttling.
	MinInterval time.Duration
	// MaxOutputBytes caps captured stdout.
	MaxOutputBytes int
}

// OSAScriptExecutor runs commands through osascript. There is no retry:
// commands may already have changed the task database when they fail.
type OSAScriptExecutor struct {
	cfg     ExecutorConfig
	logger  observability.Logger
	limiter *rate.Limiter
}

// NewOSAScriptExecutor creates an executor, filling in defaults.
func NewOSAScriptExecutor(cfg ExecutorConfig, logger observability.Logger) *OSAScriptExecutor {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if logger == nil {
		logger = observability.NewNullLogger()
	}

	e := &OSAScriptExecutor{cfg: cfg, logger: logger}
	if cfg.MinInterval > 0 {
		e.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	return e
}

// Run executes cmd once.
func (e *OSAScriptExecutor) Run(ctx context.Context, cmd Command) (output string, err error) {
	ctx, span := observability.StartSpan(ctx, "OSAScriptExecutor.Run")
	defer func() { observability.EndSpan(span, err) }()

	span.SetAttributes(
		attribute.String("tool", cmd.Tool),
		attribute.Int("num_args", len(cmd.Args)),
	)

	if e.limiter != nil {
		if err = e.limiter.Wait(ctx); err != nil {
			return "", &ExecError{ExitCode: -1, Err: fmt.Errorf("waiting for executor slot: %w", err)}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	argv := make([]string, 0, len(e.cfg.Args)+2+len(cmd.Args))
	argv = append(argv, e.cfg.Args...)
	argv = append(argv, "-e", cmd.Script)
	argv = append(argv, cmd.Args...)

	proc := exec.CommandContext(ctx, e.cfg.Binary, argv...)
	if len(e.cfg.Env) > 0 {
		proc.Env = append(os.Environ(), e.cfg.Env...)
	}

	stdout := &cappedBuffer{max: e.cfg.MaxOutputBytes}
	var stderr bytes.Buffer
	proc.Stdout = stdout
	proc.Stderr = &stderr

	logger := e.logger.WithFields(map[string]interface{}{
		"tool":    cmd.Tool,
		"command": cmd.String(),
	})
	logger.Debug("Executing automation command")

	start := time.Now()
	runErr := proc.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if proc.ProcessState != nil {
		exitCode = proc.ProcessState.ExitCode()
	}
	span.SetAttributes(attribute.Int("exit_code", exitCode))

	if runErr != nil {
		execErr := &ExecError{
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      runErr,
		}
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			execErr.Err = fmt.Errorf("timed out after %s", e.cfg.Timeout)
		case stdout.exceeded:
			execErr.Err = fmt.Errorf("%w (%d bytes)", errOutputTooLarge, e.cfg.MaxOutputBytes)
		}

		logger.WithFields(map[string]interface{}{
			"exit_code": exitCode,
			"elapsed":   elapsed.String(),
		}).WithErr(execErr).Error("Automation command failed")
		return "", execErr
	}

	logger.WithFields(map[string]interface{}{
		"elapsed": elapsed.String(),
	}).Debug("Automation command succeeded")

	return strings.TrimSpace(stdout.String()), nil
}

// cappedBuffer fails writes once max bytes would be exceeded, which makes the
// process copy fail instead of growing memory without bound.
type cappedBuffer struct {
	buf      bytes.Buffer
	max      int
	exceeded bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.max > 0 && b.buf.Len()+len(p) > b.max {
		b.exceeded = true
		return 0, errOutputTooLarge
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
