package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"webbot/internal/logging"
	"webbot/internal/tools"
)

const (
	// DefaultTimeout bounds a single command.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxOutput caps each captured stream.
	DefaultMaxOutput = 50000

	truncatedMarker = "\n...[truncated]"
)

// Options configures the shell tool.
type Options struct {
	Timeout   time.Duration
	MaxOutput int
	// Dir is the working directory. Empty uses the process directory.
	Dir string
	// Shell overrides the interpreter, mainly for tests.
	Shell string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxOutput <= 0 {
		o.MaxOutput = DefaultMaxOutput
	}
	if o.Shell == "" {
		o.Shell = "sh"
	}
	return o
}

// ExecTool returns the shell_exec tool.
func ExecTool(opts Options) *tools.Tool {
	opts = opts.withDefaults()
	return &tools.Tool{
		Name:        "shell_exec",
		Description: "Run a shell command. Returns stdout, stderr and exit code; commands are killed after " + opts.Timeout.String() + ".",
		Category:    tools.CategorySystem,
		Execute: func(ctx context.Context, env tools.Env, args map[string]any) (tools.Result, error) {
			command, err := tools.NonEmptyString(args, "command")
			if err != nil {
				return nil, err
			}
			return run(ctx, opts, command), nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"command"},
			Properties: map[string]tools.Property{
				"command": {
					Type:        "string",
					Description: "The command to execute",
				},
			},
		},
	}
}

// run executes command and always returns a result. A failure to start the
// interpreter is reported through exit_code -1 and stderr.
func run(ctx context.Context, opts Options, command string) tools.Result {
	execCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, opts.Shell, "-c", command)
	cmd.Dir = opts.Dir
	// Background children can hold the pipes open after sh is killed.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.ToolsDebug("shell_exec: cmd=%q timeout=%v", command, opts.Timeout)
	start := time.Now()
	err := cmd.Run()

	timedOut := errors.Is(execCtx.Err(), context.DeadlineExceeded)
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			exitCode = exitErr.ExitCode()
		case timedOut || errors.Is(err, exec.ErrWaitDelay):
			exitCode = -1
		default:
			exitCode = -1
			if stderr.Len() == 0 {
				stderr.WriteString(err.Error())
			}
		}
	}

	if timedOut {
		logging.Get(logging.CategoryTools).Warn("shell_exec timed out after %v: %q", opts.Timeout, command)
	} else {
		logging.Tools("shell_exec completed in %v (exit=%d, %d bytes output)", time.Since(start), exitCode, stdout.Len()+stderr.Len())
	}

	return tools.Result{
		"stdout":    truncate(stdout.String(), opts.MaxOutput),
		"stderr":    truncate(stderr.String(), opts.MaxOutput),
		"exit_code": exitCode,
		"timed_out": timedOut,
	}
}

func truncate(s string, max int) string {
	if cut, ok := tools.Truncate(s, max); ok {
		return cut + truncatedMarker
	}
	return s
}
