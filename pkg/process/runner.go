package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/censor-ci/censor/pkg/logger"
)

// CommandRunner executes shell commands on behalf of plugins
type CommandRunner interface {
	Run(ctx context.Context, command string, workingDir string, args ...interface{}) (Result, error)
	LastOutput() string
	LastExitCode() int
}

// Result describes a finished command
type Result struct {
	Command  string
	ExitCode int
	Output   string
	Duration time.Duration
	TimedOut bool
}

// Success reports whether the command exited with status zero
func (r Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Runner runs commands through sh -c, each in its own process group
type Runner struct {
	logger  logger.Logger
	shell   string
	timeout time.Duration

	mu           sync.Mutex
	logOutput    bool
	lastOutput   string
	lastExitCode int
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithTimeout bounds every invocation. Zero disables the limit.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithShell overrides the shell used to interpret commands
func WithShell(shell string) RunnerOption {
	return func(r *Runner) {
		r.shell = shell
	}
}

// NewRunner creates a new Runner
func NewRunner(log logger.Logger, opts ...RunnerOption) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	r := &Runner{
		logger:    log,
		shell:     "sh",
		logOutput: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetLogOutput toggles streaming of command output into the logger
func (r *Runner) SetLogOutput(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logOutput = enabled
}

// LogOutput reports whether command output is streamed into the logger
func (r *Runner) LogOutput() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logOutput
}

// LastOutput returns the combined output of the last command
func (r *Runner) LastOutput() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastOutput
}

// LastExitCode returns the exit code of the last command
func (r *Runner) LastExitCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastExitCode
}

// Run formats command with args using %s placeholders and executes it in
// workingDir. Arguments are substituted verbatim; callers quote them with
// Quote. A non-zero exit, a timeout or a cancelled context is reported in
// the Result. Only a failure to spawn the shell returns an error.
func (r *Runner) Run(ctx context.Context, command string, workingDir string, args ...interface{}) (Result, error) {
	if len(args) > 0 {
		command = fmt.Sprintf(command, args...)
	}
	result := Result{Command: command}

	info, err := os.Stat(workingDir)
	if err != nil {
		return result, fmt.Errorf("working directory %s: %w", workingDir, err)
	}
	if !info.IsDir() {
		return result, fmt.Errorf("working directory %s is not a directory", workingDir)
	}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, r.shell, "-c", command)
	cmd.Dir = workingDir
	cmd.Env = os.Environ()
	setProcessGroup(cmd)
	cmd.WaitDelay = 2 * time.Second

	var output bytes.Buffer
	var w io.Writer = &output
	r.mu.Lock()
	streaming := r.logOutput
	r.mu.Unlock()
	var lw *lineWriter
	if streaming {
		lw = &lineWriter{log: r.logger}
		w = io.MultiWriter(&output, lw)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	r.logger.Debug("Executing command", logger.WithField("command", command))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result, fmt.Errorf("failed to start %q: %w", command, err)
	}
	waitErr := cmd.Wait()
	if lw != nil {
		lw.Flush()
	}

	result.Duration = time.Since(start)
	result.Output = output.String()
	result.ExitCode = exitCode(cmd, waitErr)

	if runCtx.Err() != nil {
		result.TimedOut = true
		result.ExitCode = -1
		r.logger.Warn("Command did not finish in time",
			logger.WithField("command", command),
			logger.WithField("duration", result.Duration.Round(time.Millisecond)))
	}

	r.mu.Lock()
	r.lastOutput = result.Output
	r.lastExitCode = result.ExitCode
	r.mu.Unlock()

	return result, nil
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

// Quote shell-quotes a single argument for use in a command template
func Quote(arg string) string {
	if arg == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// QuoteAll shell-quotes each argument and joins them with spaces
func QuoteAll(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}

// lineWriter logs complete lines of command output
type lineWriter struct {
	log logger.Logger
	buf bytes.Buffer
	mu  sync.Mutex
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// incomplete line, keep it for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.log.Info(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// Flush logs any trailing partial line
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	scanner := bufio.NewScanner(&w.buf)
	for scanner.Scan() {
		w.log.Info(scanner.Text())
	}
	w.buf.Reset()
}
