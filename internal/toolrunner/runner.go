// Package toolrunner executes the external roll-processing tools. It owns the
// mechanics every tool invocation shares: locating the binary, enforcing a
// timeout, streaming stdout into an artifact atomically, capturing stderr for
// diagnosis, and classifying failures.
package toolrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"rollscan/internal/layout"
	"rollscan/internal/logging"
	"rollscan/internal/services"
)

var commandContext = exec.CommandContext

var lookPath = exec.LookPath

// stderr kept for error messages is capped; full output goes to the log file.
const stderrTailLimit = 4 * 1024

// Invocation describes a single external tool run.
type Invocation struct {
	Stage  string
	Druid  string
	Binary string
	Args   []string

	// StdoutPath, when set, receives the tool's stdout as an artifact. The
	// file appears only if the tool exits successfully.
	StdoutPath string
	// StderrPath, when set, receives the tool's stderr as a log file. It is
	// written regardless of the exit status.
	StderrPath string

	Timeout time.Duration
}

// Result reports a completed (or failed) invocation.
type Result struct {
	ExitCode   int
	Duration   time.Duration
	StdoutSize int64
	StderrTail string
}

// Recorder receives a record of every invocation, successful or not.
type Recorder interface {
	RecordInvocation(ctx context.Context, rec Record) error
}

// Record is the journal entry for one tool invocation.
type Record struct {
	Druid     string
	Stage     string
	Binary    string
	Args      []string
	ExitCode  int
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// Runner runs tool invocations.
type Runner struct {
	logger   *slog.Logger
	recorder Recorder
	timeout  time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder attaches an invocation journal.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithTimeout sets the default per-invocation timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// New creates a Runner.
func New(logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		logger:  logging.NewComponentLogger(logger, "toolrunner"),
		timeout: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one invocation. Stdout lands at StdoutPath only on success;
// stderr is written to StderrPath either way. The returned error carries a
// services marker: ErrToolMissing, ErrTimeout, or ErrToolFailure.
func (r *Runner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	if strings.TrimSpace(inv.Binary) == "" {
		return nil, services.Wrap(services.ErrConfiguration, inv.Stage, "run", "tool binary not configured", nil)
	}
	resolved, err := lookPath(inv.Binary)
	if err != nil {
		return nil, services.Wrap(services.ErrToolMissing, inv.Stage, "run",
			fmt.Sprintf("tool %s not found", inv.Binary), err)
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := commandContext(runCtx, resolved, inv.Args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	var stdoutTemp *os.File
	if inv.StdoutPath != "" {
		if err := os.MkdirAll(filepath.Dir(inv.StdoutPath), 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
		stdoutTemp, err = os.CreateTemp(filepath.Dir(inv.StdoutPath), filepath.Base(inv.StdoutPath)+".tmp-*")
		if err != nil {
			return nil, fmt.Errorf("create temp output: %w", err)
		}
		defer func() {
			if stdoutTemp != nil {
				stdoutTemp.Close()
				os.Remove(stdoutTemp.Name())
			}
		}()
		cmd.Stdout = stdoutTemp
	}

	r.logger.InfoContext(ctx, "running tool",
		logging.String(logging.FieldDruid, inv.Druid),
		logging.String(logging.FieldStage, inv.Stage),
		logging.String("binary", inv.Binary),
		logging.String("args", strings.Join(inv.Args, " ")))

	startedAt := time.Now()
	runErr := cmd.Run()
	duration := time.Since(startedAt)

	if inv.StderrPath != "" {
		if err := layout.WriteFileAtomic(inv.StderrPath, stderr.Bytes()); err != nil {
			r.logger.WarnContext(ctx, "unable to write tool log",
				logging.String("path", inv.StderrPath),
				logging.Error(err))
		}
	}

	result := &Result{
		Duration:   duration,
		StderrTail: tail(stderr.String(), stderrTailLimit),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	classified := r.classify(runCtx, inv, runErr, result)

	if classified == nil && stdoutTemp != nil {
		classified = r.promoteStdout(stdoutTemp, inv, result)
		if classified == nil {
			stdoutTemp = nil
		}
	}

	if r.recorder != nil {
		rec := Record{
			Druid:     inv.Druid,
			Stage:     inv.Stage,
			Binary:    inv.Binary,
			Args:      inv.Args,
			ExitCode:  result.ExitCode,
			StartedAt: startedAt,
			Duration:  duration,
			Err:       classified,
		}
		// Canceled and timed-out invocations still get journaled.
		if err := r.recorder.RecordInvocation(context.WithoutCancel(ctx), rec); err != nil {
			r.logger.WarnContext(ctx, "unable to journal invocation", logging.Error(err))
		}
	}

	if classified != nil {
		return result, classified
	}

	r.logger.InfoContext(ctx, "tool finished",
		logging.String(logging.FieldDruid, inv.Druid),
		logging.String(logging.FieldStage, inv.Stage),
		logging.Duration("duration", duration),
		logging.Int64("stdout_bytes", result.StdoutSize))
	return result, nil
}

// promoteStdout finalizes the captured stdout. Exit 0 with an empty artifact
// is a tool failure, not a success; the temp file is left for the deferred
// cleanup and nothing lands at the final path.
func (r *Runner) promoteStdout(stdoutTemp *os.File, inv Invocation, result *Result) error {
	if err := stdoutTemp.Sync(); err != nil {
		return fmt.Errorf("sync output: %w", err)
	}
	if err := stdoutTemp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	info, err := os.Stat(stdoutTemp.Name())
	if err != nil {
		return fmt.Errorf("stat output: %w", err)
	}
	result.StdoutSize = info.Size()
	if info.Size() == 0 {
		return services.Wrap(services.ErrToolFailure, inv.Stage, "run",
			fmt.Sprintf("tool %s exited successfully but produced no output", inv.Binary), nil)
	}
	if err := os.Rename(stdoutTemp.Name(), inv.StdoutPath); err != nil {
		return fmt.Errorf("finalize output: %w", err)
	}
	return nil
}

func (r *Runner) classify(runCtx context.Context, inv Invocation, runErr error, result *Result) error {
	switch {
	case runErr == nil:
		return nil
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, inv.Stage, "run",
			fmt.Sprintf("tool %s timed out", inv.Binary), runErr)
	case errors.Is(runCtx.Err(), context.Canceled):
		return runCtx.Err()
	default:
		message := fmt.Sprintf("tool %s exited with code %d", inv.Binary, result.ExitCode)
		if result.StderrTail != "" {
			message += ": " + result.StderrTail
		}
		return services.Wrap(services.ErrToolFailure, inv.Stage, "run", message, runErr)
	}
}

func tail(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}
