// Package toolchain invokes the firmware build toolchain inside a checkout.
package toolchain

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
	"git.home.luguber.info/inful/fwbuilder/internal/observability"
)

const (
	// tailLines is how many trailing output lines are kept for error reports.
	tailLines = 20
	// maxLineBytes is the chunk size used for overlong output lines.
	maxLineBytes = 1024 * 1024
	// maxTailLineBytes truncates lines kept in the error tail.
	maxTailLineBytes = 1024
)

// Executor runs the configured toolchain command through a shell.
type Executor struct {
	shell    []string
	command  string
	env      []string
	onLine   func(string)
	waitStop time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(kv ...string) Option {
	return func(e *Executor) { e.env = append(e.env, kv...) }
}

// WithLineHandler receives every output line in addition to the log.
func WithLineHandler(fn func(string)) Option {
	return func(e *Executor) { e.onLine = fn }
}

// NewExecutor creates an executor running command via shell (argv prefix,
// e.g. ["/bin/sh", "-c"]).
func NewExecutor(shell []string, command string, opts ...Option) *Executor {
	if len(shell) == 0 {
		shell = []string{"/bin/sh", "-c"}
	}
	e := &Executor{shell: shell, command: command, waitStop: 5 * time.Second}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Command returns the shell command line the executor runs.
func (e *Executor) Command() string {
	return e.command
}

// Execute runs the command with repoRoot as working directory, streaming
// combined stdout and stderr line by line to the logger. A non-zero exit is
// a fatal toolchain error; cancellation of ctx kills the whole process group.
func (e *Executor) Execute(ctx context.Context, repoRoot string) error {
	argv := append(append([]string{}, e.shell...), e.command)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // the command comes from service configuration
	cmd.Dir = repoRoot
	cmd.WaitDelay = e.waitStop
	if len(e.env) > 0 {
		cmd.Env = append(os.Environ(), e.env...)
	}
	configureProcessGroup(cmd)

	pr, pw, err := os.Pipe()
	if err != nil {
		return errors.ToolchainError("failed to create output pipe").WithCause(err).Build()
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	observability.InfoContext(ctx, "Starting toolchain", slog.String("command", e.command), logfields.Path(repoRoot))
	start := time.Now()
	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return errors.ToolchainError("failed to start toolchain").
			WithCause(err).
			WithContext("command", e.command).
			Build()
	}
	// The child holds its own copy of the write end.
	_ = pw.Close()

	tail := e.stream(ctx, pr)
	_ = pr.Close()
	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		b := errors.TimeoutError("toolchain interrupted").WithCause(ctxErr)
		if stderrors.Is(ctxErr, context.Canceled) {
			b.WithCategory(errors.CategoryCanceled)
		}
		return b.WithContext("command", e.command).
			WithContext("elapsed", elapsed.String()).
			WithContext("output_tail", tail).
			Build()
	}

	if waitErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if stderrors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		observability.ErrorContext(ctx, "Toolchain failed", logfields.ExitCode(code), logfields.DurationMS(float64(elapsed.Milliseconds())))
		return errors.ToolchainError(fmt.Sprintf("toolchain exited with status %d", code)).
			WithCause(waitErr).
			WithContext("command", e.command).
			WithContext("exit_code", code).
			WithContext("output_tail", tail).
			Build()
	}

	observability.InfoContext(ctx, "Toolchain finished", logfields.DurationMS(float64(elapsed.Milliseconds())))
	return nil
}

// stream logs each line from r and returns the last tailLines lines. Lines
// longer than maxLineBytes are logged in chunks. r is always read to EOF so
// the toolchain never writes into a closed pipe.
func (e *Executor) stream(ctx context.Context, r io.Reader) string {
	ring := make([]string, 0, tailLines)
	emit := func(line string) {
		line = strings.TrimRight(line, "\r")
		observability.InfoContext(ctx, line, slog.String("source", "toolchain"))
		if e.onLine != nil {
			e.onLine(line)
		}
		if len(ring) == tailLines {
			ring = ring[1:]
		}
		if len(line) > maxTailLineBytes {
			line = line[:maxTailLineBytes] + "..."
		}
		ring = append(ring, line)
	}

	br := bufio.NewReaderSize(r, 64*1024)
	var pending []byte
	for {
		frag, isPrefix, err := br.ReadLine()
		if err != nil {
			if len(pending) > 0 {
				emit(string(pending))
			}
			if !stderrors.Is(err, io.EOF) {
				observability.WarnContext(ctx, "Toolchain output read failed", logfields.Error(err))
				_, _ = io.Copy(io.Discard, r)
			}
			break
		}
		pending = append(pending, frag...)
		if !isPrefix || len(pending) >= maxLineBytes {
			emit(string(pending))
			pending = pending[:0]
		}
	}
	return strings.Join(ring, "\n")
}
