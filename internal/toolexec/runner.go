package toolexec

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mikey/ocr-spam-filter/internal/core"
	"go.uber.org/zap"
)

// Runner executes external conversion and OCR tools as child processes.
// Each invocation is bounded by a per-step timeout; the caller's context
// is the outer cancellation mechanism, so a fired global timeout kills
// the currently running child through the same path.
type Runner struct {
	logger         *zap.Logger
	defaultTimeout time.Duration
}

// NewRunner creates a new tool runner with the given per-step timeout
func NewRunner(logger *zap.Logger, defaultTimeout time.Duration) *Runner {
	return &Runner{
		logger:         logger,
		defaultTimeout: defaultTimeout,
	}
}

// Run invokes one external tool. The result's Retcode is 0 on success,
// the tool's exit code on failure, RetcodeTimeout when the step deadline
// or the caller's context expired, and RetcodeStartFailure when the
// executable could not be started.
func (r *Runner) Run(ctx context.Context, spec core.ToolSpec) core.ToolResult {
	if spec.Path == "" {
		r.logger.Error("Tool not configured", zap.Strings("args", spec.Args))
		return core.ToolResult{Retcode: core.RetcodeStartFailure}
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(stepCtx, spec.Path, spec.Args...)
	cmd.Stdin = spec.Stdin

	var capture bytes.Buffer
	var closers []*os.File
	defer func() {
		for _, f := range closers {
			f.Close()
		}
	}()

	if spec.StdoutFile != "" {
		f, err := os.Create(spec.StdoutFile)
		if err != nil {
			r.logger.Error("Failed to create stdout file", zap.Error(err), zap.String("path", spec.StdoutFile))
			return core.ToolResult{Retcode: core.RetcodeStartFailure}
		}
		closers = append(closers, f)
		cmd.Stdout = f
	} else if spec.CaptureStdout {
		cmd.Stdout = &capture
	}

	if spec.StderrFile != "" {
		f, err := os.Create(spec.StderrFile)
		if err != nil {
			r.logger.Error("Failed to create stderr file", zap.Error(err), zap.String("path", spec.StderrFile))
			return core.ToolResult{Retcode: core.RetcodeStartFailure}
		}
		closers = append(closers, f)
		cmd.Stderr = f
	} else if spec.CaptureStderr {
		cmd.Stderr = &capture
	}

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	result := core.ToolResult{Lines: splitLines(capture.String())}
	switch {
	case err == nil:
		result.Retcode = 0
	case stepCtx.Err() != nil:
		// Timeout or outer cancellation; the child has been killed
		r.logger.Error("Tool timed out",
			zap.String("tool", spec.Path),
			zap.Duration("elapsed", elapsed),
			zap.Duration("timeout", timeout))
		result.Retcode = core.RetcodeTimeout
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.logger.Warn("Tool exited with error",
				zap.String("tool", spec.Path),
				zap.Int("exit_code", exitErr.ExitCode()),
				zap.Strings("output", result.Lines))
			result.Retcode = exitErr.ExitCode()
		} else {
			r.logger.Error("Tool failed to start", zap.Error(err), zap.String("tool", spec.Path))
			result.Retcode = core.RetcodeStartFailure
		}
	}

	r.logger.Debug("Tool finished",
		zap.String("tool", spec.Path),
		zap.Int("retcode", result.Retcode),
		zap.Duration("elapsed", elapsed))
	return result
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}
