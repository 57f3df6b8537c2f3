package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const maxStderrLength = 4096

// MergeError is returned when the FFmpeg process fails. ExitCode is -1 when
// the process never ran to completion (spawn failure, cancellation) or
// when the failure was detected after FFmpeg exited.
type MergeError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *MergeError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg merge failed (exit code %d): %v", e.ExitCode, e.Err)
	}

	return fmt.Sprintf("ffmpeg merge failed (exit code %d): %v: %s", e.ExitCode, e.Err, e.Stderr)
}

func (e *MergeError) Unwrap() error { return e.Err }

// run executes the binary and waits for it to exit. Stdout is discarded;
// stderr is captured so it can be attached to the returned *MergeError.
func run(ctx context.Context, binary string, args ...string) error {
	if binary == "" {
		return &MergeError{ExitCode: -1, Err: errors.New("no ffmpeg binary configured")}
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	mergeErr := &MergeError{ExitCode: -1, Stderr: trimStderr(stderr.String()), Err: err}
	if ctx.Err() != nil {
		mergeErr.Err = fmt.Errorf("%w: %w", ctx.Err(), err)
		return mergeErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		mergeErr.ExitCode = exitErr.ExitCode()
	}

	return mergeErr
}

// trimStderr keeps only the tail of FFmpeg's output, which is where the
// actual error is reported; the head is typically build configuration.
func trimStderr(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if len(stderr) <= maxStderrLength {
		return stderr
	}

	return "..." + stderr[len(stderr)-maxStderrLength:]
}
