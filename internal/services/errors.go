package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Exit codes reported by the CLI.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitCode maps a run-level error to the process exit status. Problems the
// caller can fix in their input or configuration exit with ExitUsage.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// TimeoutError tags err with ErrTimeout when attempt hit its deadline while
// parent is still live. Any other error is returned unchanged.
func TimeoutError(parent, attempt context.Context, stage, operation string, limit time.Duration, err error) error {
	if err == nil || parent.Err() != nil || !errors.Is(attempt.Err(), context.DeadlineExceeded) {
		return err
	}
	return Wrap(ErrTimeout, stage, operation, "exceeded "+limit.String(), err)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
