package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Stage names used in errors, logs and metrics
const (
	StageAcquire  = "acquire"
	StageExtract  = "extract"
	StageRegister = "register"
)

// Stage is one step of an import. It either produces an Out for the next
// stage or fails the run.
type Stage[In, Out any] func(ctx context.Context, in In) (Out, error)

// Then composes two stages. second runs only when first succeeded; a
// failure in first is returned unchanged.
func Then[A, B, C any](first Stage[A, B], second Stage[B, C]) Stage[A, C] {
	return func(ctx context.Context, in A) (C, error) {
		mid, err := first(ctx, in)
		if err != nil {
			var zero C
			return zero, err
		}
		return second(ctx, mid)
	}
}

// Named tags any error from s with the stage name. Errors that already
// carry a stage keep the innermost one.
func Named[In, Out any](name string, s Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) (Out, error) {
		out, err := s(ctx, in)
		if err != nil {
			var stageErr *StageError
			if errors.As(err, &stageErr) {
				return out, err
			}
			return out, &StageError{Stage: name, Err: err}
		}
		return out, nil
	}
}

// StageError is the single error value a failed run reports.
type StageError struct {
	Stage    string
	ImportID string
	Err      error
}

func (e *StageError) Error() string {
	if e.ImportID != "" {
		return fmt.Sprintf("import %s failed at %s: %v", e.ImportID, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage recorded on err, or "" when err carries none.
func FailedStage(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}
