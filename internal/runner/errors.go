package runner

import "fmt"

// StageError wraps an error with the pipeline stage in which it occurred.
// The stages abort the run, errors of later stages can not mask an earlier
// failure.
type StageError struct {
	Stage Stage
	Err   error
}

func newStageError(stage Stage, err error) *StageError {
	return &StageError{
		Stage: stage,
		Err:   err,
	}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %s", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
