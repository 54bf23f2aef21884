package rewrite

import (
	"errors"
	"fmt"
)

var ErrNotHTML = errors.New("input is not HTML")

// RewriteError reports which step of a rewrite failed
type RewriteError struct {
	Stage string
	Err   error
}

func (e *RewriteError) Error() string {
	return fmt.Sprintf("rewrite %s: %v", e.Stage, e.Err)
}

func (e *RewriteError) Unwrap() error {
	return e.Err
}

func stageError(stage string, err error) error {
	return &RewriteError{Stage: stage, Err: err}
}
