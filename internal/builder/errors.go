package builder

import (
	"errors"
	"fmt"
)

// ErrSequenceMismatch is returned when some entries of a sequence have no
// matching operation in the active schema
var ErrSequenceMismatch = errors.New("call sequence does not match the active API schema")

// ErrMissingPathParameter is returned when a path template placeholder is
// left without a value
var ErrMissingPathParameter = errors.New("missing path parameter")

// BuildError reports a sequence entry that could not be turned into a call
type BuildError struct {
	Index  int
	Path   string
	Method string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("cannot build call %d (%s %s): %v", e.Index, e.Method, e.Path, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
