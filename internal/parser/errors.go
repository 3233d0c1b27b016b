package parser

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidSchema indicates the document could not be decoded or converted
	ErrInvalidSchema = errors.New("invalid API schema")

	// ErrUnsupportedVersion indicates the document is neither swagger 2.x nor openapi 3.x
	ErrUnsupportedVersion = errors.New("unsupported API schema version")

	// ErrUnknownOperation indicates the schema has no such (path, method) pair
	ErrUnknownOperation = errors.New("operation not found in API schema")
)

// SchemaResolutionError is returned when a $ref cannot be resolved or an
// operation is malformed
type SchemaResolutionError struct {
	Ref    string
	Reason string
}

func (e *SchemaResolutionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot resolve %q: %s", e.Ref, e.Reason)
	}
	return fmt.Sprintf("cannot resolve %q", e.Ref)
}

// SchemaCycleError is returned when a chain of $ref definitions refers back
// to a definition already being expanded
type SchemaCycleError struct {
	Chain []string
}

func (e *SchemaCycleError) Error() string {
	return fmt.Sprintf("schema reference cycle: %s", strings.Join(e.Chain, " -> "))
}
