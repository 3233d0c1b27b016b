package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Parameter locations
const (
	InPath     = "path"
	InQuery    = "query"
	InBody     = "body"
	InFormData = "formData"
)

// Parameter value types
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeNone    = "none"
)

// ParameterDescriptor represents one invokable parameter of an operation.
// Nested body fields carry the parent property name and the leaf name
// joined by a single space, e.g. "owner name".
type ParameterDescriptor struct {
	Name     string `json:"name" yaml:"name"`
	In       string `json:"in" yaml:"in"`
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required" yaml:"required"`
	Enum     []any  `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// OperationKey identifies an operation by path template and lower-case method
type OperationKey struct {
	Path   string
	Method string
}

// NewOperationKey normalizes the method of a key
func NewOperationKey(path, method string) OperationKey {
	return OperationKey{Path: path, Method: strings.ToLower(method)}
}

// String returns the key as "METHOD /path"
func (k OperationKey) String() string {
	return fmt.Sprintf("%s %s", strings.ToUpper(k.Method), k.Path)
}

// OperationDescriptor represents one (path, method) pair of a schema
type OperationDescriptor struct {
	OperationID string                `json:"operationId"`
	Path        string                `json:"path"`
	Method      string                `json:"method"`
	Parameters  []ParameterDescriptor `json:"parameters"`
}

// OperationMap is the read-only set of operations derived from a schema
type OperationMap map[OperationKey]OperationDescriptor

// ParameterValue is a parameter descriptor carrying a concrete value
type ParameterValue struct {
	ParameterDescriptor `yaml:",inline"`
	Value               any `json:"value" yaml:"value"`
}

// RequestBody holds the payload of a call before encoding
type RequestBody struct {
	Body     map[string]any `json:"body"`
	FormData map[string]any `json:"formData"`
}

// CallDescriptor is a dispatchable call
type CallDescriptor struct {
	URL         string           `json:"url"`
	OperationID string           `json:"operationId"`
	Method      string           `json:"method"`
	Endpoint    string           `json:"endpoint"`
	Parameters  []ParameterValue `json:"parameters"`
	RequestBody RequestBody      `json:"requestBody"`
}

// Response represents a captured SUT response
type Response struct {
	Status      int       `json:"status"`
	CompletedAt time.Time `json:"completedAt"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Data        any       `json:"data"`
}

// RelationshipKind names an inferred relationship between calls
type RelationshipKind string

const (
	ResponseEquality   RelationshipKind = "responseEquality"
	ResponseInequality RelationshipKind = "responseInequality"
	StateMutation      RelationshipKind = "stateMutation"
	StateIdentity      RelationshipKind = "stateIdentity"
	Fuzz               RelationshipKind = "fuzz"
)

// Role marks the position of a call inside a relationship
type Role string

const (
	RoleStart Role = "start"
	RoleMid   Role = "mid"
	RoleEnd   Role = "end"
)

// Warning is a human-readable divergence report
type Warning struct {
	Warning string `json:"warning"`
}

// Warningf formats a warning
func Warningf(format string, args ...any) Warning {
	return Warning{Warning: fmt.Sprintf(format, args...)}
}

// CallResult represents the outcome of dispatching one call
type CallResult struct {
	OperationID   string                      `json:"operationId"`
	Method        string                      `json:"method"`
	Endpoint      string                      `json:"endpoint"`
	URL           string                      `json:"url"`
	Parameters    []ParameterValue            `json:"parameters"`
	RequestBody   RequestBody                 `json:"requestBody"`
	StartedAt     time.Time                   `json:"startedAt"`
	Response      *Response                   `json:"response,omitempty"`
	DurationMs    int64                       `json:"durationMs"`
	Error         string                      `json:"error,omitempty"`
	Warnings      []Warning                   `json:"warnings,omitempty"`
	Relationships map[RelationshipKind][]Role `json:"relationships,omitempty"`
}

// NewCallResult starts a result for the given call
func NewCallResult(call CallDescriptor) *CallResult {
	return &CallResult{
		OperationID: call.OperationID,
		Method:      call.Method,
		Endpoint:    call.Endpoint,
		URL:         call.URL,
		Parameters:  call.Parameters,
		RequestBody: call.RequestBody,
	}
}

// Descriptor rebuilds the dispatchable call a result was produced from
func (r *CallResult) Descriptor() CallDescriptor {
	return CallDescriptor{
		URL:         r.URL,
		OperationID: r.OperationID,
		Method:      r.Method,
		Endpoint:    r.Endpoint,
		Parameters:  r.Parameters,
		RequestBody: r.RequestBody,
	}
}

// Tag appends a role under the given relationship kind
// Operation identifies the operation a call was made to: its operationId, or
// "METHOD /path/template" when the schema declares none
func (r *CallResult) Operation() string {
	if r.OperationID != "" {
		return r.OperationID
	}
	return NewOperationKey(r.Endpoint, r.Method).String()
}

func (r *CallResult) Tag(kind RelationshipKind, role Role) {
	if r.Relationships == nil {
		r.Relationships = make(map[RelationshipKind][]Role)
	}
	r.Relationships[kind] = append(r.Relationships[kind], role)
}

// Sequence is an ordered, named list of call results run against one schema
type Sequence struct {
	ID       string       `json:"id"`
	SchemaID string       `json:"schemaId"`
	Name     string       `json:"name"`
	Calls    []CallResult `json:"calls"`
}

// SequenceEntry is one requested call of a sequence run
type SequenceEntry struct {
	Path       string           `json:"path" yaml:"path"`
	Method     string           `json:"method" yaml:"method"`
	Parameters []ParameterValue `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// ErrInvalidRunRequest is returned when a run request is malformed
var ErrInvalidRunRequest = errors.New("invalid API call sequence in request data")

var allowedMethods = map[string]bool{
	"get":    true,
	"post":   true,
	"put":    true,
	"delete": true,
	"patch":  true,
}

// RunRequest represents a request to run a named call sequence
type RunRequest struct {
	Name         string          `json:"name" yaml:"name"`
	CallSequence []SequenceEntry `json:"callSequence" yaml:"callSequence"`
	CallByCall   bool            `json:"callByCall,omitempty" yaml:"callByCall,omitempty"`
}

// Validate checks the request before anything is built
func (r *RunRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: no call sequence name specified", ErrInvalidRunRequest)
	}
	if r.CallSequence == nil {
		return fmt.Errorf("%w: callSequence is missing", ErrInvalidRunRequest)
	}
	for i, entry := range r.CallSequence {
		if entry.Path == "" || entry.Method == "" {
			return fmt.Errorf("%w: entry %d lacks path or method", ErrInvalidRunRequest, i)
		}
		if !allowedMethods[strings.ToLower(entry.Method)] {
			return fmt.Errorf("%w: entry %d has unsupported method %q", ErrInvalidRunRequest, i, entry.Method)
		}
	}
	return nil
}

// Metrics summarizes a sequence run
type Metrics struct {
	NumCalls          int     `json:"numCalls"`
	SuccessfulCalls   int     `json:"successfulCalls"`
	UnsuccessfulCalls int     `json:"unsuccessfulCalls"`
	TotDuration       int64   `json:"totDuration"`
	AvgDuration       float64 `json:"avgDuration"`
	TotSize           int64   `json:"totSize"`
	AvgSize           float64 `json:"avgSize"`
}

// RunResponse represents the outcome of a sequence run
type RunResponse struct {
	CallSequence []CallResult `json:"callSequence"`
	Warnings     []Warning    `json:"warnings,omitempty"`
	Metrics      *Metrics     `json:"metrics,omitempty"`
}
