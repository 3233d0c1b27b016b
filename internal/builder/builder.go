package builder

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/APIExplore/api-explore-backend/internal/parser"
	"github.com/APIExplore/api-explore-backend/internal/testdata"
	"github.com/APIExplore/api-explore-backend/internal/types"
)

// Builder turns sequence entries into dispatchable calls
type Builder struct {
	generator *testdata.Generator
	logger    *zap.Logger
}

// NewBuilder creates a new instance of Builder
func NewBuilder(generator *testdata.Generator, logger *zap.Logger) *Builder {
	if generator == nil {
		generator = testdata.NewGenerator(nil)
	}
	return &Builder{generator: generator, logger: logger}
}

// Build creates one call per entry that names an operation of the schema.
// Entries without a matching operation are skipped, so a result shorter than
// entries signals a mismatch. On a build failure the calls built so far are
// returned together with a *BuildError.
func (b *Builder) Build(entries []types.SequenceEntry, schema *parser.Schema, ops types.OperationMap, randomize bool) ([]types.CallDescriptor, error) {
	calls := make([]types.CallDescriptor, 0, len(entries))

	for i, entry := range entries {
		key := types.NewOperationKey(entry.Path, entry.Method)
		op, ok := ops[key]
		if !ok {
			resolved, err := parser.Operation(schema, entry.Path, entry.Method)
			if errors.Is(err, parser.ErrUnknownOperation) {
				b.logger.Warn("skipping call missing from API schema", zap.String("operation", key.String()))
				continue
			}
			if err != nil {
				b.logger.Error("failed to resolve operation", zap.String("operation", key.String()), zap.Error(err))
				return calls, &BuildError{Index: i, Path: entry.Path, Method: entry.Method, Err: err}
			}
			op = resolved
		}

		call, err := b.buildCall(schema, op, entry, randomize)
		if err != nil {
			b.logger.Error("failed to build call, check the active API schema",
				zap.String("operation", key.String()), zap.Error(err))
			return calls, &BuildError{Index: i, Path: entry.Path, Method: entry.Method, Err: err}
		}
		calls = append(calls, call)
	}

	return calls, nil
}

// BuildSequence builds every entry or fails with ErrSequenceMismatch when
// any entry is missing from the schema
func (b *Builder) BuildSequence(entries []types.SequenceEntry, schema *parser.Schema, ops types.OperationMap, randomize bool) ([]types.CallDescriptor, error) {
	calls, err := b.Build(entries, schema, ops, randomize)
	if err != nil {
		return nil, err
	}
	if len(calls) != len(entries) {
		return nil, fmt.Errorf("%w: built %d of %d calls", ErrSequenceMismatch, len(calls), len(entries))
	}
	return calls, nil
}

func (b *Builder) buildCall(schema *parser.Schema, op types.OperationDescriptor, entry types.SequenceEntry, randomize bool) (types.CallDescriptor, error) {
	if strings.Count(op.Path, "{") != strings.Count(op.Path, "}") {
		return types.CallDescriptor{}, fmt.Errorf("malformed path template %q", op.Path)
	}

	var values []types.ParameterValue
	if randomize {
		values = b.generator.Fill(op.Parameters)
	} else {
		values = callerValues(op.Parameters, entry.Parameters)
	}

	endpoint := op.Path
	query := url.Values{}
	var queryOrder []string
	body := make(map[string]any)
	formData := make(map[string]any)

	for _, param := range values {
		if param.Value == nil {
			continue
		}
		switch param.In {
		case types.InPath:
			endpoint = strings.ReplaceAll(endpoint, "{"+param.Name+"}", url.PathEscape(fmt.Sprint(param.Value)))
		case types.InQuery:
			if _, seen := query[param.Name]; !seen {
				queryOrder = append(queryOrder, param.Name)
			}
			query.Add(param.Name, fmt.Sprint(param.Value))
		case types.InBody:
			body[param.Name] = param.Value
		case types.InFormData:
			formData[param.Name] = param.Value
		}
	}

	if start := strings.Index(endpoint, "{"); start >= 0 {
		end := strings.Index(endpoint[start:], "}")
		return types.CallDescriptor{}, fmt.Errorf("%w %s in %q", ErrMissingPathParameter, endpoint[start:start+end+1], op.Path)
	}

	rawURL := strings.TrimRight(schema.BaseURL, "/") + endpoint
	if len(queryOrder) > 0 {
		rawURL += "?" + encodeQuery(query, queryOrder)
	}
	if _, err := url.Parse(rawURL); err != nil {
		return types.CallDescriptor{}, fmt.Errorf("invalid call URL: %w", err)
	}

	if len(body) > 0 {
		body = Nest(body, parser.BodySchema(schema, op.Path, op.Method))
	}

	return types.CallDescriptor{
		URL:         rawURL,
		OperationID: op.OperationID,
		Method:      op.Method,
		Endpoint:    op.Path,
		Parameters:  values,
		RequestBody: types.RequestBody{Body: body, FormData: formData},
	}, nil
}

// callerValues pairs each descriptor with the caller value of the same name
func callerValues(params []types.ParameterDescriptor, supplied []types.ParameterValue) []types.ParameterValue {
	byName := make(map[string]any, len(supplied))
	for _, p := range supplied {
		byName[p.Name] = p.Value
	}

	values := make([]types.ParameterValue, 0, len(params))
	for _, param := range params {
		values = append(values, types.ParameterValue{
			ParameterDescriptor: param,
			Value:               byName[param.Name],
		})
	}
	return values
}

// encodeQuery keeps parameters in declaration order
func encodeQuery(query url.Values, order []string) string {
	parts := make([]string, 0, len(order))
	for _, name := range order {
		for _, value := range query[name] {
			parts = append(parts, url.QueryEscape(name)+"="+url.QueryEscape(value))
		}
	}
	return strings.Join(parts, "&")
}
