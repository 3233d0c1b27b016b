package executor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/APIExplore/api-explore-backend/internal/analysis"
	"github.com/APIExplore/api-explore-backend/internal/builder"
	"github.com/APIExplore/api-explore-backend/internal/metrics"
	"github.com/APIExplore/api-explore-backend/internal/reporter"
	"github.com/APIExplore/api-explore-backend/internal/session"
	"github.com/APIExplore/api-explore-backend/internal/store"
	"github.com/APIExplore/api-explore-backend/internal/types"
)

// Store is the persistence a runner needs
type Store interface {
	SequenceID(ctx context.Context, schemaID, name string) (string, error)
	CreateSequence(ctx context.Context, schemaID, name string) (string, error)
	SaveSequenceRun(ctx context.Context, schemaID, sequenceID string, calls []types.CallResult) error
	LoadPreviousRun(ctx context.Context, sequenceID string) ([]types.CallResult, error)
}

// Publisher receives every call result as soon as it is known. Publishing is
// best effort and must not block.
type Publisher interface {
	Publish(sequence string, result types.CallResult)
}

// Observer records call and sequence outcomes
type Observer interface {
	ObserveCall(result *types.CallResult)
	ObserveSequence(outcome string, warnings int)
}

// Runner executes named call sequences against the system under test
type Runner struct {
	builder   *builder.Builder
	client    *Client
	store     Store
	publisher Publisher
	observer  Observer
	logger    *zap.Logger
}

// NewRunner creates a new runner. publisher and observer may be nil.
func NewRunner(b *builder.Builder, client *Client, s Store, publisher Publisher, observer Observer, logger *zap.Logger) *Runner {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Runner{
		builder:   b,
		client:    client,
		store:     s,
		publisher: publisher,
		observer:  observer,
		logger:    logger,
	}
}

// Run builds and dispatches a sequence one call at a time. When the system
// under test becomes unreachable the calls made so far are returned together
// with an error wrapping ErrSutUnreachable, and nothing is persisted.
//
// With CallByCall set the new calls extend the recorded run instead of
// replacing it, and no comparison with the recorded run is made.
func (r *Runner) Run(ctx context.Context, sess *session.Session, req *types.RunRequest, randomize bool) (*types.RunResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	calls, err := r.builder.BuildSequence(req.CallSequence, sess.Schema, sess.Ops, randomize)
	if err != nil {
		r.observer.ObserveSequence(metrics.OutcomeBuildFailed, 0)
		return nil, err
	}

	sequenceID, previous, err := r.previousRun(ctx, sess.SchemaID, req.Name)
	if err != nil {
		return nil, err
	}

	results, dispatchErr := r.dispatch(ctx, req.Name, calls)
	if req.CallByCall {
		results = append(append(make([]types.CallResult, 0, len(previous)+len(results)), previous...), results...)
	}
	results = analysis.Analyze(results)

	resp := &types.RunResponse{
		CallSequence: results,
		Metrics:      reporter.ComputeMetrics(results),
	}
	if !req.CallByCall && len(previous) > 0 {
		resp.Warnings = analysis.Compare(previous, results)
	}

	if dispatchErr != nil {
		r.observer.ObserveSequence(metrics.OutcomeUnreachable, len(resp.Warnings))
		return resp, dispatchErr
	}

	if sequenceID == "" {
		if sequenceID, err = r.store.CreateSequence(ctx, sess.SchemaID, req.Name); err != nil {
			return resp, fmt.Errorf("failed to create call sequence: %w", err)
		}
	}
	if err := r.store.SaveSequenceRun(ctx, sess.SchemaID, sequenceID, results); err != nil {
		return resp, fmt.Errorf("failed to save call sequence: %w", err)
	}

	r.observer.ObserveSequence(metrics.OutcomeCompleted, len(resp.Warnings))
	r.logger.Info("call sequence completed",
		zap.String("schema_id", sess.SchemaID),
		zap.String("sequence", req.Name),
		zap.Int("calls", len(results)),
		zap.Int("warnings", len(resp.Warnings)))
	return resp, nil
}

// Restore replays a recorded sequence to bring the system under test back to
// the state it produced. Replayed calls are not persisted.
func (r *Runner) Restore(ctx context.Context, sess *session.Session, name string) (*types.RunResponse, error) {
	sequenceID, err := r.store.SequenceID(ctx, sess.SchemaID, name)
	if err != nil {
		return nil, err
	}
	recorded, err := r.store.LoadPreviousRun(ctx, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load call sequence: %w", err)
	}

	resp := &types.RunResponse{CallSequence: make([]types.CallResult, 0, len(recorded))}
	for i := range recorded {
		out := r.client.Replay(ctx, &recorded[i])
		r.observer.ObserveCall(out.Result)
		if out.Err != nil {
			r.observer.ObserveSequence(metrics.OutcomeUnreachable, len(resp.Warnings))
			return resp, out.Err
		}
		resp.CallSequence = append(resp.CallSequence, *out.Result)
		r.publisher.Publish(name, *out.Result)
		for _, w := range out.Result.Warnings {
			resp.Warnings = append(resp.Warnings, types.Warningf("Call %d (%s): %s", i+1, out.Result.Operation(), w.Warning))
		}
	}
	resp.Metrics = reporter.ComputeMetrics(resp.CallSequence)

	r.observer.ObserveSequence(metrics.OutcomeRestored, len(resp.Warnings))
	r.logger.Info("call sequence restored",
		zap.String("schema_id", sess.SchemaID),
		zap.String("sequence", name),
		zap.Int("calls", len(resp.CallSequence)))
	return resp, nil
}

// previousRun returns the id and recorded calls of a sequence. An unknown
// sequence yields an empty id and no calls.
func (r *Runner) previousRun(ctx context.Context, schemaID, name string) (string, []types.CallResult, error) {
	sequenceID, err := r.store.SequenceID(ctx, schemaID, name)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to look up call sequence: %w", err)
	}
	previous, err := r.store.LoadPreviousRun(ctx, sequenceID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load previous run: %w", err)
	}
	return sequenceID, previous, nil
}

// dispatch sends calls strictly in order, stopping at the first call that
// could not be completed
func (r *Runner) dispatch(ctx context.Context, sequence string, calls []types.CallDescriptor) ([]types.CallResult, error) {
	results := make([]types.CallResult, 0, len(calls))
	for i, call := range calls {
		out := r.client.Dispatch(ctx, call)
		r.observer.ObserveCall(out.Result)
		if out.Err != nil {
			r.logger.Warn("call sequence stopped",
				zap.String("sequence", sequence),
				zap.Int("call", i),
				zap.Error(out.Err))
			return results, out.Err
		}
		results = append(results, *out.Result)
		r.publisher.Publish(sequence, *out.Result)
	}
	return results, nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, types.CallResult) {}

type nopObserver struct{}

func (nopObserver) ObserveCall(*types.CallResult) {}

func (nopObserver) ObserveSequence(string, int) {}
