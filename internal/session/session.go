package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/APIExplore/api-explore-backend/internal/parser"
	"github.com/APIExplore/api-explore-backend/internal/store"
	"github.com/APIExplore/api-explore-backend/internal/types"
)

// ErrNoSchema is returned when no schema with the requested id was activated
var ErrNoSchema = errors.New("no API schema selected")

// Session is the explicit exploration context for one schema. Its operation
// map is read-only and may be shared by concurrent sequence runs.
type Session struct {
	SchemaID   string
	SchemaName string
	Schema     *parser.Schema
	Ops        types.OperationMap
	Warnings   []types.Warning
}

// SchemaStore is the part of the store a registry needs
type SchemaStore interface {
	SaveSchema(ctx context.Context, rec *store.SchemaRecord) error
	SchemaByID(ctx context.Context, id string) (*store.SchemaRecord, error)
}

// Registry keeps activated sessions, loading them back from the store when
// they have expired from memory
type Registry struct {
	store    SchemaStore
	sessions *cache.Cache
	logger   *zap.Logger
}

// NewRegistry creates a new session registry. Sessions not used for ttl are
// evicted and reloaded on demand.
func NewRegistry(s SchemaStore, ttl time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		store:    s,
		sessions: cache.New(ttl, 2*ttl),
		logger:   logger,
	}
}

// Activate stores the loaded schema under name and returns a session for it
func (r *Registry) Activate(ctx context.Context, name string, schema *parser.Schema) (*Session, error) {
	rec := &store.SchemaRecord{
		Name:     name,
		Version:  schema.Version,
		BaseURL:  schema.BaseURL,
		Document: schema.Raw,
	}
	if err := r.store.SaveSchema(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save API schema: %w", err)
	}

	sess := r.newSession(ctx, rec, schema)
	r.logger.Info("activated API schema",
		zap.String("schema_id", rec.ID),
		zap.String("name", name),
		zap.String("version", schema.Version),
		zap.Int("operations", len(sess.Ops)))
	return sess, nil
}

// Get returns the session of a schema id
func (r *Registry) Get(ctx context.Context, schemaID string) (*Session, error) {
	if cached, ok := r.sessions.Get(schemaID); ok {
		return cached.(*Session), nil
	}

	rec, err := r.store.SchemaByID(ctx, schemaID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoSchema, schemaID)
	}
	if err != nil {
		return nil, err
	}

	schema, err := parser.Load(rec.Document)
	if err != nil {
		return nil, fmt.Errorf("stored API schema %s is unreadable: %w", schemaID, err)
	}
	// keep the base URL that was resolved when the schema was activated
	schema.BaseURL = rec.BaseURL
	return r.newSession(ctx, rec, schema), nil
}

// Forget drops a cached session
func (r *Registry) Forget(schemaID string) {
	r.sessions.Delete(schemaID)
}

func (r *Registry) newSession(ctx context.Context, rec *store.SchemaRecord, schema *parser.Schema) *Session {
	ops, err := parser.Operations(schema)
	sess := &Session{
		SchemaID:   rec.ID,
		SchemaName: rec.Name,
		Schema:     schema,
		Ops:        ops,
		Warnings:   parser.Validate(ctx, schema),
	}
	if err != nil {
		// unresolvable operations fail when a sequence uses them
		r.logger.Warn("some operations could not be resolved", zap.String("schema_id", rec.ID), zap.Error(err))
		sess.Warnings = append(sess.Warnings, types.Warningf("API schema issue: %v", err))
	}
	r.sessions.SetDefault(rec.ID, sess)
	return sess
}
