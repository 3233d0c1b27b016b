package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/APIExplore/api-explore-backend/internal/builder"
	"github.com/APIExplore/api-explore-backend/internal/executor"
	"github.com/APIExplore/api-explore-backend/internal/parser"
	"github.com/APIExplore/api-explore-backend/internal/reporter"
	"github.com/APIExplore/api-explore-backend/internal/session"
	"github.com/APIExplore/api-explore-backend/internal/store"
	"github.com/APIExplore/api-explore-backend/internal/types"
)

// Store is the part of the store the handlers read and manage directly
type Store interface {
	Ping(ctx context.Context) error
	ListSchemas(ctx context.Context) ([]store.SchemaRecord, error)
	ListSequences(ctx context.Context, schemaID string) ([]store.SequenceRecord, error)
	Sequence(ctx context.Context, schemaID, name string) (*types.Sequence, error)
	RenameSequence(ctx context.Context, schemaID, name, newName string) error
	DeleteSequence(ctx context.Context, schemaID, name string) error
}

// Deps holds the collaborators of the HTTP handlers. Reporter, Live and
// Metrics are optional.
type Deps struct {
	Sessions *session.Registry
	Runner   *executor.Runner
	Store    Store
	Fetcher  *parser.Fetcher
	Reporter *reporter.Reporter
	Live     http.Handler
	Metrics  http.Handler

	// BaseURL replaces the server URL of uploaded schemas when set
	BaseURL     string
	MetricsPath string
}

// Handler serves the exploration API
type Handler struct {
	deps   Deps
	logger *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}
	return &Handler{deps: deps, logger: logger}
}

// RegisterRoutes registers all routes on the Echo instance
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	e.POST("/apischema", h.UploadSchema)
	e.POST("/apischema/fetch", h.FetchSchema)
	e.GET("/apischema", h.ListSchemas)
	e.GET("/apischema/:id/paths", h.ListPaths)

	e.POST("/explore/:schemaID", h.Explore)
	e.POST("/explore/:schemaID/random", h.ExploreRandom)
	e.POST("/explore/:schemaID/restore/:sequenceName", h.Restore)

	e.GET("/callsequence/:schemaID", h.ListSequences)
	e.GET("/callsequence/:schemaID/:name", h.GetSequence)
	e.PUT("/callsequence/:schemaID/:name/rename/:newName", h.RenameSequence)
	e.DELETE("/callsequence/:schemaID/:name", h.DeleteSequence)

	if h.deps.Live != nil {
		e.GET("/ws", echo.WrapHandler(h.deps.Live))
	}
	if h.deps.Metrics != nil {
		e.GET(h.deps.MetricsPath, echo.WrapHandler(h.deps.Metrics))
	}
}

// Health reports whether the store is reachable.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	if err := h.deps.Store.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// statusOf maps an error to the HTTP status reported to the caller
func statusOf(err error) int {
	var buildErr *builder.BuildError
	switch {
	case errors.Is(err, types.ErrInvalidRunRequest),
		errors.Is(err, builder.ErrSequenceMismatch),
		errors.As(err, &buildErr),
		errors.Is(err, parser.ErrInvalidSchema),
		errors.Is(err, parser.ErrUnsupportedVersion):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoSchema), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, executor.ErrSutUnreachable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error. Internal errors are logged and hidden.
func (h *Handler) fail(c echo.Context, err error, what string) error {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(what, zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(status, map[string]string{"error": what})
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
