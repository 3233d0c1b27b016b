package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/APIExplore/api-explore-backend/internal/executor"
	"github.com/APIExplore/api-explore-backend/internal/session"
	"github.com/APIExplore/api-explore-backend/internal/types"
)

// RunResponse is a sequence run as returned to the caller. Error is set when
// the run stopped early; the calls made until then are still included.
type RunResponse struct {
	*types.RunResponse
	Error   string   `json:"error,omitempty"`
	Reports []string `json:"reports,omitempty"`
}

// Explore runs a sequence with the parameter values given by the caller.
// POST /explore/:schemaID
func (h *Handler) Explore(c echo.Context) error {
	return h.explore(c, false)
}

// ExploreRandom runs a sequence with generated parameter values.
// POST /explore/:schemaID/random
func (h *Handler) ExploreRandom(c echo.Context) error {
	return h.explore(c, true)
}

func (h *Handler) explore(c echo.Context, randomize bool) error {
	ctx := c.Request().Context()

	var req types.RunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	sess, err := h.deps.Sessions.Get(ctx, c.Param("schemaID"))
	if err != nil {
		return h.fail(c, err, "failed to load API schema")
	}

	resp, err := h.deps.Runner.Run(ctx, sess, &req, randomize)
	if errors.Is(err, executor.ErrSutUnreachable) {
		return c.JSON(http.StatusBadGateway, RunResponse{RunResponse: resp, Error: err.Error()})
	}
	if err != nil {
		return h.fail(c, err, "failed to run call sequence")
	}

	return c.JSON(http.StatusCreated, RunResponse{RunResponse: resp, Reports: h.report(c, sess, req.Name, resp)})
}

// Restore replays a recorded sequence without recording it again.
// POST /explore/:schemaID/restore/:sequenceName
func (h *Handler) Restore(c echo.Context) error {
	ctx := c.Request().Context()

	sess, err := h.deps.Sessions.Get(ctx, c.Param("schemaID"))
	if err != nil {
		return h.fail(c, err, "failed to load API schema")
	}

	resp, err := h.deps.Runner.Restore(ctx, sess, c.Param("sequenceName"))
	if errors.Is(err, executor.ErrSutUnreachable) {
		return c.JSON(http.StatusBadGateway, RunResponse{RunResponse: resp, Error: err.Error()})
	}
	if err != nil {
		return h.fail(c, err, "failed to restore call sequence")
	}
	return c.JSON(http.StatusOK, RunResponse{RunResponse: resp})
}

// report writes the run reports when reporting is enabled. Failures only get logged.
func (h *Handler) report(c echo.Context, sess *session.Session, sequence string, resp *types.RunResponse) []string {
	if h.deps.Reporter == nil {
		return nil
	}
	paths, err := h.deps.Reporter.GenerateReport(c.Request().Context(), sess.SchemaName, sequence, resp)
	if err != nil {
		h.logger.Warn("failed to write run report", zap.String("sequence", sequence), zap.Error(err))
	}
	return paths
}
