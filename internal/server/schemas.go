package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/APIExplore/api-explore-backend/internal/parser"
	"github.com/APIExplore/api-explore-backend/internal/session"
	"github.com/APIExplore/api-explore-backend/internal/types"
)

const maxSchemaBytes = 10 << 20

// SchemaResponse describes an activated schema
type SchemaResponse struct {
	ID       string                       `json:"id"`
	Name     string                       `json:"name"`
	Version  string                       `json:"version"`
	BaseURL  string                       `json:"baseUrl"`
	Paths    map[string]map[string]string `json:"paths"`
	Warnings []types.Warning              `json:"warnings,omitempty"`
}

// FetchRequest is the request to fetch a schema from a running service
type FetchRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// UploadSchema activates the JSON or YAML document in the request body.
// POST /apischema?name=
func (h *Handler) UploadSchema(c echo.Context) error {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxSchemaBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "API schema document is required"})
	}

	schema, err := parser.Load(data)
	if err != nil {
		return h.fail(c, err, "failed to load API schema")
	}
	return h.activate(c, c.QueryParam("name"), schema)
}

// FetchSchema fetches and activates the schema served by a running service.
// POST /apischema/fetch
func (h *Handler) FetchSchema(c echo.Context) error {
	var req FetchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.URL == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url is required"})
	}
	if h.deps.Fetcher == nil {
		return c.JSON(http.StatusNotImplemented, map[string]string{"error": "schema fetching is disabled"})
	}

	schema, err := h.deps.Fetcher.LoadFromURL(c.Request().Context(), req.URL)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return h.activate(c, req.Name, schema)
}

func (h *Handler) activate(c echo.Context, name string, schema *parser.Schema) error {
	if name == "" {
		name = schemaName(schema)
	}
	if h.deps.BaseURL != "" {
		schema.BaseURL = h.deps.BaseURL
	}

	sess, err := h.deps.Sessions.Activate(c.Request().Context(), name, schema)
	if err != nil {
		return h.fail(c, err, "failed to activate API schema")
	}
	return c.JSON(http.StatusCreated, schemaResponse(sess))
}

// ListSchemas lists stored schemas.
// GET /apischema
func (h *Handler) ListSchemas(c echo.Context) error {
	schemas, err := h.deps.Store.ListSchemas(c.Request().Context())
	if err != nil {
		return h.fail(c, err, "failed to list API schemas")
	}
	return c.JSON(http.StatusOK, map[string]any{"schemas": schemas})
}

// ListPaths lists the operations of a schema.
// GET /apischema/:id/paths
func (h *Handler) ListPaths(c echo.Context) error {
	sess, err := h.deps.Sessions.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err, "failed to load API schema")
	}
	return c.JSON(http.StatusOK, schemaResponse(sess))
}

func schemaResponse(sess *session.Session) SchemaResponse {
	return SchemaResponse{
		ID:       sess.SchemaID,
		Name:     sess.SchemaName,
		Version:  sess.Schema.Version,
		BaseURL:  sess.Schema.BaseURL,
		Paths:    parser.ListPaths(sess.Schema),
		Warnings: sess.Warnings,
	}
}

func schemaName(schema *parser.Schema) string {
	if schema.Doc.Info != nil && schema.Doc.Info.Title != "" {
		return schema.Doc.Info.Title
	}
	return "default"
}
