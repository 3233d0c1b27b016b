package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListSequences lists the recorded sequences of a schema.
// GET /callsequence/:schemaID
func (h *Handler) ListSequences(c echo.Context) error {
	sequences, err := h.deps.Store.ListSequences(c.Request().Context(), c.Param("schemaID"))
	if err != nil {
		return h.fail(c, err, "failed to list call sequences")
	}
	return c.JSON(http.StatusOK, map[string]any{"sequences": sequences})
}

// GetSequence returns a recorded sequence with its calls.
// GET /callsequence/:schemaID/:name
func (h *Handler) GetSequence(c echo.Context) error {
	sequence, err := h.deps.Store.Sequence(c.Request().Context(), c.Param("schemaID"), c.Param("name"))
	if err != nil {
		return h.fail(c, err, "failed to load call sequence")
	}
	return c.JSON(http.StatusOK, sequence)
}

// RenameSequence renames a recorded sequence.
// PUT /callsequence/:schemaID/:name/rename/:newName
func (h *Handler) RenameSequence(c echo.Context) error {
	newName := c.Param("newName")
	if newName == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "new name is required"})
	}
	if err := h.deps.Store.RenameSequence(c.Request().Context(), c.Param("schemaID"), c.Param("name"), newName); err != nil {
		return h.fail(c, err, "failed to rename call sequence")
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "name": newName})
}

// DeleteSequence deletes a recorded sequence.
// DELETE /callsequence/:schemaID/:name
func (h *Handler) DeleteSequence(c echo.Context) error {
	if err := h.deps.Store.DeleteSequence(c.Request().Context(), c.Param("schemaID"), c.Param("name")); err != nil {
		return h.fail(c, err, "failed to delete call sequence")
	}
	return c.NoContent(http.StatusNoContent)
}
