package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/voltlab/circuitreview/internal/progress"
)

type ProgressHandler struct {
	Tracker *progress.Tracker
}

func (h *ProgressHandler) Register(g *echo.Group) {
	g.GET("/progress/:id", h.get)
	g.DELETE("/progress/:id", h.clear)
}

// get returns the timeline pushed so far. Polling the same id repeatedly
// always yields a superset of the previous snapshot.
func (h *ProgressHandler) get(c echo.Context) error {
	id := c.Param("id")
	events := h.Tracker.Snapshot(c.Request().Context(), id)
	if events == nil {
		events = []progress.Event{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"timeline": events})
}

func (h *ProgressHandler) clear(c echo.Context) error {
	h.Tracker.Clear(c.Request().Context(), c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}
