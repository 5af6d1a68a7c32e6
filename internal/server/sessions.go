package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/voltlab/circuitreview/internal/session"
)

type SessionsHandler struct {
	Store *session.Store
}

func (h *SessionsHandler) Register(g *echo.Group) {
	g.GET("/sessions", h.list)
	g.POST("/sessions", h.save)
	g.GET("/sessions/:id", h.get)
	g.DELETE("/sessions/:id", h.remove)
}

func (h *SessionsHandler) list(c echo.Context) error {
	records, err := h.Store.List()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, records)
}

func (h *SessionsHandler) save(c echo.Context) error {
	var rec session.Record
	if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, err := h.Store.Save(rec)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

func (h *SessionsHandler) get(c echo.Context) error {
	rec, err := h.Store.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *SessionsHandler) remove(c echo.Context) error {
	if err := h.Store.Delete(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.NoContent(http.StatusNoContent)
}
