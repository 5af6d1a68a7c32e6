package server

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/voltlab/circuitreview/config"
	"github.com/voltlab/circuitreview/internal/recognition"
)

type RecognizeHandler struct {
	Engine *recognition.Engine
	Cfg    *config.Config
	Logger *log.Logger
}

func (h *RecognizeHandler) Register(g *echo.Group) {
	g.POST("/recognize", h.recognize)
}

type recognizeResponse struct {
	ProgressID string                   `json:"progressId"`
	Graph      recognition.CircuitGraph `json:"graph"`
}

// recognize accepts a multipart form with one schematic image and runs the
// multi-pass pipeline on it.
func (h *RecognizeHandler) recognize(c echo.Context) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "image file is required")
	}
	att, err := readAttachment(fh)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	progressID := c.FormValue("progress_id")
	if progressID == "" {
		progressID = uuid.NewString()
	}

	enrich := h.Cfg.Recognize.EnrichDatasheets
	switch c.FormValue("enrich_datasheets") {
	case "true":
		enrich = true
	case "false":
		enrich = false
	}

	graph, err := h.Engine.Recognize(c.Request().Context(), recognition.Input{
		Attachment:         att,
		BaseURL:            h.Cfg.LLM.BaseURL,
		AuthHeader:         h.Cfg.LLM.AuthHeader(),
		VisionModel:        h.Cfg.LLM.VisionModel,
		ConsolidationModel: h.Cfg.LLM.ConsolidationModel,
		Lang:               c.FormValue("lang"),
		ProgressID:         progressID,
		EnrichDatasheets:   enrich,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, recognizeResponse{ProgressID: progressID, Graph: graph})
}
