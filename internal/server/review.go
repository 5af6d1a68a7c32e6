package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/voltlab/circuitreview/config"
	"github.com/voltlab/circuitreview/internal/provider"
	"github.com/voltlab/circuitreview/internal/review"
)

// maxUploadBytes bounds one uploaded schematic image or PDF.
const maxUploadBytes = 20 << 20

type ReviewHandler struct {
	Reviewer *review.Reviewer
	Cfg      *config.Config
	Logger   *log.Logger
}

func (h *ReviewHandler) Register(g *echo.Group) {
	g.POST("/review", h.review)
}

type reviewResponse struct {
	ProgressID string               `json:"progressId"`
	Result     *review.Output       `json:"result,omitempty"`
	Results    []review.ModelResult `json:"results,omitempty"`
}

// review accepts a multipart form: images plus text, optional history
// JSON, optional model targets for fan-out.
func (h *ReviewHandler) review(c echo.Context) error {
	text := strings.TrimSpace(c.FormValue("text"))
	if text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	history, err := parseHistory(c.FormValue("history"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid history: %v", err))
	}
	attachments, err := readAttachments(c, "images")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	progressID := c.FormValue("progress_id")
	if progressID == "" {
		progressID = uuid.NewString()
	}

	in := review.Input{
		Text:          text,
		Attachments:   attachments,
		History:       history,
		BaseURL:       h.Cfg.LLM.BaseURL,
		AuthHeader:    h.Cfg.LLM.AuthHeader(),
		Model:         h.Cfg.LLM.Model,
		Lang:          c.FormValue("lang"),
		ProgressID:    progressID,
		EnrichContext: c.FormValue("enrich") == "true",
	}
	if m := c.FormValue("model"); m != "" {
		in.Model = m
	}

	targets, err := parseTargets(c.FormValue("models"), h.Cfg.LLM)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid models: %v", err))
	}
	if len(targets) > 0 {
		results := h.Reviewer.ReviewAll(c.Request().Context(), in, targets)
		return c.JSON(http.StatusOK, reviewResponse{ProgressID: progressID, Results: results})
	}

	out, err := h.Reviewer.Review(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, reviewResponse{ProgressID: progressID, Result: &out})
}

func parseHistory(raw string) (review.Conversation, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var history review.Conversation
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, err
	}
	return history, nil
}

// parseTargets accepts either a JSON array of {baseUrl, model} objects or a
// comma-separated list of model names sharing the configured endpoint.
func parseTargets(raw string, llm config.LLMConfig) ([]review.ModelTarget, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var targets []review.ModelTarget
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &targets); err != nil {
			return nil, err
		}
	} else {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				targets = append(targets, review.ModelTarget{Model: name})
			}
		}
	}
	for i := range targets {
		if targets[i].BaseURL == "" {
			targets[i].BaseURL = llm.BaseURL
		}
		targets[i].AuthHeader = llm.AuthHeader()
	}
	return targets, nil
}

func readAttachments(c echo.Context, field string) ([]provider.Attachment, error) {
	form, err := c.MultipartForm()
	if err != nil {
		// Plain form posts without files are fine.
		return nil, nil
	}
	files := form.File[field]
	attachments := make([]provider.Attachment, 0, len(files))
	for _, fh := range files {
		att, err := readAttachment(fh)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, att)
	}
	return attachments, nil
}

func readAttachment(fh *multipart.FileHeader) (provider.Attachment, error) {
	if fh.Size > maxUploadBytes {
		return provider.Attachment{}, fmt.Errorf("file %s exceeds %d bytes", fh.Filename, maxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return provider.Attachment{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return provider.Attachment{}, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	if len(data) > maxUploadBytes {
		return provider.Attachment{}, fmt.Errorf("file %s exceeds %d bytes", fh.Filename, maxUploadBytes)
	}
	return provider.Attachment{
		Name:     fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Bytes:    data,
	}, nil
}
