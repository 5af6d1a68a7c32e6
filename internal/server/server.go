package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voltlab/circuitreview/config"
	"github.com/voltlab/circuitreview/internal/artifact"
	"github.com/voltlab/circuitreview/internal/fetch"
	"github.com/voltlab/circuitreview/internal/progress"
	"github.com/voltlab/circuitreview/internal/prompts"
	"github.com/voltlab/circuitreview/internal/provider"
	"github.com/voltlab/circuitreview/internal/recognition"
	"github.com/voltlab/circuitreview/internal/review"
	"github.com/voltlab/circuitreview/internal/search"
	"github.com/voltlab/circuitreview/internal/session"
	"github.com/voltlab/circuitreview/internal/telemetry"
)

// Server owns the echo instance and the wired pipeline dependencies.
type Server struct {
	cfg     *config.Config
	echo    *echo.Echo
	logger  *log.Logger
	sweeper *artifact.Sweeper
}

// New wires the whole pipeline from config: telemetry, the resilient
// caller, prompt loader, search, progress and artifact stores, the
// recognition engine and the reviewer, then registers all routes.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	logger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)

	tele := telemetry.NewTelemetry(cfg.Telemetry)
	caller := provider.NewCaller(cfg.LLM, tele)
	loader := prompts.NewLoader(cfg.Prompts)
	if err := loader.Preload(); err != nil {
		return nil, fmt.Errorf("preload prompts: %w", err)
	}

	searcher, err := search.NewSearcher(cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("search provider: %w", err)
	}
	fetcher := fetch.New(20*time.Second, 2000)

	store := progress.NewStore(ctx, cfg.Progress, logger)
	tracker := progress.NewTracker(store)

	artifacts, err := artifact.NewStore(cfg.Artifacts.Dir, cfg.Artifacts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("artifact store: %w", err)
	}
	sweeper := artifact.NewSweeper(artifacts, cfg.Artifacts.RetentionCron, cfg.Artifacts.RetentionAge)

	engine := recognition.NewEngine(caller, loader, searcher, tracker, artifacts, tele, cfg.Recognize)
	reviewer := review.NewReviewer(caller, loader, searcher, fetcher, tracker, artifacts, tele, cfg.Search)

	sessions, err := session.NewStore(cfg.Sessions.Dir)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = errorHandler(logger)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.Static("/artifacts", cfg.Artifacts.Dir)

	api := e.Group("/api")
	(&ReviewHandler{Reviewer: reviewer, Cfg: cfg, Logger: logger}).Register(api)
	(&RecognizeHandler{Engine: engine, Cfg: cfg, Logger: logger}).Register(api)
	(&ProgressHandler{Tracker: tracker}).Register(api)
	(&SessionsHandler{Store: sessions}).Register(api)

	return &Server{cfg: cfg, echo: e, logger: logger, sweeper: sweeper}, nil
}

// Run serves until the context is cancelled, then shuts down gracefully.
// The artifact retention sweeper runs alongside the listener.
func (s *Server) Run(ctx context.Context) error {
	go s.sweeper.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

// errorHandler is the unified JSON error surface for every route.
func errorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
}
