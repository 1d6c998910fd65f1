// Package server exposes read-only engine state over HTTP for external
// consumers such as a dashboard. It offers no mutation endpoints.
package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"hybridbot/internal/engine"
	"hybridbot/internal/fusion"
	"hybridbot/internal/risk"
)

// Snapshotter is the engine surface the API reads from.
type Snapshotter interface {
	Stats() engine.CycleStats
	Decisions() []fusion.Decision
	Risk() *risk.Manager
}

// Server wraps the echo instance serving the status API.
type Server struct {
	echo   *echo.Echo
	source Snapshotter
	log    zerolog.Logger
}

// New builds the API around an engine snapshot source.
func New(source Snapshotter, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, source: source, log: log.With().Str("component", "api").Logger()}

	api := e.Group("/api")
	api.GET("/status", s.status)
	api.GET("/positions", s.positions)
	api.GET("/decisions", s.decisions)
	return s
}

// Start listens on addr until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go func() {
		<-ctx.Done()
		_ = s.echo.Shutdown(context.Background())
	}()
	s.log.Info().Str("addr", addr).Msg("status api up")
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, s.source.Stats())
}

type positionsResponse struct {
	Open   []risk.Position `json:"open"`
	Closed []risk.Position `json:"closed"`
}

func (s *Server) positions(c echo.Context) error {
	open, closed := s.source.Risk().Snapshot()
	return c.JSON(http.StatusOK, positionsResponse{Open: open, Closed: closed})
}

func (s *Server) decisions(c echo.Context) error {
	return c.JSON(http.StatusOK, s.source.Decisions())
}
