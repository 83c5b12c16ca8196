// Package httpapi exposes a read/admin REST surface over every channel's
// occupancy, separate from the chat wire protocol itself.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/alexmessoussa/Multi-threaded-Chat-Server-Client/internal/channel"
)

// ChannelOp is the subset of *channel.Channel the REST API can drive.
type ChannelOp interface {
	Kick(ctx context.Context, target string) error
	Empty(ctx context.Context) error
}

// Registry resolves channel names and lists every channel's occupancy.
type Registry interface {
	List() []channel.Summary
	Get(name string) *channel.Channel
}

// Server is the Echo application serving the admin REST API.
type Server struct {
	echo     *echo.Echo
	registry Registry
	shutdown func()
}

// New constructs an Echo app with the admin routes registered. shutdown is
// invoked by POST /shutdown.
func New(registry Registry, shutdown func()) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, registry: registry, shutdown: shutdown}
	s.registerRoutes()
	return s
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			slog.Info("http request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote", c.RealIP(),
			)
			return nil
		}
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/channels", s.handleListChannels)
	s.echo.GET("/channels/:name", s.handleGetChannel)
	s.echo.POST("/channels/:name/kick", s.handleKick)
	s.echo.POST("/channels/:name/empty", s.handleEmpty)
	s.echo.POST("/shutdown", s.handleShutdown)
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down http api")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListChannels(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.List())
}

func (s *Server) handleGetChannel(c echo.Context) error {
	ch := s.registry.Get(c.Param("name"))
	if ch == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no such channel")
	}
	return c.JSON(http.StatusOK, ch.Summary())
}

type targetRequest struct {
	User string `json:"user"`
}

func (s *Server) handleKick(c echo.Context) error {
	ch := s.registry.Get(c.Param("name"))
	if ch == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no such channel")
	}
	var req targetRequest
	if err := c.Bind(&req); err != nil || req.User == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user is required")
	}
	if err := ch.Kick(c.Request().Context(), req.User); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "kicked"})
}

func (s *Server) handleEmpty(c echo.Context) error {
	ch := s.registry.Get(c.Param("name"))
	if ch == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no such channel")
	}
	if err := ch.Empty(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "emptied"})
}

func (s *Server) handleShutdown(c echo.Context) error {
	go s.shutdown()
	return c.JSON(http.StatusOK, map[string]string{"status": "shutting down"})
}
