// Package server exposes the bridge to observers: a websocket push channel
// plus a small JSON API over echo.
package server

import (
	"net/http"
	"time"

	"github.com/hilworks/arduino_bridge/pkg/bridge"
	"github.com/hilworks/arduino_bridge/pkg/broadcast"
	"github.com/hilworks/arduino_bridge/pkg/historydb"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Server struct {
	engine         *bridge.Engine
	bus            *broadcast.Broadcaster
	echo           *echo.Echo
	commandTimeout time.Duration
	historyEnabled bool
}

func NewServer(engine *bridge.Engine, bus *broadcast.Broadcaster, commandTimeout time.Duration, historyEnabled bool) *Server {
	s := &Server{
		engine:         engine,
		bus:            bus,
		commandTimeout: commandTimeout,
		historyEnabled: historyEnabled,
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.GET("/", s.handleRoot)
	e.GET("/ws", s.handleWS)
	e.GET("/api/pins", s.handlePins)
	e.GET("/api/status", s.handleStatus)
	e.GET("/api/history", s.handleHistory)
	e.PUT("/api/display", s.handleDisplay)

	s.echo = e
	return s
}

// Start blocks serving HTTP on the given listener address.
func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

// Handler exposes the HTTP handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Arduino HIL Bridge API",
		"status":  "running",
	})
}

func (s *Server) handlePins(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleStatus(c echo.Context) error {
	snapshot := s.engine.Snapshot()
	return c.JSON(http.StatusOK, map[string]any{
		"connected":   snapshot.Connected,
		"transport":   snapshot.Transport,
		"subscribers": s.bus.SubscriberCount(),
		"pending":     s.engine.PendingCount(),
		"counters":    s.engine.Counters(),
	})
}

func (s *Server) handleHistory(c echo.Context) error {
	if !s.historyEnabled {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "history recording is disabled",
		})
	}
	commands, err := historydb.RecentCommandEvents(100)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	pins, err := historydb.RecentPinEvents(100)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"commands": commands,
		"pins":     pins,
	})
}

func (s *Server) handleDisplay(c echo.Context) error {
	var settings DisplaySettings
	if err := c.Bind(&settings); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}
	s.engine.SetShowFrequency(settings.ShowFrequency)
	return c.JSON(http.StatusOK, settings)
}
