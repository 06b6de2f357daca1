package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/visionbot/internal/auth"
)

type authMode interface {
	Enabled() bool
}

type PingHandler struct {
	logger *slog.Logger
	auth   authMode
}

func NewPingHandler(log *slog.Logger, authenticator *auth.Authenticator) *PingHandler {
	if authenticator == nil {
		return newPingHandler(log, nil)
	}
	return newPingHandler(log, authenticator)
}

func newPingHandler(log *slog.Logger, mode authMode) *PingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PingHandler{logger: log.With(slog.String("handler", "ping")), auth: mode}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
}

func (h *PingHandler) Ping(c echo.Context) error {
	mode := "emulator"
	if h.auth != nil && h.auth.Enabled() {
		mode = "verified"
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"auth":   mode,
	})
}

func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
