package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/visionbot/internal/activity"
	"github.com/memohai/visionbot/internal/auth"
	"github.com/memohai/visionbot/internal/dispatch"
)

type requestAuthenticator interface {
	Authenticate(ctx context.Context, r *http.Request, activities []*activity.Activity) bool
}

type activityRouter interface {
	Route(ctx context.Context, a *activity.Activity)
}

const messagesMaxBodyBytes int64 = 1 << 20 // 1 MiB

// MessagesHandler is the bot messaging endpoint the channel posts activities to.
type MessagesHandler struct {
	logger *slog.Logger
	auth   requestAuthenticator
	router activityRouter
}

// NewMessagesHandler creates the messaging endpoint handler.
func NewMessagesHandler(log *slog.Logger, authenticator requestAuthenticator, router activityRouter) *MessagesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &MessagesHandler{
		logger: log.With(slog.String("handler", "messages")),
		auth:   authenticator,
		router: router,
	}
}

// NewMessagesServerHandler is a DI-friendly constructor for fx/dig, using concrete types as parameters.
func NewMessagesServerHandler(log *slog.Logger, authenticator *auth.Authenticator, router *dispatch.Router) *MessagesHandler {
	return NewMessagesHandler(log, authenticator, router)
}

// Register registers the messaging routes.
func (h *MessagesHandler) Register(e *echo.Echo) {
	e.GET("/api/messages", h.Handle)
	e.POST("/api/messages", h.Handle)
}

// Handle godoc
// @Summary Bot messaging endpoint
// @Description Receives activities from the channel, authenticates them and routes them by type
// @Tags messages
// @Accept json
// @Success 202
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Router /api/messages [post]
func (h *MessagesHandler) Handle(c echo.Context) error {
	if h.auth == nil || h.router == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "messages endpoint dependencies not configured")
	}
	ctx := c.Request().Context()

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, messagesMaxBodyBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
	}
	if int64(len(payload)) > messagesMaxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("payload too large: max %d bytes", messagesMaxBodyBytes))
	}

	act, err := activity.Parse(payload)
	if err != nil {
		h.logger.Warn("malformed activity", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, "malformed activity")
	}

	if !h.auth.Authenticate(ctx, c.Request(), []*activity.Activity{act}) {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	if act != nil {
		h.logger.Debug("activity received",
			slog.String("type", string(act.Type)),
			slog.String("conversation_id", act.Conversation.ID),
		)
		h.router.Route(ctx, act)
	}
	return c.NoContent(http.StatusAccepted)
}
