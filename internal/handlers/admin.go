package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/visionbot/internal/auth"
	"github.com/memohai/visionbot/internal/config"
)

// ErrorResponse is the JSON body echo writes for HTTP errors.
type ErrorResponse struct {
	Message string `json:"message"`
}

type originLister interface {
	List() []string
}

// TrustedOriginsResponse lists the service origins vouched for by authenticated requests.
type TrustedOriginsResponse struct {
	Subject string   `json:"subject"`
	Origins []string `json:"origins"`
}

// AdminHandler serves operator endpoints guarded by admin JWTs.
type AdminHandler struct {
	logger  *slog.Logger
	secret  string
	origins originLister
}

// NewAdminHandler creates the operator endpoints. With an empty secret no routes are registered.
func NewAdminHandler(log *slog.Logger, secret string, origins originLister) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{
		logger:  log.With(slog.String("handler", "admin")),
		secret:  strings.TrimSpace(secret),
		origins: origins,
	}
}

// NewAdminServerHandler is a DI-friendly constructor for fx/dig.
func NewAdminServerHandler(log *slog.Logger, cfg config.Config, authenticator *auth.Authenticator) *AdminHandler {
	return NewAdminHandler(log, cfg.Admin.JWTSecret, authenticator.Trusted())
}

// Register registers admin routes behind the JWT middleware.
func (h *AdminHandler) Register(e *echo.Echo) {
	if h.secret == "" {
		h.logger.Info("admin endpoints disabled: admin.jwt_secret not set")
		return
	}
	g := e.Group("/admin", auth.JWTMiddleware(h.secret, nil))
	g.GET("/trusted-origins", h.TrustedOrigins)
}

// TrustedOrigins godoc
// @Summary List trusted service origins
// @Tags admin
// @Security BearerAuth
// @Success 200 {object} TrustedOriginsResponse
// @Failure 401 {object} ErrorResponse
// @Router /admin/trusted-origins [get]
func (h *AdminHandler) TrustedOrigins(c echo.Context) error {
	subject, err := auth.AdminSubjectFromContext(c)
	if err != nil {
		return err
	}
	origins := []string{}
	if h.origins != nil {
		origins = h.origins.List()
	}
	return c.JSON(http.StatusOK, TrustedOriginsResponse{Subject: subject, Origins: origins})
}
