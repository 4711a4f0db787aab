package handlers

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"go.uber.org/zap"

	"linkforge-backend/session-service/middleware"
	"linkforge-backend/session-service/services"
	"linkforge-backend/shared/database/models/auth"
	"linkforge-backend/shared/logger"
)

var registerValidators sync.Once

// CookieConfig describes the session cookie cleared on logout
type CookieConfig struct {
	Name   string
	Secure bool
}

// Handler serves the session and impersonation endpoints
type Handler struct {
	sessions      *services.SessionManager
	impersonation *services.ImpersonationService
	hub           *services.EventHub
	cookie        CookieConfig
	log           *zap.Logger
}

// NewHandler creates a Handler
func NewHandler(sessions *services.SessionManager, impersonation *services.ImpersonationService, hub *services.EventHub, cookie CookieConfig, log *zap.Logger) *Handler {
	registerValidators.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("notblank", validators.NotBlank)
		}
	})
	if cookie.Name == "" {
		cookie.Name = "session_token"
	}
	return &Handler{
		sessions:      sessions,
		impersonation: impersonation,
		hub:           hub,
		cookie:        cookie,
		log:           logger.OrNop(log).Named("handlers"),
	}
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error" example:"Session not found"`
	Code    string `json:"code,omitempty" example:"IMPERSONATION_RESTRICTED"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) currentSession(c *gin.Context) (*auth.SessionState, bool) {
	session, ok := middleware.CurrentSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Authentication required"})
		return nil, false
	}
	return session, true
}

// writeServiceError maps service errors onto HTTP statuses
func (h *Handler) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Session not found"})
	case errors.Is(err, services.ErrTargetNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Target user not found"})
	case errors.Is(err, services.ErrImpersonationNotAllowed):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "Impersonation not allowed", Message: err.Error()})
	case errors.Is(err, services.ErrNoActiveImpersonation):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "No active impersonation"})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}

func (h *Handler) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
}
