package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"linkforge-backend/shared/database/models/audit"
	"linkforge-backend/shared/database/models/auth"
	"linkforge-backend/shared/utils/query"
)

// StartImpersonationRequest is the body of an impersonation start
type StartImpersonationRequest struct {
	TargetUserID string `json:"target_user_id" binding:"required,uuid" example:"6f1c2b9e-3f7a-4d2e-9a41-8c5b7e0d1f23"`
	Reason       string `json:"reason" binding:"required,notblank,max=500" example:"Customer reports missing invoices"`
}

// StartImpersonationResponse is returned once the session acts as the target
type StartImpersonationResponse struct {
	Log     *audit.ImpersonationLog `json:"log"`
	Session *auth.SessionState      `json:"session"`
}

// POST /api/admin/impersonation/start
// @Summary Start impersonation
// @Description Act as an account or publisher. The session switches identity and every request is audited.
// @Tags impersonation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body StartImpersonationRequest true "Target and reason"
// @Success 201 {object} handlers.StartImpersonationResponse
// @Failure 400 {object} handlers.ErrorResponse
// @Failure 403 {object} handlers.ErrorResponse
// @Failure 404 {object} handlers.ErrorResponse
// @Failure 429 {object} handlers.ErrorResponse
// @Router /admin/impersonation/start [post]
func (h *Handler) StartImpersonation(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		return
	}

	var req StartImpersonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	entry, err := h.impersonation.StartImpersonation(c.Request.Context(), session.SessionID, req.TargetUserID, strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, StartImpersonationResponse{
		Log:     entry,
		Session: h.sessions.GetSession(c.Request.Context(), session.SessionID),
	})
}

// POST /api/impersonation/end
// @Summary End impersonation
// @Description Close the audit log and restore the admin identity
// @Tags impersonation
// @Produce json
// @Security BearerAuth
// @Success 200 {object} handlers.CurrentSessionResponse
// @Failure 404 {object} handlers.ErrorResponse
// @Failure 409 {object} handlers.ErrorResponse
// @Router /impersonation/end [post]
func (h *Handler) EndImpersonation(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		return
	}

	if err := h.impersonation.EndImpersonation(c.Request.Context(), session.SessionID); err != nil {
		h.writeServiceError(c, err)
		return
	}

	restored := h.sessions.GetSession(c.Request.Context(), session.SessionID)
	c.JSON(http.StatusOK, CurrentSessionResponse{Session: restored, IsImpersonating: false})
}

// GET /api/admin/impersonation/active
// @Summary Active impersonations
// @Description List audit logs that are still open
// @Tags impersonation
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} handlers.ErrorResponse
// @Router /admin/impersonation/active [get]
func (h *Handler) ActiveImpersonations(c *gin.Context) {
	views := h.impersonation.GetActiveSessions(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"data": views, "count": len(views)})
}

// GET /api/admin/impersonation/logs
// @Summary Impersonation logs
// @Description Recent audit logs, newest first
// @Tags impersonation
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max rows (1-100)" default(20)
// @Param filters[admin_user_id] query string false "Only logs of this admin"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} handlers.ErrorResponse
// @Failure 403 {object} handlers.ErrorResponse
// @Router /admin/impersonation/logs [get]
func (h *Handler) ImpersonationLogs(c *gin.Context) {
	params := query.ParseQueryParams(c, 20, 100)
	if unknown := params.UnknownFilters("admin_user_id"); len(unknown) > 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Unsupported filter", Message: strings.Join(unknown, ", ")})
		return
	}

	views := h.impersonation.GetRecentLogs(c.Request.Context(), params.Filter("admin_user_id"), params.Limit)
	c.JSON(http.StatusOK, gin.H{"data": views, "count": len(views), "limit": params.Limit})
}
