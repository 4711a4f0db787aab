package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mileusna/useragent"
	"go.uber.org/zap"

	"linkforge-backend/session-service/services"
	"linkforge-backend/shared/database/models/auth"
)

// SessionInfo is one entry of the session listing
type SessionInfo struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	LastActivity    time.Time `json:"last_activity"`
	IPAddress       string    `json:"ip_address"`
	Device          string    `json:"device" example:"Chrome on macOS"`
	IsCurrent       bool      `json:"is_current"`
	IsImpersonating bool      `json:"is_impersonating"`
}

// CurrentSessionResponse describes the caller's session
type CurrentSessionResponse struct {
	Session         *auth.SessionState `json:"session"`
	IsImpersonating bool               `json:"is_impersonating"`
}

// describeDevice turns a user agent into a short label
func describeDevice(userAgent string) string {
	if userAgent == "" {
		return "Unknown device"
	}
	ua := useragent.Parse(userAgent)
	switch {
	case ua.Bot:
		return "Bot"
	case ua.Name != "" && ua.OS != "":
		return fmt.Sprintf("%s on %s", ua.Name, ua.OS)
	case ua.Name != "":
		return ua.Name
	case ua.OS != "":
		return ua.OS
	}
	return "Unknown device"
}

// GET /api/sessions/current
// @Summary Current session
// @Description Return the caller's session including any active impersonation
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} handlers.CurrentSessionResponse
// @Failure 401 {object} handlers.ErrorResponse
// @Router /sessions/current [get]
func (h *Handler) GetCurrentSession(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, CurrentSessionResponse{Session: session, IsImpersonating: session.IsImpersonating()})
}

// GET /api/sessions
// @Summary List sessions
// @Description List the live sessions of the logged in user, newest first
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {array} handlers.SessionInfo
// @Failure 401 {object} handlers.ErrorResponse
// @Router /sessions [get]
func (h *Handler) ListSessions(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		return
	}

	states := h.sessions.GetUserSessions(c.Request.Context(), session.OwnerUserID())
	infos := make([]SessionInfo, 0, len(states))
	for i := range states {
		state := &states[i]
		infos = append(infos, SessionInfo{
			ID:              state.SessionID,
			CreatedAt:       state.CreatedAt,
			ExpiresAt:       state.ExpiresAt,
			LastActivity:    state.LastActivity,
			IPAddress:       state.IPAddress,
			Device:          describeDevice(state.UserAgent),
			IsCurrent:       state.SessionID == session.SessionID,
			IsImpersonating: state.IsImpersonating(),
		})
	}

	c.JSON(http.StatusOK, infos)
}

// DELETE /api/sessions/:id
// @Summary Revoke a session
// @Description Revoke one of the logged in user's sessions
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} handlers.ErrorResponse
// @Router /sessions/{id} [delete]
func (h *Handler) RevokeSession(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	targetID := c.Param("id")
	var target *auth.SessionState
	states := h.sessions.GetUserSessions(ctx, session.OwnerUserID())
	for i := range states {
		if states[i].SessionID == targetID {
			target = &states[i]
			break
		}
	}
	if target == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Session not found"})
		return
	}

	h.endImpersonationBeforeDelete(c, target)

	if err := h.sessions.DeleteSession(ctx, targetID); err != nil {
		h.writeServiceError(c, err)
		return
	}

	h.hub.Publish(targetID, services.SessionEvent{Type: services.EventSessionRevoked, Message: "session revoked"})
	if targetID == session.SessionID {
		h.clearCookie(c)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session revoked"})
}

// POST /api/auth/logout
// @Summary Logout
// @Description End any impersonation and delete the current session
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Failure 401 {object} handlers.ErrorResponse
// @Router /auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	h.endImpersonationBeforeDelete(c, session)

	if err := h.sessions.DeleteSession(ctx, session.SessionID); err != nil {
		h.writeServiceError(c, err)
		return
	}

	h.hub.Publish(session.SessionID, services.SessionEvent{Type: services.EventSessionRevoked, Message: "logged out"})
	h.clearCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// GET /api/admin/sessions/stats
// @Summary Session statistics
// @Description Count sessions by state
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} services.SessionStats
// @Failure 403 {object} handlers.ErrorResponse
// @Router /admin/sessions/stats [get]
func (h *Handler) SessionStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.GetSessionStats(c.Request.Context()))
}

// GET /ws/sessions - websocket streaming events for the current session
func (h *Handler) SessionEvents(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		return
	}
	h.hub.ServeSession(c, session.SessionID)
}

// endImpersonationBeforeDelete closes the audit log of an impersonating session
// so it ends as admin_ended. Failures leave the log to the reconciler.
func (h *Handler) endImpersonationBeforeDelete(c *gin.Context, session *auth.SessionState) {
	if !session.IsImpersonating() {
		return
	}
	if err := h.impersonation.EndImpersonation(c.Request.Context(), session.SessionID); err != nil {
		h.log.Warn("failed to end impersonation before deleting session; reconciler will close the log",
			zap.String("session_id", session.SessionID),
			zap.Error(err),
		)
	}
}
