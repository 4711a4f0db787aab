package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"linkforge-backend/session-service/services"
	"linkforge-backend/shared/database/models/auth"
	"linkforge-backend/shared/logger"
	"linkforge-backend/shared/metrics"
)

const (
	// RestrictedErrorCode is returned when an impersonating admin hits a restricted endpoint
	RestrictedErrorCode = "IMPERSONATION_RESTRICTED"

	maxRecordedPayload = 64 << 10
)

var redactedKeys = []string{"password", "secret", "token", "card"}

// ImpersonationAuditor checks and records requests made while impersonating
type ImpersonationAuditor interface {
	RestrictedPattern(session *auth.SessionState, endpoint string) (string, bool)
	LogAction(ctx context.Context, logID string, action services.ActionRecord)
}

// RestrictionMiddleware blocks restricted endpoints for impersonating sessions
// and records every other request they make. It must run after SessionMiddleware.
func RestrictionMiddleware(auditor ImpersonationAuditor, events services.EventPublisher, log *zap.Logger) gin.HandlerFunc {
	if events == nil {
		events = services.NopPublisher{}
	}
	log = logger.OrNop(log).Named("restriction")

	return func(c *gin.Context) {
		session, ok := CurrentSession(c)
		if !ok || !session.IsImpersonating() {
			c.Next()
			return
		}

		endpoint := c.Request.URL.Path
		method := c.Request.Method
		logID := session.Impersonation.LogID
		payload := capturePayload(c)

		if pattern, restricted := auditor.RestrictedPattern(session, endpoint); restricted {
			metrics.RestrictedActionBlocks.WithLabelValues(method).Inc()
			log.Warn("restricted action blocked during impersonation",
				zap.String("session_id", session.SessionID),
				zap.String("log_id", logID),
				zap.String("method", method),
				zap.String("endpoint", endpoint),
				zap.String("pattern", pattern),
			)

			c.JSON(http.StatusForbidden, gin.H{
				"error":   "This action is not permitted while impersonating",
				"code":    RestrictedErrorCode,
				"message": "End the impersonation session to perform this action.",
			})
			c.Abort()

			auditor.LogAction(c.Request.Context(), logID, services.ActionRecord{
				ActionType:     "blocked",
				Endpoint:       endpoint,
				Method:         method,
				RequestPayload: payload,
				ResponseStatus: http.StatusForbidden,
			})
			events.Publish(session.SessionID, services.SessionEvent{
				Type:      services.EventActionBlocked,
				SessionID: session.SessionID,
				LogID:     logID,
				Endpoint:  endpoint,
				Message:   method + " " + endpoint,
				Timestamp: time.Now().UTC(),
			})
			return
		}

		c.Next()

		auditor.LogAction(c.Request.Context(), logID, services.ActionRecord{
			ActionType:     actionType(method),
			Endpoint:       endpoint,
			Method:         method,
			RequestPayload: payload,
			ResponseStatus: c.Writer.Status(),
		})
	}
}

func actionType(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "view"
	default:
		return "modify"
	}
}

// capturePayload reads a JSON request body for the audit trail and puts it
// back for the handler. Sensitive top-level fields are masked.
func capturePayload(c *gin.Context) json.RawMessage {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if !strings.HasPrefix(c.ContentType(), "application/json") {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRecordedPayload+1))
	if err != nil {
		return nil
	}
	rest := c.Request.Body
	c.Request.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(body), rest), rest}

	if len(body) > maxRecordedPayload {
		return nil
	}
	return redact(body)
}

func redact(body []byte) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		if json.Valid(body) {
			return body
		}
		return nil
	}

	changed := false
	for key := range fields {
		lower := strings.ToLower(key)
		for _, sensitive := range redactedKeys {
			if strings.Contains(lower, sensitive) {
				fields[key] = json.RawMessage(`"[REDACTED]"`)
				changed = true
				break
			}
		}
	}
	if !changed {
		return body
	}

	masked, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return masked
}
