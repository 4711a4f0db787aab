package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"linkforge-backend/shared/database/models/auth"
	utils "linkforge-backend/shared/utils/auth"
)

// Context keys set by SessionMiddleware
const (
	ContextSessionKey   = "session"
	ContextSessionIDKey = "sessionID"
	ContextUserIDKey    = "userID"
)

// SessionValidator loads a live session by id
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID string) *auth.SessionState
}

// SessionMiddleware resolves the session from a Bearer token or the session
// cookie and stores it in the context
func SessionMiddleware(sessions SessionValidator, tokens *utils.TokenIssuer, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractTokenFromHeader(c.Request)
		if token == "" {
			if cookie, err := c.Cookie(cookieName); err == nil {
				token = cookie
			}
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		claims, err := tokens.ValidateSessionToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		session := sessions.ValidateSession(c.Request.Context(), claims.SessionID)
		if session == nil || session.OwnerUserID() != claims.UserID {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired or revoked"})
			c.Abort()
			return
		}

		c.Set(ContextSessionKey, session)
		c.Set(ContextSessionIDKey, session.SessionID)
		c.Set(ContextUserIDKey, session.CurrentUser.UserID)

		c.Next()
	}
}

// ExtractTokenFromHeader extracts the token from the Authorization header
func ExtractTokenFromHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	tokenParts := strings.Split(authHeader, " ")
	if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
		return ""
	}

	return tokenParts[1]
}

// CurrentSession returns the session stored by SessionMiddleware
func CurrentSession(c *gin.Context) (*auth.SessionState, bool) {
	value, exists := c.Get(ContextSessionKey)
	if !exists {
		return nil, false
	}
	session, ok := value.(*auth.SessionState)
	return session, ok && session != nil
}

// RequireInternalAdmin rejects sessions whose current user is not an internal admin.
// An impersonating admin is acting as the target and is rejected too.
func RequireInternalAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := CurrentSession(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}
		if !session.CurrentUser.IsInternalAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": "Internal admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
