package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"linkforge-backend/session-service/handlers"
	"linkforge-backend/session-service/middleware"
	"linkforge-backend/session-service/services"
	utils "linkforge-backend/shared/utils/auth"
)

// Dependencies are the wired components the router exposes
type Dependencies struct {
	Sessions      *services.SessionManager
	Impersonation *services.ImpersonationService
	Hub           *services.EventHub
	Tokens        *utils.TokenIssuer
	RateLimiter   *middleware.RateLimiter
	Cookie        handlers.CookieConfig
	// AllowedOrigins feeds CORS; empty allows none
	AllowedOrigins []string
	// ImpersonationStartLimit caps starts per admin
	ImpersonationStartLimit middleware.RateLimitConfig
	// WebSocketConnectLimit caps event stream upgrades per client IP
	WebSocketConnectLimit middleware.RateLimitConfig
	Logger                *zap.Logger
}

// NewRouter builds the HTTP surface of the session service
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(deps.Logger), middleware.MetricsMiddleware())

	if len(deps.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	handler := handlers.NewHandler(deps.Sessions, deps.Impersonation, deps.Hub, deps.Cookie, deps.Logger)

	sessionAuth := middleware.SessionMiddleware(deps.Sessions, deps.Tokens, deps.Cookie.Name)
	restrictions := middleware.RestrictionMiddleware(deps.Impersonation, deps.Hub, deps.Logger)

	api := router.Group("/api", sessionAuth, restrictions)
	{
		api.GET("/sessions/current", handler.GetCurrentSession)
		api.GET("/sessions", handler.ListSessions)
		api.DELETE("/sessions/:id", handler.RevokeSession)
		api.POST("/auth/logout", handler.Logout)
		api.POST("/impersonation/end", handler.EndImpersonation)

		admin := api.Group("/admin", middleware.RequireInternalAdmin())
		{
			startLimit := deps.ImpersonationStartLimit
			if startLimit.MaxRequests > 0 && deps.RateLimiter != nil {
				admin.POST("/impersonation/start", deps.RateLimiter.ImpersonationStartRateLimitMiddleware(startLimit), handler.StartImpersonation)
			} else {
				admin.POST("/impersonation/start", handler.StartImpersonation)
			}
			admin.GET("/impersonation/active", handler.ActiveImpersonations)
			admin.GET("/impersonation/logs", handler.ImpersonationLogs)
			admin.GET("/sessions/stats", handler.SessionStats)
		}
	}

	wsLimit := deps.WebSocketConnectLimit
	if wsLimit.MaxRequests > 0 && deps.RateLimiter != nil {
		router.GET("/ws/sessions", deps.RateLimiter.RateLimitMiddleware("ws-connect", wsLimit), sessionAuth, handler.SessionEvents)
	} else {
		router.GET("/ws/sessions", sessionAuth, handler.SessionEvents)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "session",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return router
}
