// Package docs LinkForge session service API documentation
package docs

// Swagger documentation info
// @title LinkForge Session API
// @version 1.0
// @description Server side sessions and audited admin impersonation
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.linkforge.io/support
// @contact.email support@linkforge.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8006
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.

// @tag.name sessions
// @tag.description Session lookup, listing, revocation and logout
// @tag.name impersonation
// @tag.description Admin impersonation of accounts and publishers
// @tag.name admin
// @tag.description Internal admin statistics
