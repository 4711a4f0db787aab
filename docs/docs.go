package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "termsOfService": "http://swagger.io/terms/",
        "contact": {
            "name": "API Support",
            "url": "http://www.linkforge.io/support",
            "email": "support@linkforge.io"
        },
        "license": {
            "name": "Apache 2.0",
            "url": "http://www.apache.org/licenses/LICENSE-2.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/admin/impersonation/active": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "List audit logs that are still open",
                "produces": ["application/json"],
                "tags": ["impersonation"],
                "summary": "Active impersonations",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/impersonation/logs": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Recent audit logs, newest first",
                "produces": ["application/json"],
                "tags": ["impersonation"],
                "summary": "Impersonation logs",
                "parameters": [
                    {"type": "integer", "default": 20, "description": "Max rows (1-100)", "name": "limit", "in": "query"},
                    {"type": "string", "description": "Only logs of this admin", "name": "filters[admin_user_id]", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/impersonation/start": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Act as an account or publisher. The session switches identity and every request is audited.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["impersonation"],
                "summary": "Start impersonation",
                "parameters": [
                    {"description": "Target and reason", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.StartImpersonationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.StartImpersonationResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/sessions/stats": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Count sessions by state",
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Session statistics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.SessionStats"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "End any impersonation and delete the current session",
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Logout",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/impersonation/end": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Close the audit log and restore the admin identity",
                "produces": ["application/json"],
                "tags": ["impersonation"],
                "summary": "End impersonation",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.CurrentSessionResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/sessions": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "List the live sessions of the logged in user, newest first",
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "List sessions",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/handlers.SessionInfo"}}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/sessions/current": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Return the caller's session including any active impersonation",
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Current session",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.CurrentSessionResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/sessions/{id}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "description": "Revoke one of the logged in user's sessions",
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Revoke a session",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "IMPERSONATION_RESTRICTED"},
                "error": {"type": "string", "example": "Session not found"},
                "message": {"type": "string"}
            }
        },
        "handlers.CurrentSessionResponse": {
            "type": "object",
            "properties": {
                "is_impersonating": {"type": "boolean"},
                "session": {"type": "object"}
            }
        },
        "handlers.SessionInfo": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "device": {"type": "string", "example": "Chrome on macOS"},
                "expires_at": {"type": "string"},
                "id": {"type": "string"},
                "ip_address": {"type": "string"},
                "is_current": {"type": "boolean"},
                "is_impersonating": {"type": "boolean"},
                "last_activity": {"type": "string"}
            }
        },
        "handlers.StartImpersonationRequest": {
            "type": "object",
            "required": ["reason", "target_user_id"],
            "properties": {
                "reason": {"type": "string", "maxLength": 500, "example": "Customer reports missing invoices"},
                "target_user_id": {"type": "string", "example": "6f1c2b9e-3f7a-4d2e-9a41-8c5b7e0d1f23"}
            }
        },
        "handlers.StartImpersonationResponse": {
            "type": "object",
            "properties": {
                "log": {"type": "object"},
                "session": {"type": "object"}
            }
        },
        "services.SessionStats": {
            "type": "object",
            "properties": {
                "active": {"type": "integer"},
                "expired": {"type": "integer"},
                "impersonating": {"type": "integer"},
                "total": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and the session token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8006",
	BasePath:         "/api",
	Schemes:          []string{"http", "https"},
	Title:            "LinkForge Session API",
	Description:      "Server side sessions and audited admin impersonation",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
