// Package docs registers the OpenAPI description served at /swagger.
// Regenerate with: swag init -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/chats": {
            "get": {
                "description": "Returns up to limit recent messages, oldest first unless order=desc. Supports weak ETag via If-None-Match and may return 304.",
                "produces": ["application/json"],
                "tags": ["Chats"],
                "summary": "List recent chat messages",
                "operationId": "listChats",
                "parameters": [
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 100, "description": "Maximum messages", "name": "limit", "in": "query"},
                    {"enum": ["asc", "desc"], "type": "string", "default": "asc", "description": "asc or desc", "name": "order", "in": "query"}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.ChatMessage"}},
                        "headers": {"ETag": {"type": "string", "description": "Weak ETag for current result"}}
                    },
                    "304": {"description": "Not Modified", "schema": {"type": "string"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Sanitizes, rate limits (per client address) and moderates a message before storing it.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Chats"],
                "summary": "Submit a chat message",
                "operationId": "postChat",
                "parameters": [
                    {"type": "string", "description": "Replay-safe key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Chat payload", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.PostChatRequest"}}
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {"$ref": "#/definitions/handlers.PostChatResponse"},
                        "headers": {"Idempotency-Replayed": {"type": "string", "description": "true when the response is a replay"}}
                    },
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Rejected by moderation", "schema": {"$ref": "#/definitions/handlers.ModerationErrorResponse"}},
                    "429": {
                        "description": "Chat limit reached",
                        "schema": {"$ref": "#/definitions/handlers.ErrorResponse"},
                        "headers": {"Retry-After": {"type": "string", "description": "Seconds until the next message is allowed"}}
                    },
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/client-info": {
            "get": {
                "description": "Returns the client address used for rate limiting, how many messages it posted in the current window, and how many remain.",
                "produces": ["application/json"],
                "tags": ["Visits"],
                "summary": "Caller address and chat quota",
                "operationId": "clientInfo",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ClientInfoResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/page-views": {
            "get": {
                "description": "Returns the unique-visitor total and raw hit count for every tracked page.",
                "produces": ["application/json"],
                "tags": ["Visits"],
                "summary": "Page view counters",
                "operationId": "pageViews",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.PageView"}}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/stats": {
            "get": {
                "description": "Page view totals for the main pages, chat totals, and the share of home page visitors who posted.",
                "produces": ["application/json"],
                "tags": ["Stats"],
                "summary": "Engagement summary",
                "operationId": "stats",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.Summary"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/unique-visitors": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Visits"],
                "summary": "Unique visitors per page",
                "operationId": "uniqueVisitors",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.PageVisitorCount"}}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.ChatMessage": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "id": {"type": "string"},
                "message": {"type": "string"},
                "user_id": {"type": "string"}
            }
        },
        "domain.PageView": {
            "type": "object",
            "properties": {
                "hits": {"type": "integer"},
                "page": {"type": "string"},
                "total": {"type": "integer"}
            }
        },
        "domain.PageVisitorCount": {
            "type": "object",
            "properties": {
                "page": {"type": "string"},
                "unique_visitors": {"type": "integer"}
            }
        },
        "handlers.ClientInfoResponse": {
            "type": "object",
            "properties": {
                "chatCount": {"type": "integer", "example": 1},
                "ip": {"type": "string", "example": "203.0.113.7"},
                "remaining": {"type": "integer", "example": 2}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "resource not found"},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"}
            }
        },
        "handlers.ModerationErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "forbidden"},
                "detected": {"type": "array", "items": {"type": "string"}},
                "message": {"type": "string", "example": "message rejected by moderation"},
                "method": {"type": "string", "example": "lexical-filter"},
                "reason": {"type": "string", "example": "contains blocked words"},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"},
                "severity": {"type": "string", "example": "high"}
            }
        },
        "handlers.PostChatRequest": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "hello there"},
                "user_id": {"type": "string", "example": "guest-42"}
            }
        },
        "handlers.PostChatResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "example": "vytxeTZskVKR7C7WgdSP3d"},
                "message": {"type": "string", "example": "hello there"},
                "remaining": {"type": "integer", "example": 2}
            }
        },
        "services.Summary": {
            "type": "object",
            "properties": {
                "about_views": {"type": "integer"},
                "chat_users_percent": {"type": "integer"},
                "contact_views": {"type": "integer"},
                "home_views": {"type": "integer"},
                "total_chats": {"type": "integer"},
                "total_views": {"type": "integer"},
                "unique_chat_users": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "go-chatboard API",
	Description:      "Moderated, rate-limited public chat board with page visit tracking.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
