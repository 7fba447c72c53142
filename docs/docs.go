// Package docs registers the OpenAPI document served under /swagger.
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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Store and remote health",
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Service Unavailable"}
                }
            }
        },
        "/api/sync/{type}/reconcile": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Reconcile"],
                "summary": "Reconcile one entity type",
                "parameters": [
                    {"type": "string", "name": "type", "in": "path", "required": true},
                    {"type": "boolean", "name": "force", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Index not found"}
                }
            }
        },
        "/api/sync/{type}/verify": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Reconcile"],
                "summary": "Verify remote state for one entity type",
                "parameters": [
                    {"type": "string", "name": "type", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/tasks": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Tasks"],
                "summary": "List tracked remote tasks",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/webhooks/meilisearch/tasks": {
            "post": {
                "consumes": ["application/x-ndjson"],
                "produces": ["application/json"],
                "tags": ["Tasks"],
                "summary": "Receive gzip NDJSON task notifications",
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request"},
                    "404": {"description": "Unknown task"}
                }
            }
        },
        "/api/jobs": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Jobs"],
                "summary": "List scheduled jobs",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Document Sync API",
	Description:      "Keeps local entities in sync with search indexes and external tables.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
