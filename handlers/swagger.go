package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>jurifix-api - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "jurifix-api", "version": "v1.0.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } },
    "schemas": {
      "Error": { "type": "object", "properties": { "error": { "type": "string" } } },
      "Document": { "type": "object", "properties": {
        "id": {"type":"string"}, "title": {"type":"string"}, "content": {"type":"string"},
        "corrected_content": {"type":"string","nullable":true}, "agent_used": {"type":"string"},
        "status": {"type":"string","enum":["draft","processing","completed","archived"]},
        "word_count": {"type":"integer"}, "corrections_count": {"type":"integer"},
        "processing_time": {"type":"number"}, "version": {"type":"integer"},
        "created_at": {"type":"string","format":"date-time"}, "updated_at": {"type":"string","format":"date-time"} } },
      "CorrectionResult": { "type": "object", "properties": {
        "resultat": {"type":"string"}, "agent_used": {"type":"string"},
        "stats": { "type": "object", "properties": { "processing_time": {"type":"number"}, "word_count": {"type":"integer"}, "corrections_count": {"type":"integer"} } } } }
    }
  },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Exchange Keycloak credentials or authorization code for an access token",
        "security": [],
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"mode":{"type":"string"},"username":{"type":"string"},"password":{"type":"string"},"code":{"type":"string"},"redirect_uri":{"type":"string"}}}}}},
        "responses": { "200": { "description": "access token and user" }, "401": { "description": "authentication failed" } }
      }
    },
    "/auth/logout": {
      "post": { "summary": "Revoke the presented access token", "responses": { "200": { "description": "logged out" } } }
    },
    "/api/v1/me": {
      "get": { "summary": "Get caller identity", "responses": { "200": { "description": "subject, role and claims" } } }
    },
    "/api/process-text": {
      "post": {
        "summary": "Correct a legal text, optionally storing the result on a document",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"texte":{"type":"string"},"text":{"type":"string"},"agent":{"type":"string"},"document_id":{"type":"string"}}}}}},
        "responses": {
          "200": { "description": "corrected text", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/CorrectionResult" } } } },
          "400": { "description": "empty input or unknown agent" },
          "404": { "description": "document not found" },
          "409": { "description": "document archived" },
          "429": { "description": "rate limited" },
          "502": { "description": "completion service failure" }
        }
      }
    },
    "/api/documents": {
      "get": { "summary": "List documents", "parameters": [ {"name":"page","in":"query","schema":{"type":"integer"}}, {"name":"per_page","in":"query","schema":{"type":"integer","maximum":100}} ], "responses": { "200": { "description": "documents, total, pages, current_page" } } },
      "post": { "summary": "Create a draft document", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"title":{"type":"string"},"content":{"type":"string"},"agent":{"type":"string"}}}}}}, "responses": { "201": { "description": "created" } } }
    },
    "/api/documents/save": {
      "post": { "summary": "Create or update a document with its corrected content", "responses": { "200": { "description": "saved" }, "409": { "description": "document archived" } } }
    },
    "/api/documents/{id}": {
      "get": { "summary": "Get a document", "responses": { "200": { "description": "document" }, "404": { "description": "not found" } } },
      "put": { "summary": "Update title, content or status", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"title":{"type":"string"},"content":{"type":"string"},"status":{"type":"string"},"ifVersion":{"type":"integer"}}}}}}, "responses": { "200": { "description": "updated" }, "400": { "description": "invalid status" }, "409": { "description": "archived or version conflict" } } },
      "delete": { "summary": "Delete a document", "responses": { "204": { "description": "deleted" } } }
    },
    "/api/documents/{id}/archive": {
      "post": { "summary": "Archive a document and export its snapshot", "responses": { "200": { "description": "archived" }, "409": { "description": "already archived" } } }
    },
    "/api/documents/{id}/history": {
      "get": { "summary": "List correction history", "responses": { "200": { "description": "history rows" } } }
    },
    "/api/stats": { "get": { "summary": "Caller statistics", "responses": { "200": { "description": "totals, a 6-month series (monthly_stats) and favorite_agent" } } } },
    "/api/agents": { "get": { "summary": "Agents available to the caller", "responses": { "200": { "description": "agents" } } } },
    "/health": { "get": { "summary": "Liveness check", "security": [], "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "security": [], "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
