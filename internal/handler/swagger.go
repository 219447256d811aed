package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the data API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(r gin.IRouter) {
	r.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	r.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>erp-core - Swagger</title>
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
  "info": { "title": "erp-core", "version": "v1" },
  "paths": {
    "/api/v1/collections": {
      "get": { "summary": "List collections and the storage backend", "responses": { "200": { "description": "collection names" } } }
    },
    "/api/v1/collections/{collection}": {
      "get": {
        "summary": "Find documents",
        "parameters": [
          {"name":"filter","in":"query","schema":{"type":"string"},"description":"JSON filter, e.g. {\"quantity\":{\"$lt\":30}}"},
          {"name":"sort","in":"query","schema":{"type":"string"},"description":"price,-name or price:1,name:-1"},
          {"name":"skip","in":"query","schema":{"type":"integer"}},
          {"name":"limit","in":"query","schema":{"type":"integer"}},
          {"name":"fields","in":"query","schema":{"type":"string"},"description":"name,price or -stock"}
        ],
        "responses": { "200": { "description": "{items, total}" }, "400": { "description": "bad query" } }
      },
      "post": { "summary": "Create a document", "requestBody": { "content": { "application/json": { "schema": {"type":"object"} } } }, "responses": { "201": { "description": "created document" }, "409": { "description": "duplicate id" } } }
    },
    "/api/v1/collections/{collection}/count": {
      "get": { "summary": "Count documents matching filter", "responses": { "200": { "description": "{count}" } } }
    },
    "/api/v1/collections/{collection}/{id}": {
      "get": { "summary": "Get a document by id", "responses": { "200": { "description": "document" }, "404": { "description": "not found" } } },
      "patch": { "summary": "Merge fields into a document", "responses": { "200": { "description": "updated document" }, "404": { "description": "not found" } } },
      "delete": { "summary": "Delete a document", "responses": { "204": { "description": "deleted" }, "404": { "description": "not found" } } }
    },
    "/api/v1/collections/{collection}/delete": {
      "post": { "summary": "Delete every document matching filter", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"filter":{"type":"object"}}} } } }, "responses": { "200": { "description": "{deleted}" } } }
    },
    "/api/v1/collections/{collection}/aggregate": {
      "post": { "summary": "Run an aggregation pipeline ($match, $sort, $skip, $limit, $group)", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"pipeline":{"type":"array","items":{"type":"object"}}}} } } }, "responses": { "200": { "description": "{results}" } } }
    },
    "/api/v1/collections/{collection}/indexes": {
      "post": { "summary": "Declare an index", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"keys":{"type":"object"}}} } } }, "responses": { "200": { "description": "acknowledged" } } }
    },
    "/api/v1/reports": {
      "get": { "summary": "List reports", "responses": { "200": { "description": "report names" } } }
    },
    "/api/v1/reports/{name}": {
      "get": { "summary": "Run a report", "parameters": [{"name":"limit","in":"query","schema":{"type":"integer"}}], "responses": { "200": { "description": "report" }, "400": { "description": "unknown report" } } }
    },
    "/api/v1/reports/{name}/export": {
      "post": { "summary": "Export a report to object storage", "responses": { "200": { "description": "{key, url}" }, "503": { "description": "export not configured" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
