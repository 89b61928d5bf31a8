package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// OpenAPIHandler serves the OpenAPI specification
type OpenAPIHandler struct {
	spec map[string]interface{}
}

// NewOpenAPIHandler creates a new OpenAPI handler. serverURL is advertised
// as the API base when set.
func NewOpenAPIHandler(serverURL string) *OpenAPIHandler {
	return &OpenAPIHandler{
		spec: generateOpenAPISpec(serverURL),
	}
}

// ServeSpec handles GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.spec)
}

type obj = map[string]interface{}

func ref(name string) obj {
	return obj{"$ref": "#/components/schemas/" + name}
}

func response(description string, schema obj) obj {
	r := obj{"description": description}
	if schema != nil {
		r["content"] = obj{"application/json": obj{"schema": schema}}
	}
	return r
}

// operation builds an operation object. auth is "", "optional" or "required".
func operation(summary, auth string, body obj, ok string, okSchema obj, errs ...string) obj {
	op := obj{"summary": summary}
	switch auth {
	case "required":
		op["security"] = []obj{{"bearerAuth": []string{}}}
	case "optional":
		op["security"] = []obj{{}, {"bearerAuth": []string{}}}
	default:
		op["security"] = []obj{}
	}
	if body != nil {
		op["requestBody"] = obj{"required": true, "content": obj{"application/json": obj{"schema": body}}}
	}

	responses := obj{ok: response("Success", okSchema)}
	for _, code := range errs {
		status, _ := strconv.Atoi(code)
		responses[code] = response(http.StatusText(status), ref("Error"))
	}
	op["responses"] = responses
	return op
}

func param(name, in, typ string, required bool) obj {
	return obj{"name": name, "in": in, "required": required, "schema": obj{"type": typ}}
}

func withParams(op obj, params ...obj) obj {
	op["parameters"] = params
	return op
}

func props(fields ...string) obj {
	out := obj{}
	for i := 0; i+1 < len(fields); i += 2 {
		field := obj{"type": fields[i+1]}
		if fields[i+1] == "array" {
			field["items"] = obj{"type": "string"}
		}
		out[fields[i]] = field
	}
	return out
}

// generateOpenAPISpec creates the OpenAPI 3.0 specification
func generateOpenAPISpec(serverURL string) map[string]interface{} {
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
	idParam := param("id", "path", "string", true)

	return obj{
		"openapi": "3.0.0",
		"info": obj{
			"title":       "Snippets API",
			"version":     Version,
			"description": "Share code snippets and estimate their time complexity",
		},
		"servers": []obj{{"url": serverURL}},
		"paths": obj{
			"/health":    obj{"get": operation("Liveness check", "", nil, "200", ref("Health"))},
			"/readiness": obj{"get": operation("Readiness check", "", nil, "200", ref("Health"), "503")},
			"/api/v1/auth/register": obj{"post": operation("Create an account", "", ref("RegisterRequest"),
				"201", ref("AuthResponse"), "400", "409", "429")},
			"/api/v1/auth/login": obj{"post": operation("Sign in", "", ref("LoginRequest"),
				"200", ref("AuthResponse"), "400", "401", "429")},
			"/api/v1/auth/logout": obj{"post": operation("Revoke the current token", "required", nil, "200", ref("Message"), "401")},
			"/api/v1/auth/me": obj{
				"get":   operation("Current user", "required", nil, "200", ref("User"), "401"),
				"patch": operation("Update name or username", "required", ref("ProfileUpdate"), "200", ref("User"), "400", "401", "409"),
			},
			"/api/v1/auth/password": obj{"post": operation("Change password", "required", ref("PasswordChange"),
				"200", ref("Message"), "400", "401")},
			"/api/v1/snippets": obj{
				"get": withParams(operation("List visible snippets", "optional", nil, "200", ref("SnippetList"), "400"),
					param("q", "query", "string", false),
					param("language", "query", "string", false),
					param("tag", "query", "string", false),
					param("author", "query", "string", false),
					param("limit", "query", "integer", false),
					param("offset", "query", "integer", false)),
				"post": withParams(operation("Create a snippet", "required", ref("SnippetCreate"), "201", ref("Snippet"), "400", "401", "409", "422"),
					param("Idempotency-Key", "header", "string", false)),
			},
			"/api/v1/snippets/{id}": obj{
				"get":    withParams(operation("Get a snippet", "optional", nil, "200", ref("Snippet"), "400", "404"), idParam),
				"patch":  withParams(operation("Update a snippet", "required", ref("SnippetUpdate"), "200", ref("Snippet"), "400", "401", "403", "404"), idParam),
				"delete": withParams(operation("Delete a snippet", "required", nil, "204", nil, "401", "403", "404"), idParam),
			},
			"/api/v1/dashboard": obj{"get": operation("The caller's snippets and counts", "required", nil, "200", obj{"type": "object"}, "401")},
			"/api/v1/users/{username}": obj{"get": withParams(operation("Public profile", "", nil, "200", obj{"type": "object"}, "404"),
				param("username", "path", "string", true))},
			"/api/v1/languages": obj{"get": operation("Public snippet counts per language", "", nil, "200", obj{"type": "object"})},
			"/api/v1/tags": obj{"get": withParams(operation("Tag catalog", "", nil, "200", obj{"type": "object"}, "400"),
				param("type", "query", "string", false))},
			"/api/v1/analyze": obj{"post": operation("Estimate time complexity", "", ref("AnalyzeRequest"),
				"200", ref("Analysis"), "400")},
			"/api/v1/complexity/{label}": obj{"get": withParams(operation("Display hints for a complexity label", "", nil, "200", ref("ComplexityInfo")),
				param("label", "path", "string", true))},
		},
		"components": obj{
			"securitySchemes": obj{
				"bearerAuth": obj{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
			"schemas": obj{
				"Error":   obj{"type": "object", "properties": props("error", "string", "message", "string", "fields", "object")},
				"Message": obj{"type": "object", "properties": props("message", "string")},
				"Health":  obj{"type": "object", "properties": props("status", "string", "version", "string", "time", "string", "checks", "object")},
				"User": obj{"type": "object", "properties": props("id", "string", "email", "string", "name", "string",
					"username", "string", "createdAt", "string", "updatedAt", "string")},
				"AuthResponse": obj{"type": "object", "properties": obj{
					"user": ref("User"), "token": obj{"type": "string"}, "tokenType": obj{"type": "string"}, "expiresAt": obj{"type": "string"},
				}},
				"RegisterRequest": obj{"type": "object", "required": []string{"email", "password", "name", "username"},
					"properties": props("email", "string", "password", "string", "name", "string", "username", "string")},
				"LoginRequest": obj{"type": "object", "required": []string{"email", "password"},
					"properties": props("email", "string", "password", "string")},
				"ProfileUpdate":  obj{"type": "object", "properties": props("name", "string", "username", "string")},
				"PasswordChange": obj{"type": "object", "required": []string{"currentPassword", "newPassword"}, "properties": props("currentPassword", "string", "newPassword", "string")},
				"SnippetCreate": obj{"type": "object", "required": []string{"title", "code", "language"},
					"properties": props("title", "string", "description", "string", "code", "string", "language", "string",
						"tags", "array", "isPublic", "boolean", "timeComplexity", "string")},
				"SnippetUpdate": obj{"type": "object",
					"properties": props("title", "string", "description", "string", "code", "string", "language", "string",
						"tags", "array", "isPublic", "boolean", "timeComplexity", "string")},
				"Snippet": obj{"type": "object",
					"properties": props("id", "string", "title", "string", "description", "string", "code", "string",
						"language", "string", "authorId", "string", "isPublic", "boolean", "timeComplexity", "string",
						"tags", "array", "createdAt", "string", "updatedAt", "string", "author", "object",
						"shareUrl", "string", "lineCount", "integer")},
				"SnippetList": obj{"type": "object", "properties": obj{
					"snippets": obj{"type": "array", "items": ref("Snippet")},
					"total":    obj{"type": "integer"}, "limit": obj{"type": "integer"}, "offset": obj{"type": "integer"},
				}},
				"AnalyzeRequest": obj{"type": "object", "required": []string{"code"}, "properties": props("code", "string", "language", "string")},
				"Analysis": obj{"type": "object", "properties": props("estimatedComplexity", "string", "confidence", "number",
					"reasoning", "array", "patterns", "array", "color", "string", "description", "string")},
				"ComplexityInfo": obj{"type": "object", "properties": props("label", "string", "color", "string", "description", "string", "rank", "number")},
			},
		},
	}
}
