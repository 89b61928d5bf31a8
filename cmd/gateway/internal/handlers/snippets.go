package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/snippets/internal/auth"
	"github.com/Kocoro-lab/snippets/internal/snippets"
)

// SnippetHandler handles snippet, profile and catalog requests
type SnippetHandler struct {
	service *snippets.Service
	users   snippets.UserLookup
	logger  *zap.Logger
}

// NewSnippetHandler creates a new snippet handler
func NewSnippetHandler(service *snippets.Service, users snippets.UserLookup, logger *zap.Logger) *SnippetHandler {
	return &SnippetHandler{
		service: service,
		users:   users,
		logger:  logger,
	}
}

// viewer returns the signed-in user or nil
func viewer(r *http.Request) *auth.UserContext {
	userCtx, _ := auth.UserFromContext(r.Context())
	return userCtx
}

// List handles GET /api/v1/snippets
func (h *SnippetHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := snippets.ListOptions{
		Query:    q.Get("q"),
		Language: q.Get("language"),
		Tag:      q.Get("tag"),
	}
	opts.Limit, _ = strconv.Atoi(q.Get("limit"))
	opts.Offset, _ = strconv.Atoi(q.Get("offset"))

	if author := q.Get("author"); author != "" {
		authorID, err := h.resolveAuthor(r, author)
		if errors.Is(err, auth.ErrUserNotFound) {
			// unknown authors own nothing
			authorID, err = uuid.Nil, nil
		}
		if err != nil {
			handleServiceError(w, h.logger, r, err)
			return
		}
		opts.AuthorID = &authorID
	}

	result, err := h.service.List(r.Context(), viewer(r), opts)
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// resolveAuthor accepts a user ID or a username
func (h *SnippetHandler) resolveAuthor(r *http.Request, author string) (uuid.UUID, error) {
	if id, err := uuid.Parse(author); err == nil {
		return id, nil
	}
	user, err := h.users.GetUserByUsername(r.Context(), author)
	if err != nil {
		return uuid.Nil, err
	}
	return user.ID, nil
}

// Create handles POST /api/v1/snippets
func (h *SnippetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req snippets.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	snippet, err := h.service.Create(r.Context(), viewer(r), &req)
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/snippets/"+snippet.ID.String())
	writeJSON(w, http.StatusCreated, snippet)
}

// Get handles GET /api/v1/snippets/{id}
func (h *SnippetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	snippet, err := h.service.Get(r.Context(), viewer(r), id)
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, snippet)
}

// Update handles PATCH /api/v1/snippets/{id}
func (h *SnippetHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req snippets.UpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	snippet, err := h.service.Update(r.Context(), viewer(r), id, &req)
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, snippet)
}

// Delete handles DELETE /api/v1/snippets/{id}
func (h *SnippetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), viewer(r), id); err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Dashboard handles GET /api/v1/dashboard
func (h *SnippetHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.service.Dashboard(r.Context(), viewer(r))
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dashboard)
}

// Profile handles GET /api/v1/users/{username}
func (h *SnippetHandler) Profile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.PublicProfile(r.Context(), r.PathValue("username"))
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// Languages handles GET /api/v1/languages
func (h *SnippetHandler) Languages(w http.ResponseWriter, r *http.Request) {
	langs, err := h.service.Languages(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"languages": langs})
}

// Tags handles GET /api/v1/tags
func (h *SnippetHandler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.ListTags(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}
	if tags == nil {
		tags = []snippets.Tag{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"tags": tags})
}

// pathID parses the {id} path segment
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		sendError(w, http.StatusBadRequest, "Invalid snippet ID format")
		return uuid.Nil, false
	}
	return id, true
}
