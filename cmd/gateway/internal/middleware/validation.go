package middleware

import (
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxBodyBytes bounds request bodies. Snippet code is capped well below this.
const MaxBodyBytes = 256 << 10

// ValidationMiddleware performs basic input validation for common params
type ValidationMiddleware struct {
	logger *zap.Logger
}

func NewValidationMiddleware(logger *zap.Logger) *ValidationMiddleware {
	return &ValidationMiddleware{logger: logger}
}

func (vm *ValidationMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		if !vm.validateBody(w, r) {
			return
		}

		// Validate by route. Keep this minimal and fast.
		switch {
		case method == http.MethodGet && path == "/api/v1/snippets":
			if !vm.validatePagination(w, r, 1, 100) {
				return
			}

		case strings.HasPrefix(path, "/api/v1/snippets/"):
			if !vm.validatePathID(w, r) {
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// --- helpers ---

func (vm *ValidationMiddleware) validateBody(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return true
	}
	if r.ContentLength == 0 {
		return true
	}
	if r.ContentLength > MaxBodyBytes {
		vm.sendError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return false
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			vm.sendError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return false
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	return true
}

func (vm *ValidationMiddleware) validatePathID(w http.ResponseWriter, r *http.Request) bool {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		vm.sendError(w, http.StatusBadRequest, "Invalid snippet ID format")
		return false
	}
	return true
}

func (vm *ValidationMiddleware) validatePagination(w http.ResponseWriter, r *http.Request, minLimit, maxLimit int) bool {
	q := r.URL.Query()
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < minLimit || n > maxLimit {
			vm.sendError(w, http.StatusBadRequest, "Invalid limit parameter")
			return false
		}
	}
	if o := q.Get("offset"); o != "" {
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 {
			vm.sendError(w, http.StatusBadRequest, "Invalid offset parameter")
			return false
		}
	}
	return true
}

func (vm *ValidationMiddleware) sendError(w http.ResponseWriter, status int, msg string) {
	vm.logger.Debug("Request rejected by validation", zap.Int("status", status), zap.String("reason", msg))
	sendError(w, status, msg)
}
