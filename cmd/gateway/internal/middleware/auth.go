package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	authpkg "github.com/Kocoro-lab/snippets/internal/auth"
)

// TokenValidator verifies bearer tokens
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*authpkg.UserContext, error)
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	authService TokenValidator
	logger      *zap.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authService TokenValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		logger:      logger,
	}
}

// Middleware rejects requests without a valid bearer token
func (m *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = withClientInfo(r)

		token := extractToken(r)
		if token == "" {
			m.sendUnauthorized(w, "Access token required")
			return
		}

		userCtx, err := m.authService.ValidateToken(r.Context(), token)
		if err != nil {
			m.logger.Debug("Token validation failed",
				zap.Error(err),
				zap.String("path", r.URL.Path),
			)
			m.sendUnauthorized(w, "Invalid or expired token")
			return
		}

		m.logger.Debug("Request authenticated",
			zap.String("user_id", userCtx.UserID.String()),
			zap.String("path", r.URL.Path),
		)

		next.ServeHTTP(w, r.WithContext(authpkg.WithUser(r.Context(), userCtx)))
	})
}

// Optional attaches the user when a valid token is present and otherwise
// continues anonymously
func (m *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = withClientInfo(r)

		token := extractToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		userCtx, err := m.authService.ValidateToken(r.Context(), token)
		if err != nil {
			m.logger.Debug("Ignoring invalid optional token",
				zap.Error(err),
				zap.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(authpkg.WithUser(r.Context(), userCtx)))
	})
}

// extractToken extracts the bearer token from the Authorization header
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	token, err := authpkg.ExtractBearerToken(header)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(token)
}

// withClientInfo records the caller for audit entries
func withClientInfo(r *http.Request) *http.Request {
	if _, ok := authpkg.ClientInfoFromContext(r.Context()); ok {
		return r
	}
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	ctx := authpkg.WithClientInfo(r.Context(), authpkg.ClientInfo{
		IPAddress: ClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: requestID,
	})
	return r.WithContext(ctx)
}

// ClientIP returns the originating address, honouring proxy headers
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// sendUnauthorized sends an unauthorized response
func (m *AuthMiddleware) sendUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="Snippets API"`)
	sendError(w, http.StatusUnauthorized, message)
}

func sendError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
