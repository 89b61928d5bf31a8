package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Kocoro-lab/snippets/internal/db"
	"github.com/Kocoro-lab/snippets/internal/metrics"
	"github.com/Kocoro-lab/snippets/internal/validation"
)

const userColumns = "id, email, name, username, password_hash, created_at, updated_at"

// AuditWriter accepts asynchronous audit writes
type AuditWriter interface {
	QueueWrite(writeType db.WriteType, data interface{}, callback func(error)) error
}

// Service handles authentication operations
type Service struct {
	db          *sqlx.DB
	logger      *zap.Logger
	jwtManager  *JWTManager
	audit       AuditWriter
	revocations RevocationStore
}

// NewService creates a new authentication service. audit and revocations may be nil.
func NewService(database *sqlx.DB, jwtManager *JWTManager, audit AuditWriter, revocations RevocationStore, logger *zap.Logger) *Service {
	return &Service{
		db:          database,
		logger:      logger,
		jwtManager:  jwtManager,
		audit:       audit,
		revocations: revocations,
	}
}

// JWTManager returns the token manager used by the service
func (s *Service) JWTManager() *JWTManager {
	return s.jwtManager
}

// Register creates a new user account and signs them in
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	if taken, err := s.exists(ctx, "SELECT COUNT(*) FROM users WHERE email = ?", req.Email); err != nil {
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	} else if taken {
		metrics.RecordAuthEvent("register", false)
		return nil, ErrEmailTaken
	}

	if taken, err := s.exists(ctx, "SELECT COUNT(*) FROM users WHERE username = ?", req.Username); err != nil {
		return nil, fmt.Errorf("failed to check username existence: %w", err)
	} else if taken {
		metrics.RecordAuthEvent("register", false)
		return nil, ErrUsernameTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &User{
		ID:           uuid.New(),
		Email:        req.Email,
		Name:         req.Name,
		Username:     req.Username,
		PasswordHash: string(hashedPassword),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	query := `
		INSERT INTO users (id, email, name, username, password_hash, created_at, updated_at)
		VALUES (:id, :email, :name, :username, :password_hash, :created_at, :updated_at)
	`
	if _, err := s.db.NamedExecContext(ctx, query, user); err != nil {
		if db.IsUniqueViolation(err) {
			// lost a race with a concurrent registration
			if strings.Contains(err.Error(), "email") {
				return nil, ErrEmailTaken
			}
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logAuditEvent(ctx, AuditEventAccountCreated, user.ID, nil)
	metrics.RecordAuthEvent("register", true)

	s.logger.Info("User registered successfully",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username))

	return s.issue(user)
}

// Login authenticates a user by email and password
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	var user User
	err := s.db.GetContext(ctx, &user, s.db.Rebind("SELECT "+userColumns+" FROM users WHERE email = ?"), req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logAuditEvent(ctx, AuditEventLoginFailed, uuid.Nil, map[string]interface{}{"email": req.Email})
			metrics.RecordAuthEvent("login", false)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logAuditEvent(ctx, AuditEventLoginFailed, user.ID, nil)
		metrics.RecordAuthEvent("login", false)
		return nil, ErrInvalidCredentials
	}

	s.logAuditEvent(ctx, AuditEventLogin, user.ID, nil)
	metrics.RecordAuthEvent("login", true)

	s.logger.Info("User logged in successfully",
		zap.String("user_id", user.ID.String()))

	return s.issue(&user)
}

// ValidateToken verifies a bearer token and rejects logged-out tokens
func (s *Service) ValidateToken(ctx context.Context, token string) (*UserContext, error) {
	userCtx, err := s.jwtManager.Validate(token)
	if err != nil {
		return nil, err
	}

	if s.revocations != nil && userCtx.TokenID != "" {
		revoked, err := s.revocations.IsRevoked(ctx, userCtx.TokenID)
		if err != nil {
			// fail open so a Redis outage does not sign everyone out
			s.logger.Warn("Token revocation check failed", zap.Error(err))
		} else if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return userCtx, nil
}

// Logout revokes the token behind userCtx until it expires
func (s *Service) Logout(ctx context.Context, userCtx *UserContext) error {
	if userCtx == nil {
		return ErrUnauthenticated
	}

	if s.revocations != nil && userCtx.TokenID != "" {
		ttl := time.Until(userCtx.ExpiresAt)
		if err := s.revocations.Revoke(ctx, userCtx.TokenID, ttl); err != nil {
			return err
		}
	}

	s.logAuditEvent(ctx, AuditEventLogout, userCtx.UserID, nil)
	metrics.RecordAuthEvent("logout", true)
	return nil
}

// GetUserByID loads a user by ID
func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByUsername loads a user by username
func (s *Service) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, "username = ?", username)
}

// UpdateProfile changes name and username. Empty fields keep their current values.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, req *ProfileUpdateRequest) (*User, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	changes := map[string]interface{}{}
	if req.Username != "" && req.Username != user.Username {
		taken, err := s.exists(ctx, "SELECT COUNT(*) FROM users WHERE username = ? AND id <> ?", req.Username, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to check username existence: %w", err)
		}
		if taken {
			return nil, ErrUsernameTaken
		}
		changes["username"] = map[string]string{"from": user.Username, "to": req.Username}
		user.Username = req.Username
	}
	if req.Name != "" && req.Name != user.Name {
		changes["name"] = map[string]string{"from": user.Name, "to": req.Name}
		user.Name = req.Name
	}
	if len(changes) == 0 {
		return user, nil
	}

	user.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, s.db.Rebind("UPDATE users SET name = ?, username = ?, updated_at = ? WHERE id = ?"),
		user.Name, user.Username, user.UpdatedAt, user.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	s.logAuditEvent(ctx, AuditEventProfileUpdate, user.ID, changes)
	return user, nil
}

// ChangePassword replaces the password after verifying the current one
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, req *ChangePasswordRequest) error {
	if err := validation.Struct(req); err != nil {
		return err
	}

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		metrics.RecordAuthEvent("password_change", false)
		return ErrIncorrectPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind("UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?"),
		string(hashed), time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logAuditEvent(ctx, AuditEventPasswordChange, userID, nil)
	metrics.RecordAuthEvent("password_change", true)
	return nil
}

// Helper functions

func (s *Service) issue(user *User) (*AuthResponse, error) {
	token, expiresAt, err := s.jwtManager.Generate(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &AuthResponse{
		User:      user,
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) getUser(ctx context.Context, where string, arg interface{}) (*User, error) {
	var user User
	err := s.db.GetContext(ctx, &user, s.db.Rebind("SELECT "+userColumns+" FROM users WHERE "+where), arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *Service) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(query), args...); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Service) logAuditEvent(ctx context.Context, eventType string, userID uuid.UUID, details map[string]interface{}) {
	if s.audit == nil {
		return
	}

	entry := &db.AuditLog{
		Action:     eventType,
		EntityType: "user",
		Details:    details,
	}
	if userID != uuid.Nil {
		id := userID.String()
		entry.UserID = &id
		entry.EntityID = id
	}
	if info, ok := ClientInfoFromContext(ctx); ok {
		entry.IPAddress = info.IPAddress
		entry.UserAgent = info.UserAgent
		entry.RequestID = info.RequestID
	}

	if err := s.audit.QueueWrite(db.WriteTypeAuditLog, entry, nil); err != nil {
		s.logger.Warn("Failed to log audit event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
