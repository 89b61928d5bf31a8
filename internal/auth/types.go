package auth

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmailTaken         = errors.New("Email already exists")
	ErrUsernameTaken      = errors.New("Username already exists")
	ErrInvalidCredentials = errors.New("Invalid email or password")
	ErrIncorrectPassword  = errors.New("Current password is incorrect")
	ErrUserNotFound       = errors.New("User not found")
	ErrUnauthenticated    = errors.New("User must be authenticated")
	ErrTokenRevoked       = errors.New("Token has been revoked")
	ErrInvalidToken       = errors.New("Invalid token")
)

// Config holds token settings
type Config struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Issuer    string        `mapstructure:"issuer"`
}

// User represents a registered account
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// PublicUser is the part of a user shown to other people
type PublicUser struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public strips the email and credentials
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}

// UserContext represents the authenticated context for a request
type UserContext struct {
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	User      *User     `json:"user"`
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=100"`
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Username string `json:"username" validate:"required,min=3,max=20,username"`
}

// ProfileUpdateRequest changes display fields; empty values keep the current ones
type ProfileUpdateRequest struct {
	Name     string `json:"name" validate:"omitempty,min=2,max=50"`
	Username string `json:"username" validate:"omitempty,min=3,max=20,username"`
}

// ChangePasswordRequest represents a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=100"`
}

// ClientInfo describes the caller of a request for audit records
type ClientInfo struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// AuditEvent types
const (
	AuditEventAccountCreated = "account_created"
	AuditEventLogin          = "login"
	AuditEventLoginFailed    = "login_failed"
	AuditEventLogout         = "logout"
	AuditEventPasswordChange = "password_changed"
	AuditEventProfileUpdate  = "profile_updated"
)
