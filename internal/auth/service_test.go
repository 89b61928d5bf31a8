package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/snippets/internal/db"
	"github.com/Kocoro-lab/snippets/internal/validation"
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []*db.AuditLog
}

func (r *recordingAudit) QueueWrite(_ db.WriteType, data interface{}, callback func(error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := data.(*db.AuditLog); ok {
		r.entries = append(r.entries, entry)
	}
	if callback != nil {
		callback(nil)
	}
	return nil
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type testEnv struct {
	service *Service
	audit   *recordingAudit
	redis   *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	client, err := db.NewClient(&db.Config{Driver: db.DriverSQLite, DSN: ":memory:", Workers: 1}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	audit := &recordingAudit{}
	svc := NewService(client.DB(), NewJWTManager("test-secret", time.Hour, ""), audit, NewRedisRevocationStore(rdb), logger)
	return &testEnv{service: svc, audit: audit, redis: mr}
}

func (e *testEnv) register(t *testing.T, email, username string) *AuthResponse {
	t.Helper()
	resp, err := e.service.Register(context.Background(), &RegisterRequest{
		Email:    email,
		Password: "secret123",
		Name:     "Test User",
		Username: username,
	})
	require.NoError(t, err)
	return resp
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp := env.register(t, "  Jane@Example.com ", "jane")
	assert.Equal(t, "jane@example.com", resp.User.Email)
	assert.Equal(t, "jane", resp.User.Username)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotEqual(t, "secret123", resp.User.PasswordHash)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := env.service.Register(ctx, &RegisterRequest{
			Email: "jane@example.com", Password: "secret123", Name: "Other", Username: "other",
		})
		assert.ErrorIs(t, err, ErrEmailTaken)
		assert.Equal(t, "Email already exists", err.Error())
	})

	t.Run("duplicate username", func(t *testing.T) {
		_, err := env.service.Register(ctx, &RegisterRequest{
			Email: "other@example.com", Password: "secret123", Name: "Other", Username: "jane",
		})
		assert.ErrorIs(t, err, ErrUsernameTaken)
	})

	t.Run("invalid payload", func(t *testing.T) {
		_, err := env.service.Register(ctx, &RegisterRequest{
			Email: "not-an-email", Password: "123", Name: "X", Username: "bad name!",
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, validation.ErrInvalid))

		var verr *validation.Error
		require.ErrorAs(t, err, &verr)
		assert.Len(t, verr.Fields, 4)
	})

	assert.Equal(t, []string{AuditEventAccountCreated}, env.audit.actions())
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registered := env.register(t, "jane@example.com", "jane")

	resp, err := env.service.Login(ctx, &LoginRequest{Email: "JANE@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, resp.User.ID)

	userCtx, err := env.service.ValidateToken(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, userCtx.UserID)
	assert.Equal(t, "jane", userCtx.Username)

	_, err = env.service.Login(ctx, &LoginRequest{Email: "jane@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.service.Login(ctx, &LoginRequest{Email: "nobody@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Equal(t, []string{
		AuditEventAccountCreated,
		AuditEventLogin,
		AuditEventLoginFailed,
		AuditEventLoginFailed,
	}, env.audit.actions())
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.register(t, "jane@example.com", "jane")

	userCtx, err := env.service.ValidateToken(ctx, resp.Token)
	require.NoError(t, err)

	require.NoError(t, env.service.Logout(ctx, userCtx))

	_, err = env.service.ValidateToken(ctx, resp.Token)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// revocation keys expire with the token
	key := revocationKey(userCtx.TokenID)
	assert.True(t, env.redis.Exists(key))
	env.redis.FastForward(2 * time.Hour)
	assert.False(t, env.redis.Exists(key))

	assert.ErrorIs(t, env.service.Logout(ctx, nil), ErrUnauthenticated)
}

func TestValidateTokenFailsOpenWhenRedisIsDown(t *testing.T) {
	env := newTestEnv(t)
	resp := env.register(t, "jane@example.com", "jane")

	env.redis.Close()
	userCtx, err := env.service.ValidateToken(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "jane", userCtx.Username)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jane := env.register(t, "jane@example.com", "jane")
	env.register(t, "john@example.com", "john")

	updated, err := env.service.UpdateProfile(ctx, jane.User.ID, &ProfileUpdateRequest{Name: "Jane Q"})
	require.NoError(t, err)
	assert.Equal(t, "Jane Q", updated.Name)
	assert.Equal(t, "jane", updated.Username)

	_, err = env.service.UpdateProfile(ctx, jane.User.ID, &ProfileUpdateRequest{Username: "john"})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	updated, err = env.service.UpdateProfile(ctx, jane.User.ID, &ProfileUpdateRequest{Username: "jane_q"})
	require.NoError(t, err)
	assert.Equal(t, "jane_q", updated.Username)

	loaded, err := env.service.GetUserByUsername(ctx, "jane_q")
	require.NoError(t, err)
	assert.Equal(t, jane.User.ID, loaded.ID)
	assert.Equal(t, "Jane Q", loaded.Name)

	_, err = env.service.UpdateProfile(ctx, uuid.New(), &ProfileUpdateRequest{Name: "Ghost"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jane := env.register(t, "jane@example.com", "jane")

	err := env.service.ChangePassword(ctx, jane.User.ID, &ChangePasswordRequest{CurrentPassword: "nope", NewPassword: "newsecret"})
	assert.ErrorIs(t, err, ErrIncorrectPassword)

	require.NoError(t, env.service.ChangePassword(ctx, jane.User.ID, &ChangePasswordRequest{CurrentPassword: "secret123", NewPassword: "newsecret"}))

	_, err = env.service.Login(ctx, &LoginRequest{Email: "jane@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.service.Login(ctx, &LoginRequest{Email: "jane@example.com", Password: "newsecret"})
	assert.NoError(t, err)
}

func TestGetUserByIDNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.GetUserByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuditRecordsClientInfo(t *testing.T) {
	env := newTestEnv(t)
	ctx := WithClientInfo(context.Background(), ClientInfo{IPAddress: "10.0.0.1", UserAgent: "curl", RequestID: "req-1"})

	_, err := env.service.Register(ctx, &RegisterRequest{
		Email: "jane@example.com", Password: "secret123", Name: "Jane", Username: "jane",
	})
	require.NoError(t, err)

	require.Len(t, env.audit.entries, 1)
	entry := env.audit.entries[0]
	assert.Equal(t, "10.0.0.1", entry.IPAddress)
	assert.Equal(t, "curl", entry.UserAgent)
	assert.Equal(t, "req-1", entry.RequestID)
	require.NotNil(t, entry.UserID)
}
