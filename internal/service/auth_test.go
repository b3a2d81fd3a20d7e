package service

import (
	"database/sql"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mtehis/internal/models"
)

type fakeAuthRepo struct {
	users map[string]*models.User
}

func newFakeAuthRepo() *fakeAuthRepo {
	return &fakeAuthRepo{users: make(map[string]*models.User)}
}

func (r *fakeAuthRepo) CreateUser(user *models.User) error {
	user.ID = int64(len(r.users) + 1)
	r.users[user.Username] = user
	return nil
}

func (r *fakeAuthRepo) GetUserByUsername(username string) (*models.User, error) {
	user, ok := r.users[username]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (r *fakeAuthRepo) CountUsers() (int, error) {
	return len(r.users), nil
}

func newTestAuthService(repo *fakeAuthRepo) AuthService {
	return NewAuthService(repo, []byte("test-secret"), time.Hour, zap.NewNop())
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := hashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$")

	assert.True(t, verifyPassword(hash, "correct horse battery staple"))
	assert.False(t, verifyPassword(hash, "wrong password"))
	assert.False(t, verifyPassword("not-a-hash", "anything"))
}

func TestRegisterAdmin(t *testing.T) {
	repo := newFakeAuthRepo()
	svc := newTestAuthService(repo)

	user, err := svc.RegisterAdmin("admin", "supersecret")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)
	assert.Equal(t, "admin", user.Role)
	assert.NotEqual(t, "supersecret", user.PasswordHash)

	// A second registration is rejected once any user exists.
	_, err = svc.RegisterAdmin("other", "supersecret")
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestLogin(t *testing.T) {
	repo := newFakeAuthRepo()
	svc := newTestAuthService(repo)

	_, err := svc.RegisterAdmin("admin", "supersecret")
	require.NoError(t, err)

	token, expiresAt, err := svc.Login("admin", "supersecret")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims := &models.Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "admin", claims.Role)
}

func TestLoginFailures(t *testing.T) {
	repo := newFakeAuthRepo()
	svc := newTestAuthService(repo)

	_, _, err := svc.Login("ghost", "whatever")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.RegisterAdmin("admin", "supersecret")
	require.NoError(t, err)

	_, _, err = svc.Login("admin", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
