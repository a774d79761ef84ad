package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netwarden/netwarden/internal/config"
	"github.com/netwarden/netwarden/internal/models"
)

func newTestAuthService(t *testing.T) (*AuthService, *models.User) {
	t.Helper()
	db := setupTestDB(t)
	svc := NewAuthService(db, config.Config{JWTSecret: "test-secret"})

	user := &models.User{Email: "op@example.com", Name: "Operator", Role: "admin", Enabled: true}
	require.NoError(t, user.SetPassword("hunter22"))
	require.NoError(t, db.Create(user).Error)
	return svc, user
}

func TestLogin_Roundtrip(t *testing.T) {
	svc, user := newTestAuthService(t)

	token, logged, err := svc.Login("op@example.com", "hunter22")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, user.ID, logged.ID)
	assert.NotNil(t, logged.LastLogin)

	validated, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, validated.ID)
	assert.Equal(t, "admin", validated.Role)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, _ := newTestAuthService(t)

	_, _, err := svc.Login("op@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login("nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_DisabledAccount(t *testing.T) {
	svc, user := newTestAuthService(t)
	require.NoError(t, svc.DB.Model(user).Update("enabled", false).Error)

	_, _, err := svc.Login("op@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateToken_Garbage(t *testing.T) {
	svc, _ := newTestAuthService(t)

	_, err := svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_DisabledAfterIssue(t *testing.T) {
	svc, user := newTestAuthService(t)

	token, _, err := svc.Login("op@example.com", "hunter22")
	require.NoError(t, err)

	require.NoError(t, svc.DB.Model(user).Update("enabled", false).Error)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestEnsureAdmin(t *testing.T) {
	db := setupTestDB(t)
	svc := NewAuthService(db, config.Config{JWTSecret: "test-secret"})

	require.NoError(t, svc.EnsureAdmin("admin@example.com", "bootstrap"))

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.EqualValues(t, 1, count)

	// A populated user table is left alone.
	require.NoError(t, svc.EnsureAdmin("other@example.com", "x"))
	db.Model(&models.User{}).Count(&count)
	assert.EqualValues(t, 1, count)

	_, _, err := svc.Login("admin@example.com", "bootstrap")
	assert.NoError(t, err)
}
