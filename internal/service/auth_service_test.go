package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fee-recon-api/internal/models"
	appErrors "github.com/noah-isme/fee-recon-api/pkg/errors"
)

func newTestAuthService() *AuthService {
	return NewAuthService(nil, nil, AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "fee-recon-api",
	})
}

func TestAuthServiceIssueAndValidate(t *testing.T) {
	svc := newTestAuthService()

	token, expiresAt, err := svc.IssueAccessToken("user-1", "school-1", models.RoleBursar)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "school-1", claims.SchoolID)
	assert.Equal(t, models.RoleBursar, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestAuthServiceIssueRequiresSchool(t *testing.T) {
	svc := newTestAuthService()

	_, _, err := svc.IssueAccessToken("user-1", "", models.RoleBursar)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAuthServiceRejectsExpiredToken(t *testing.T) {
	svc := newTestAuthService()
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := svc.IssueAccessToken("user-1", "school-1", models.RoleAdmin)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceRejectsForeignIssuerAndSecret(t *testing.T) {
	svc := newTestAuthService()

	other := NewAuthService(nil, nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "someone-else"})
	token, _, err := other.IssueAccessToken("user-1", "school-1", models.RoleAdmin)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	forged := NewAuthService(nil, nil, AuthConfig{AccessTokenSecret: "not-the-secret", Issuer: "fee-recon-api"})
	token, _, err = forged.IssueAccessToken("user-1", "school-1", models.RoleAdmin)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceRejectsTokenWithoutTenant(t *testing.T) {
	svc := newTestAuthService()
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": "user-1",
		"role":    "ADMIN",
		"iss":     "fee-recon-api",
		"exp":     now.Add(time.Hour).Unix(),
		"iat":     now.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
