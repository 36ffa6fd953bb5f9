package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aiecon/banking-api/internal/directory"
)

func testUser() *directory.User {
	return &directory.User{
		Model:         gorm.Model{ID: 7},
		Username:      "investor",
		AccountNumber: "ACC002",
	}
}

func TestIssueAndValidateToken(t *testing.T) {
	service := NewService("test-secret", time.Hour)

	token, expiresAt, err := service.IssueToken(testUser())
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, uint(7), claims.UserID)
	require.Equal(t, "investor", claims.Username)
	require.Equal(t, "ACC002", claims.AccountNumber)
}

func TestValidateExpiredToken(t *testing.T) {
	service := NewService("test-secret", -time.Minute)

	token, _, err := service.IssueToken(testUser())
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	issuer := NewService("secret-a", time.Hour)
	verifier := NewService("secret-b", time.Hour)

	token, _, err := issuer.IssueToken(testUser())
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateGarbageToken(t *testing.T) {
	service := NewService("test-secret", time.Hour)

	_, err := service.ValidateToken("not.a.token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenWithoutAccountScope(t *testing.T) {
	service := NewService("test-secret", time.Hour)

	// A token missing the account scope is useless for any endpoint and must
	// be rejected outright
	token, _, err := service.IssueToken(&directory.User{Username: "ghost"})
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}
