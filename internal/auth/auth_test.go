package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"messenger/internal/models"
)

func TestIssueAndVerify(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	token, err := tm.Issue(models.User{ID: 42, Name: "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := tm.Verify(token)
	require.NoError(t, err)
	require.Equal(t, int64(42), userID)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tm := NewTokenManager("secret-a", time.Hour)
	token, err := tm.Issue(models.User{ID: 1, Name: "bob"})
	require.NoError(t, err)

	other := NewTokenManager("secret-b", time.Hour)
	_, err = other.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	tm := NewTokenManager("test-secret", -time.Minute)
	token, err := tm.Issue(models.User{ID: 7, Name: "carol"})
	require.NoError(t, err)

	_, err = tm.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	_, err := tm.Verify("not.a.token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret", hash)

	require.True(t, CheckPassword("s3cret", hash))
	require.False(t, CheckPassword("wrong", hash))
}
