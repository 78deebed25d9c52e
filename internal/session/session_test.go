package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safevoice/internal/common"
)

func writeToken(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "session.jwt")
	require.NoError(t, os.WriteFile(path, []byte(token+"\n"), 0o600))
	return path
}

func TestStatic(t *testing.T) {
	id, err := Static("u1").UserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	_, err = Static("").UserID(context.Background())
	assert.ErrorIs(t, err, common.ErrNoUserID)
}

func TestTokenFileProvider_ReadsSubject(t *testing.T) {
	path := writeToken(t, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	id, err := NewTokenFileProvider(path).UserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
}

func TestTokenFileProvider_ExpiredToken(t *testing.T) {
	path := writeToken(t, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})

	_, err := NewTokenFileProvider(path).UserID(context.Background())
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestTokenFileProvider_MissingSubject(t *testing.T) {
	path := writeToken(t, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	_, err := NewTokenFileProvider(path).UserID(context.Background())
	assert.ErrorIs(t, err, common.ErrNoUserID)
}

func TestTokenFileProvider_MissingFile(t *testing.T) {
	_, err := NewTokenFileProvider(filepath.Join(t.TempDir(), "nope.jwt")).UserID(context.Background())
	assert.ErrorIs(t, err, common.ErrNoUserID)
}

func TestTokenFileProvider_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jwt")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))

	_, err := NewTokenFileProvider(path).UserID(context.Background())
	assert.ErrorIs(t, err, common.ErrNoUserID)
}
