// Package session adapts the external authentication subsystem. The engine
// never authenticates anybody itself; it only reads the user identity from
// the session token that subsystem issued.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"safevoice/internal/common"
)

// Provider supplies the authenticated user id. Every engine operation treats
// a missing user id as a hard precondition failure.
type Provider interface {
	UserID(ctx context.Context) (string, error)
}

// Static is a fixed-identity provider, for tests and local development.
type Static string

func (s Static) UserID(ctx context.Context) (string, error) {
	if s == "" {
		return "", common.ErrNoUserID
	}
	return string(s), nil
}

// TokenFileProvider reads the session token the auth subsystem wrote to disk
// and extracts the subject claim. The token's signature was verified by its
// issuer; this side only reads identity and expiry.
type TokenFileProvider struct {
	path string
	now  func() time.Time
}

func NewTokenFileProvider(path string) *TokenFileProvider {
	return &TokenFileProvider{path: path, now: time.Now}
}

func (p *TokenFileProvider) UserID(ctx context.Context) (string, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", common.ErrNoUserID
	}
	if err != nil {
		return "", fmt.Errorf("read session token: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", common.ErrNoUserID
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse session token: %w", err)
	}

	if claims.ExpiresAt != nil && !p.now().Before(claims.ExpiresAt.Time) {
		return "", common.ErrUnauthorized
	}
	if claims.Subject == "" {
		return "", common.ErrNoUserID
	}

	return claims.Subject, nil
}
