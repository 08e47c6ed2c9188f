// Package identity verifies the bearer credentials presented by chat clients
// and turns them into a chat.Identity.
package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Tyrowin/tourneychat/internal/chat"
	"github.com/Tyrowin/tourneychat/internal/clock"
)

var (
	// ErrMissingToken is returned when no credential was presented.
	ErrMissingToken = &chat.Error{Kind: chat.KindAuth, Message: "missing credential"}
	// ErrInvalidToken is returned when the token is malformed or badly signed.
	ErrInvalidToken = &chat.Error{Kind: chat.KindAuth, Message: "invalid token"}
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = &chat.Error{Kind: chat.KindAuth, Message: "token has expired"}
)

// Verifier resolves a raw credential into an identity.
type Verifier interface {
	Verify(raw string) (chat.Identity, error)
}

// Claims are the token claims understood by the chat service. The subject
// is the user id.
type Claims struct {
	DisplayName string `json:"name"`
	jwt.RegisteredClaims
}

// JWTConfig holds the shared HS256 secret and expected issuer.
type JWTConfig struct {
	Secret string
	Issuer string
	Clock  clock.Clock
}

// JWTManager verifies and, for tooling and tests, mints HS256 tokens.
type JWTManager struct {
	secret []byte
	issuer string
	clock  clock.Clock
}

// NewJWTManager creates a JWTManager. A nil clock uses the wall clock.
func NewJWTManager(cfg JWTConfig) *JWTManager {
	c := cfg.Clock
	if c == nil {
		c = clock.Real()
	}
	return &JWTManager{secret: []byte(cfg.Secret), issuer: cfg.Issuer, clock: c}
}

// Mint signs a token for userID valid for ttl.
func (m *JWTManager) Mint(userID, displayName string, ttl time.Duration) (string, error) {
	now := m.clock.Now()
	claims := Claims{
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify validates raw and returns the identity it carries. A token without
// a display name falls back to the user id.
func (m *JWTManager) Verify(raw string) (chat.Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return chat.Identity{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return chat.Identity{}, ErrExpiredToken
		}
		return chat.Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return chat.Identity{}, ErrInvalidToken
	}
	name := strings.TrimSpace(claims.DisplayName)
	if name == "" {
		name = claims.Subject
	}
	return chat.Identity{UserID: claims.Subject, DisplayName: name}, nil
}
