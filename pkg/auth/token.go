// Package auth issues and verifies the bearer tokens presented when a
// channel binding opens its connection.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrSecretEmpty indicates a Config without signing key.
	ErrSecretEmpty = errors.New("jwt secret is empty")
	// ErrMissingToken indicates a request without bearer token.
	ErrMissingToken = errors.New("missing bearer token")
)

// ChannelClaims identifies the peer allowed to open a channel.
type ChannelClaims struct {
	ClientID  string `json:"cid"`
	Scope     string `json:"scope,omitempty"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// IssuedToken bundles a signed token with its expiry metadata.
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	JTI       string    `json:"jti"`
}

// IssueChannelToken signs a token for clientID.
func IssueChannelToken(clientID, scope string, cfg Config) (*IssuedToken, error) {
	cfg.Defaults()
	if cfg.Secret == "" {
		return nil, ErrSecretEmpty
	}
	if clientID == "" {
		return nil, errors.New("client id is required")
	}
	now := time.Now()
	jti := uuid.NewString()
	claims := ChannelClaims{
		ClientID:  clientID,
		Scope:     scope,
		TokenType: "channel",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   clientID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return nil, err
	}
	return &IssuedToken{Token: signed, ExpiresAt: claims.ExpiresAt.Time, JTI: jti}, nil
}

// VerifyChannelToken parses and validates signature, issuer, type and expiry.
func VerifyChannelToken(tokenStr string, cfg Config) (*ChannelClaims, error) {
	cfg.Defaults()
	if cfg.Secret == "" {
		return nil, ErrSecretEmpty
	}
	if tokenStr == "" {
		return nil, ErrMissingToken
	}
	claims := &ChannelClaims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithLeeway(cfg.ClockSkew), jwt.WithIssuer(cfg.Issuer))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != "channel" {
		return nil, errors.New("invalid token type")
	}
	return claims, nil
}

// Verifier returns a check suitable for channel servers.
func Verifier(cfg Config) func(token string) error {
	return func(token string) error {
		_, err := VerifyChannelToken(token, cfg)
		return err
	}
}

// BearerToken extracts the token from the Authorization header, falling back
// to the "token" query parameter for browser clients that cannot set headers.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	return r.URL.Query().Get("token")
}
