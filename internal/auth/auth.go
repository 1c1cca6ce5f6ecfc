// Package auth supplies the bearer token and local identity used to join
// rooms. The backend validates tokens; this package only reads their claims.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sereno-app/sereno/internal/config"
)

var ErrNoToken = errors.New("no auth token configured")

// Claims are the fields read from an access token. user_id is emitted as a
// number by some backends, so it is decoded as json.Number or string.
type Claims struct {
	UserID   any    `json:"user_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

// Credentials identify the local user.
type Credentials struct {
	Token     string
	UserID    string
	UserName  string
	ExpiresAt time.Time
}

// Expired reports whether the token carries an expiry before now.
func (c Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Load reads the token from cfg (inline or file) and fills the identity from
// its claims. Explicit user_id / user_name settings win over claims. Tokens
// that are not JWTs are used as-is.
func Load(cfg config.AuthConfig) (Credentials, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" && cfg.TokenFile != "" {
		data, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return Credentials{}, fmt.Errorf("read token file: %w", err)
		}
		token = strings.TrimSpace(string(data))
	}
	if token == "" {
		return Credentials{}, ErrNoToken
	}

	creds := Credentials{Token: token}
	if claims, err := Inspect(token); err == nil {
		creds.UserID = claims.Identity()
		creds.UserName = claims.DisplayName()
		if claims.ExpiresAt != nil {
			creds.ExpiresAt = claims.ExpiresAt.Time
		}
	}
	if cfg.UserID != "" {
		creds.UserID = cfg.UserID
	}
	if cfg.UserName != "" {
		creds.UserName = cfg.UserName
	}
	return creds, nil
}

// Inspect decodes token claims without verifying the signature.
func Inspect(token string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithJSONNumber())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}

// Identity returns user_id when present, else the registered sub claim.
func (c *Claims) Identity() string {
	switch v := c.UserID.(type) {
	case string:
		if v != "" {
			return v
		}
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return c.RegisteredClaims.Subject
}

// DisplayName prefers name over username.
func (c *Claims) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Username
}
