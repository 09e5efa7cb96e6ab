package models

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims is the access token payload minted by the platform's Gitea login proxy.
// UserID carries the Gitea username.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the user id, falling back to username and then subject.
func (c *JWTClaims) Identity() string {
	if c == nil {
		return ""
	}
	for _, candidate := range []string{c.UserID, c.Username, c.Subject} {
		if v := strings.TrimSpace(candidate); v != "" {
			return v
		}
	}
	return ""
}
