package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rastion/rastion-datasets/internal/models"
	appErrors "github.com/rastion/rastion-datasets/pkg/errors"
)

const testSecret = "access-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims *models.JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "rastion",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: testSecret, Issuer: "rastion"})

	claims, err := svc.ValidateToken(signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("alice")))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Identity())

	subjectOnly := validClaims("")
	subjectOnly.Subject = "gitea-42"
	claims, err = svc.ValidateToken(signToken(t, jwt.SigningMethodHS256, []byte(testSecret), subjectOnly))
	require.NoError(t, err)
	assert.Equal(t, "gitea-42", claims.Identity())
}

func TestAuthServiceRejectsTokens(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: testSecret, Issuer: "rastion"})

	expired := validClaims("alice")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	foreign := validClaims("alice")
	foreign.Issuer = "elsewhere"

	cases := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims("alice")),
		"wrong alg":    signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims("alice")),
		"expired":      signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired),
		"issuer":       signToken(t, jwt.SigningMethodHS256, []byte(testSecret), foreign),
		"no identity":  signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("")),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
		})
	}
}
