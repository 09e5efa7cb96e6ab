package service

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/rastion/rastion-datasets/internal/models"
	appErrors "github.com/rastion/rastion-datasets/pkg/errors"
)

// AuthConfig defines how bearer tokens are verified.
type AuthConfig struct {
	AccessTokenSecret string
	Issuer            string
}

// AuthService verifies access tokens issued by the platform's Gitea login proxy.
// Token issuance and refresh live in that proxy.
type AuthService struct {
	logger *zap.Logger
	config AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{logger: logger, config: config}
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	}, options...)
	if err != nil {
		s.logger.Debug("token rejected", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if strings.TrimSpace(claims.Identity()) == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token has no subject")
	}

	return claims, nil
}
