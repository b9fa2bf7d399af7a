package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenValidity = 7 * 24 * time.Hour

// TokenManager issues and verifies the HS256 bearer tokens that gate the
// admin surface. The signing secret is mandatory configuration; there is no
// built-in fallback.
type TokenManager struct {
	secret []byte
}

func NewTokenManager(secret string) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("token signing secret must be configured")
	}
	return &TokenManager{secret: []byte(secret)}, nil
}

func (m *TokenManager) Issue(adminID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"adminId": adminID,
		"iat":     now.Unix(),
		"exp":     now.Add(tokenValidity).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify returns the admin id encoded in a valid token. Missing, malformed,
// expired, and forged tokens all fail the same way; callers must not learn
// which.
func (m *TokenManager) Verify(tokenString string) (string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}
	adminID, _ := claims["adminId"].(string)
	if adminID == "" {
		return "", errors.New("invalid token")
	}
	return adminID, nil
}
