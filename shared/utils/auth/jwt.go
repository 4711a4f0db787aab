package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims binds a bearer token to a server side session
type SessionClaims struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates session tokens with an HMAC secret
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer creates an issuer. An empty secret falls back to a development key.
func NewTokenIssuer(secret string) *TokenIssuer {
	if secret == "" {
		secret = "fallback-secret-key-for-development"
	}
	return &TokenIssuer{secret: []byte(secret)}
}

// GenerateSessionToken signs a token for sessionID that expires with the session
func (i *TokenIssuer) GenerateSessionToken(sessionID, userID string, expiresAt time.Time) (string, error) {
	if sessionID == "" {
		return "", errors.New("session id is required")
	}

	now := time.Now()
	claims := SessionClaims{
		SessionID: sessionID,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// ValidateSessionToken parses and verifies a session token
func (i *TokenIssuer) ValidateSessionToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return i.secret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		if claims.SessionID == "" {
			return nil, errors.New("token carries no session id")
		}
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
