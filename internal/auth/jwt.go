package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleDashboard is the role carried by dashboard client tokens
const RoleDashboard = "dashboard"

// DefaultTokenTTL is the lifetime of a dashboard token
const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrInvalidToken is returned for tokens that fail validation
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidAccessKey is returned when a token is requested with a wrong access key
	ErrInvalidAccessKey = errors.New("invalid access key")
)

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	ClientID string `json:"client_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates dashboard tokens
type TokenManager struct {
	secret    []byte
	accessKey string
	ttl       time.Duration
}

// NewTokenManager creates a token manager. An empty accessKey lets any
// client request a token.
func NewTokenManager(secret, accessKey string, ttl time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{secret: []byte(secret), accessKey: accessKey, ttl: ttl}, nil
}

// CheckAccessKey validates the key a dashboard presents when asking for a token
func (m *TokenManager) CheckAccessKey(key string) error {
	if m.accessKey == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(m.accessKey)) != 1 {
		return ErrInvalidAccessKey
	}
	return nil
}

// GenerateDashboardToken generates a JWT token for a dashboard client
func (m *TokenManager) GenerateDashboardToken(clientID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.ttl)
	claims := &JWTClaims{
		ClientID: clientID,
		Role:     RoleDashboard,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (m *TokenManager) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role != RoleDashboard || claims.ClientID == "" {
		return nil, fmt.Errorf("%w: not a dashboard token", ErrInvalidToken)
	}
	return claims, nil
}
