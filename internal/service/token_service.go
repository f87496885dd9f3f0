package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pennywise/observability/internal/clock"
)

// DefaultTokenTTL is the lifetime of a session token when none is given.
const DefaultTokenTTL = 24 * time.Hour

// TokenService issues and validates session tokens. The token id (jti)
// doubles as the session id that ingested events are correlated by.
type TokenService struct {
	secret []byte
	issuer string
	clock  clock.Clock
}

// NewTokenService creates a new token service
func NewTokenService(secret, issuer string, clk clock.Clock) *TokenService {
	if clk == nil {
		clk = clock.Real()
	}
	return &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		clock:  clk,
	}
}

// Claims represents JWT claims
type Claims struct {
	UserID  string `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// SessionID returns the session this token belongs to.
func (c *Claims) SessionID() string {
	return c.ID
}

// GenerateToken generates a JWT token for a user
func (s *TokenService) GenerateToken(userID string, isAdmin bool, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := s.clock.Now()

	claims := &Claims{
		UserID:  userID,
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clock.Now), jwt.WithIssuer(s.issuer))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
