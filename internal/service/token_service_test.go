package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise/observability/internal/clock"
)

func TestTokenService_RoundTrip(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := NewTokenService("secret", "pennywise", clk)

	token, err := svc.GenerateToken("u-42", true, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-42", claims.UserID)
	assert.True(t, claims.IsAdmin)
	assert.NotEmpty(t, claims.SessionID())

	other, err := svc.GenerateToken("u-42", true, time.Hour)
	require.NoError(t, err)
	otherClaims, err := svc.ValidateToken(other)
	require.NoError(t, err)
	assert.NotEqual(t, claims.SessionID(), otherClaims.SessionID(), "each token is its own session")
}

func TestTokenService_Expired(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := NewTokenService("secret", "pennywise", clk)

	token, err := svc.GenerateToken("u-1", false, time.Minute)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenService_RejectsForeignTokens(t *testing.T) {
	clk := clock.Fake(time.Now())
	svc := NewTokenService("secret", "pennywise", clk)

	foreign, err := NewTokenService("other-secret", "pennywise", clk).GenerateToken("u-1", true, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.Error(t, err)

	wrongIssuer, err := NewTokenService("secret", "someone-else", clk).GenerateToken("u-1", true, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(wrongIssuer)
	assert.Error(t, err)

	_, err = svc.ValidateToken("not-a-token")
	assert.Error(t, err)

	_, err = svc.GenerateToken("", false, time.Hour)
	assert.Error(t, err)
}
