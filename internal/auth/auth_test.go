package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ispledger/internal/core"
)

func TestVerify_Bcrypt(t *testing.T) {
	h, err := Hash("s3cret")
	require.NoError(t, err)
	assert.NoError(t, Verify(h, "s3cret"))
	assert.ErrorIs(t, Verify(h, "wrong"), ErrInvalidCredentials)
	assert.False(t, NeedsUpgrade(h))
}

func TestVerify_LegacyBase64(t *testing.T) {
	h := core.LegacyHash(core.DefaultAccessKey)
	assert.NoError(t, Verify(h, "admin"))
	assert.ErrorIs(t, Verify(h, "Admin"), ErrInvalidCredentials)
	assert.True(t, NeedsUpgrade(h))
}

func TestVerify_Empty(t *testing.T) {
	assert.ErrorIs(t, Verify("", "x"), ErrInvalidCredentials)
	_, err := Hash("")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestVerifyAnswer(t *testing.T) {
	h, err := HashAnswer(" Tommy ")
	require.NoError(t, err)
	assert.NoError(t, VerifyAnswer(h, "tommy"))
	assert.NoError(t, VerifyAnswer(core.LegacyHash("admin"), "ADMIN "))
	assert.ErrorIs(t, VerifyAnswer(h, "rex"), ErrWrongAnswer)
}

func TestVerifyAnswer_LegacyKeepsCaseAndSpaces(t *testing.T) {
	assert.NoError(t, VerifyAnswer(core.LegacyHash("Dhaka"), "Dhaka"))
	assert.NoError(t, VerifyAnswer(core.LegacyHash("My Cat"), "My Cat"))

	err := VerifyAnswer(core.LegacyHash("Dhaka"), "Khulna")
	assert.ErrorIs(t, err, ErrWrongAnswer)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, "incorrect security answer", err.Error())
}

func TestTokens(t *testing.T) {
	tokens, err := NewTokens("0123456789abcdef0123", time.Hour)
	require.NoError(t, err)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return now }

	s, err := tokens.Issue("Admin")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), s.ExpiresAt)

	claims, err := tokens.Parse(s.Token)
	require.NoError(t, err)
	assert.Equal(t, "Admin", claims.Operator)

	now = now.Add(2 * time.Hour)
	_, err = tokens.Parse(s.Token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokens_RejectsForeignSignature(t *testing.T) {
	a, err := NewTokens("0123456789abcdef0123", time.Hour)
	require.NoError(t, err)
	b, err := NewTokens("fedcba9876543210fedc", time.Hour)
	require.NoError(t, err)

	s, err := a.Issue("Admin")
	require.NoError(t, err)
	_, err = b.Parse(s.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokens("short", time.Hour)
	assert.Error(t, err)
}
