package utils

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidParticipantID(t *testing.T) {
	for _, id := range []string{"p01", "P-01_b", strings.Repeat("a", MaxParticipantIDLength)} {
		assert.True(t, IsValidParticipantID(id), id)
	}
	for _, id := range []string{"", "p 01", "../etc", "p01;", "péter", strings.Repeat("a", MaxParticipantIDLength+1)} {
		assert.False(t, IsValidParticipantID(id), id)
	}
}

func TestIsComplexPassword(t *testing.T) {
	assert.True(t, IsComplexPassword("Gaze-2024x"))
	assert.False(t, IsComplexPassword("gaze-2024x"))
	assert.False(t, IsComplexPassword("Gaze2024x"))
	assert.False(t, IsComplexPassword("G-2x"))
}

func TestGenerateSecureToken(t *testing.T) {
	a, err := GenerateSecureToken(32)
	require.NoError(t, err)
	b, err := GenerateSecureToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
	assert.NotContains(t, a, "=")

	_, err = GenerateSecureToken(0)
	assert.Error(t, err)
}
