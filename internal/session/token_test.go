package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCheckinTokenShape(t *testing.T) {
	token, err := NewCheckinToken()
	require.NoError(t, err)
	assert.Len(t, token, TokenLength)
	for _, r := range token {
		assert.True(t, strings.ContainsRune(tokenAlphabet, r), "unexpected character %q", r)
	}
}

func TestNewCheckinTokenUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		token, err := NewCheckinToken()
		require.NoError(t, err)
		assert.False(t, seen[token], "token repeated: %s", token)
		seen[token] = true
	}
}
