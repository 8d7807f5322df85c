package jwtutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken(t *testing.T) {
	t.Run("Round trip keeps subject and role", func(t *testing.T) {
		token, err := GenerateToken("secret", "ops", RoleAdmin, time.Hour)
		require.NoError(t, err)

		claims, err := ParseToken("secret", token)

		require.NoError(t, err)
		assert.Equal(t, "ops", claims.Subject)
		assert.Equal(t, RoleAdmin, claims.Role)
	})

	t.Run("Wrong secret is rejected", func(t *testing.T) {
		token, err := GenerateToken("secret", "ops", RoleAdmin, time.Hour)
		require.NoError(t, err)

		_, err = ParseToken("other", token)

		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Expired token is rejected", func(t *testing.T) {
		token, err := GenerateToken("secret", "ops", RoleAdmin, -time.Minute)
		require.NoError(t, err)

		_, err = ParseToken("secret", token)

		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Empty secret cannot sign", func(t *testing.T) {
		_, err := GenerateToken("", "ops", RoleAdmin, time.Hour)

		assert.Error(t, err)
	})
}
