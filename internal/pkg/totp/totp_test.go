package totp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	key, err := Generate("MnetiFi", "owner@example.co.ke")
	require.NoError(t, err)
	assert.NotEmpty(t, key.Secret)
	assert.Contains(t, key.URL, "otpauth://totp/")

	now := time.Now()
	code, err := Code(key.Secret, now)
	require.NoError(t, err)
	assert.Len(t, code, 6)

	assert.True(t, Validate(code, key.Secret, now))
	assert.True(t, Validate(code, key.Secret, now.Add(Period*time.Second)))
	assert.False(t, Validate(code, key.Secret, now.Add(5*Period*time.Second)))
	assert.False(t, Validate("000000x", key.Secret, now))
}
