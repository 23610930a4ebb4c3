package rtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndVerify(t *testing.T) {
	svc := NewTokenService("key-1", "super-secret", 6)

	token, err := svc.Mint("class-abc", "alice@example.com", true)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	grant, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "class-abc", grant.Room)
	assert.Equal(t, "alice@example.com", grant.Identity)
	assert.True(t, grant.CanPublish)
}

func TestMintValidation(t *testing.T) {
	svc := NewTokenService("key-1", "super-secret", 6)

	_, err := svc.Mint("", "alice@example.com", false)
	assert.Error(t, err)

	_, err = svc.Mint("class-abc", "", false)
	assert.Error(t, err)

	unconfigured := NewTokenService("", "", 6)
	_, err = unconfigured.Mint("class-abc", "alice@example.com", false)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	svc := NewTokenService("key-1", "super-secret", 6)
	token, err := svc.Mint("class-abc", "alice@example.com", false)
	require.NoError(t, err)

	other := NewTokenService("key-1", "different-secret", 6)
	_, err = other.Verify(token)
	assert.Error(t, err)
}
