package service

import (
	"testing"
	"time"

	"vtupay/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret: "test-secret-key-32-bytes-long!!!",
		Expiry: time.Hour,
		Issuer: "vtupay",
	}
}

func TestTokenService_GenerateAndValidate(t *testing.T) {
	svc := NewTokenService(testJWTConfig())
	userID := uuid.New()

	token, expiresAt, err := svc.Generate(userID)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	parsed, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, userID, parsed)
}

func TestTokenService_Validate_WrongSecret(t *testing.T) {
	svc := NewTokenService(testJWTConfig())
	other := NewTokenService(config.JWTConfig{
		Secret: "another-secret-entirely-here!!!!",
		Expiry: time.Hour,
		Issuer: "vtupay",
	})

	token, _, err := svc.Generate(uuid.New())
	require.NoError(t, err)

	_, err = other.Validate(token)
	assertAppError(t, err, "AUTH_001")
}

func TestTokenService_Validate_Expired(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{
		Secret: "test-secret-key-32-bytes-long!!!",
		Expiry: -time.Minute,
		Issuer: "vtupay",
	})

	token, _, err := svc.Generate(uuid.New())
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assertAppError(t, err, "AUTH_001")
}

func TestTokenService_Validate_Garbage(t *testing.T) {
	svc := NewTokenService(testJWTConfig())

	_, err := svc.Validate("not.a.token")
	assertAppError(t, err, "AUTH_001")
}
