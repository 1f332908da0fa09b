package handlers

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() JWTConfig {
	return JWTConfig{
		Secret:         []byte("test-secret"),
		AccessTokenTTL: 15 * time.Minute,
	}
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	cfg := testConfig()

	token, err := GenerateAccessToken(cfg, "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateAccessToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "zettelsync", claims.Issuer)
}

func TestValidateAccessToken_WrongSecret(t *testing.T) {
	token, err := GenerateAccessToken(testConfig(), "user-1")
	require.NoError(t, err)

	_, err = ValidateAccessToken(JWTConfig{Secret: []byte("other")}, token)
	assert.Error(t, err)
}

func TestValidateAccessToken_Expired(t *testing.T) {
	cfg := testConfig()
	cfg.AccessTokenTTL = -time.Minute

	token, err := GenerateAccessToken(cfg, "user-1")
	require.NoError(t, err)

	_, err = ValidateAccessToken(cfg, token)
	assert.Error(t, err)
}

func TestValidateAccessToken_MissingUserID(t *testing.T) {
	cfg := testConfig()

	// Токен без user_id claim
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	token, err := raw.SignedString(cfg.Secret)
	require.NoError(t, err)

	_, err = ValidateAccessToken(cfg, token)
	assert.ErrorContains(t, err, "user_id")
}

func TestValidateAccessToken_WrongAlgorithm(t *testing.T) {
	cfg := testConfig()

	// alg=none отклоняется до проверки подписи
	raw := jwt.NewWithClaims(jwt.SigningMethodNone, CustomClaims{UserID: "user-1"})
	token, err := raw.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ValidateAccessToken(cfg, token)
	assert.Error(t, err)
}

func TestValidateAccessToken_Garbage(t *testing.T) {
	_, err := ValidateAccessToken(testConfig(), "not-a-token")
	assert.Error(t, err)
}
