package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceTokenRoundTrip(t *testing.T) {
	m := NewManager("secret", "storefront")

	token, err := m.GenerateServiceToken("checkout", RoleService, time.Minute)
	require.NoError(t, err)

	claims, err := m.ValidateServiceToken(token)
	require.NoError(t, err)
	assert.Equal(t, "checkout", claims.Subject)
	assert.Equal(t, RoleService, claims.Role)
}

func TestValidateServiceTokenRejects(t *testing.T) {
	m := NewManager("secret", "storefront")

	t.Run("WrongSecret", func(t *testing.T) {
		token, err := NewManager("other", "storefront").GenerateServiceToken("checkout", RoleService, time.Minute)
		require.NoError(t, err)
		_, err = m.ValidateServiceToken(token)
		assert.Error(t, err)
	})

	t.Run("Expired", func(t *testing.T) {
		token, err := m.GenerateServiceToken("checkout", RoleService, -time.Minute)
		require.NoError(t, err)
		_, err = m.ValidateServiceToken(token)
		assert.ErrorIs(t, err, gojwt.ErrTokenExpired)
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		token, err := NewManager("secret", "elsewhere").GenerateServiceToken("checkout", RoleService, time.Minute)
		require.NoError(t, err)
		_, err = m.ValidateServiceToken(token)
		assert.Error(t, err)
	})

	t.Run("NoneAlgorithm", func(t *testing.T) {
		unsigned := gojwt.NewWithClaims(gojwt.SigningMethodNone, Claims{
			Type: tokenTypeService,
			RegisteredClaims: gojwt.RegisteredClaims{
				Subject:   "checkout",
				Issuer:    "storefront",
				ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		})
		token, err := unsigned.SignedString(gojwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.ValidateServiceToken(token)
		assert.Error(t, err)
	})

	t.Run("WrongType", func(t *testing.T) {
		other := gojwt.NewWithClaims(gojwt.SigningMethodHS256, Claims{
			Type: "access",
			RegisteredClaims: gojwt.RegisteredClaims{
				Subject:   "user-1",
				Issuer:    "storefront",
				ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		})
		token, err := other.SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = m.ValidateServiceToken(token)
		assert.Error(t, err)
	})
}
