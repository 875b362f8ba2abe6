package guesttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	s := &Service{Secret: []byte("secret")}

	key, signed, err := s.Issue("")
	require.NoError(t, err)
	require.NotEmpty(t, key)
	require.NotEmpty(t, signed)

	parsed, err := s.Parse(signed)
	require.NoError(t, err)
	require.Equal(t, key, parsed)
}

func TestIssueKeepsExistingKey(t *testing.T) {
	s := &Service{Secret: []byte("secret")}

	key, signed, err := s.Issue("cart-abc")
	require.NoError(t, err)
	require.Equal(t, "cart-abc", key)

	parsed, err := s.Parse(signed)
	require.NoError(t, err)
	require.Equal(t, "cart-abc", parsed)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	s := &Service{Secret: []byte("secret")}
	_, signed, err := s.Issue("cart-abc")
	require.NoError(t, err)

	other := &Service{Secret: []byte("different")}
	_, err = other.Parse(signed)
	require.Error(t, err)
}

func TestParseRejectsWrongTokenType(t *testing.T) {
	secret := []byte("secret")
	s := &Service{Secret: secret}

	// an access token signed with the same secret must not open a cart
	claims := jwt.MapClaims{
		"sub": "cart-abc",
		"typ": "access",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	_, err = s.Parse(signed)
	require.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	s := &Service{Secret: secret}

	claims := jwt.MapClaims{
		"sub": "cart-abc",
		"typ": "guest_cart",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	_, err = s.Parse(signed)
	require.Error(t, err)
}
