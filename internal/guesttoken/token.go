package guesttoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TTL is the sliding lifetime of a guest cart token. Every cart read
// re-issues the cookie with a fresh expiry.
const TTL = 30 * 24 * time.Hour

type Service struct {
	Secret []byte
}

// Issue signs a token for the given cart key. An empty key mints a new one.
func (s *Service) Issue(key string) (string, string, error) {
	if key == "" {
		key = uuid.NewString()
	}
	claims := jwt.MapClaims{
		"sub": key,
		"typ": "guest_cart",
		"exp": time.Now().Add(TTL).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.Secret)
	if err != nil {
		return "", "", err
	}
	return key, signed, nil
}

// Parse returns the cart key carried by a signed guest token.
func (s *Service) Parse(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.Secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid guest token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid guest token claims")
	}
	if typ, _ := claims["typ"].(string); typ != "guest_cart" {
		return "", fmt.Errorf("unexpected token type")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("missing subject claim")
	}
	return sub, nil
}
