// Package authtest signs buyer tokens for tests.
package authtest

import (
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/auth"
	"github.com/golang-jwt/jwt/v5"
)

const Secret = "storefront-test-secret"

// Token returns an HS256 access token for userID signed with Secret.
func Token(t testing.TB, userID string) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Type: "access",
		Role: "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "mediseane",
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(Secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
