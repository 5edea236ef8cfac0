package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret, userID, role string) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type: "access",
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "mediseane",
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestParser_Verified(t *testing.T) {
	token := signToken(t, "s3cret", "42", "user")

	claims, err := NewParser("s3cret").Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "user", claims.Role)

	_, err = NewParser("other").Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParser_Unverified(t *testing.T) {
	token := signToken(t, "whatever", "7", "user")

	claims, err := NewParser("").Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "7", claims.Subject)
}

func TestParser_Missing(t *testing.T) {
	_, err := NewParser("").Parse("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = NewParser("").Parse("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCredentials_InvalidateOnce(t *testing.T) {
	creds := NewCredentials("tok", &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}})
	calls := 0
	creds.OnInvalidate(func() { calls++ })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			creds.Invalidate()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	_, ok := creds.Token()
	assert.False(t, ok)

	creds.Refresh("tok2", &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}})
	token, ok := creds.Token()
	assert.True(t, ok)
	assert.Equal(t, "tok2", token)
}
