package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Claims mirrors the marketplace auth token: the buyer id is the subject.
type Claims struct {
	Type string `json:"type"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Parser reads buyer tokens. With an empty secret the signature is not
// checked here and the marketplace remains the verifier.
type Parser struct {
	secret []byte
}

func NewParser(secret string) *Parser {
	return &Parser{secret: []byte(secret)}
}

func (p *Parser) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	if len(p.secret) == 0 {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	} else {
		_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return p.secret, nil
		}, jwt.WithIssuedAt())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return claims, nil
}

// Credentials holds one buyer's bearer token. Invalidate clears it and runs
// the registered hooks exactly once per token.
type Credentials struct {
	mu       sync.RWMutex
	token    string
	claims   *Claims
	hooks    []func()
	notified bool
}

func NewCredentials(token string, claims *Claims) *Credentials {
	return &Credentials{token: token, claims: claims}
}

func (c *Credentials) Token() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.token != ""
}

func (c *Credentials) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.claims == nil {
		return ""
	}
	return c.claims.Subject
}

func (c *Credentials) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.claims == nil {
		return ""
	}
	return c.claims.Role
}

// Refresh swaps in a newer token for the same buyer.
func (c *Credentials) Refresh(token string, claims *Claims) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.claims = claims
	c.notified = false
}

func (c *Credentials) OnInvalidate(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

func (c *Credentials) Invalidate() {
	c.mu.Lock()
	if c.notified {
		c.mu.Unlock()
		return
	}
	c.token = ""
	c.notified = true
	hooks := make([]func(), len(c.hooks))
	copy(hooks, c.hooks)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}
