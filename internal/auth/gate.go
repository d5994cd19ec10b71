// Package auth answers "is the current actor authorized to train" by
// comparing a supplied password against the configured trainer secret.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotConfigured     = errors.New("password not configured")
	ErrIncorrectPassword = errors.New("incorrect password")
)

// Gate tracks which sessions have an authenticated trainer. The secret is
// either plain text or a bcrypt hash.
type Gate struct {
	secret string

	mu     sync.Mutex
	authed map[string]bool
}

// NewGate returns a Gate for secret. An empty secret disables training.
func NewGate(secret string) *Gate {
	return &Gate{secret: secret, authed: make(map[string]bool)}
}

// Configured reports whether a trainer secret is set.
func (g *Gate) Configured() bool { return g.secret != "" }

// Check verifies password without recording anything.
func (g *Gate) Check(password string) error {
	if g.secret == "" {
		return ErrNotConfigured
	}
	if isBcryptHash(g.secret) {
		if err := bcrypt.CompareHashAndPassword([]byte(g.secret), []byte(password)); err != nil {
			return ErrIncorrectPassword
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(g.secret)) != 1 {
		return ErrIncorrectPassword
	}
	return nil
}

// Authenticate marks sessionID as authorized if password is correct.
func (g *Gate) Authenticate(sessionID, password string) error {
	if err := g.Check(password); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authed[sessionID] = true
	return nil
}

// Authorized reports whether sessionID has authenticated.
func (g *Gate) Authorized(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authed[sessionID]
}

func (g *Gate) Logout(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.authed, sessionID)
}

// HashPassword returns a bcrypt hash suitable as a trainer secret.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}
