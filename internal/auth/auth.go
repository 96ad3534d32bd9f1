// Package auth issues and validates operator session tokens for the import
// API.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"sync"
	"time"
)

// ErrBadToken is returned when the operator token does not match.
var ErrBadToken = errors.New("operator token mismatch")

// Session represents an issued login token.
type Session struct {
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager tracks active sessions in-memory. An empty operator token
// disables authentication entirely (local installs).
type Manager struct {
	mu       sync.RWMutex
	ttl      time.Duration
	operator string
	entries  map[string]*Session
}

// NewManager constructs a session manager with the provided TTL.
func NewManager(operatorToken string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{ttl: ttl, operator: operatorToken, entries: make(map[string]*Session)}
}

// Open reports whether authentication is disabled.
func (m *Manager) Open() bool {
	return m.operator == ""
}

// Login verifies the operator token and issues a session.
func (m *Manager) Login(operatorToken string) (*Session, error) {
	if subtle.ConstantTimeCompare([]byte(m.operator), []byte(operatorToken)) != 1 {
		return nil, ErrBadToken
	}
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	session := &Session{Token: token, IssuedAt: now, ExpiresAt: now.Add(m.ttl)}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[token] = session
	return session, nil
}

// Validate looks up a token and returns the session if still valid.
func (m *Manager) Validate(token string) (*Session, bool) {
	m.mu.RLock()
	session, ok := m.entries[token]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(session.ExpiresAt) {
		m.Revoke(token)
		return nil, false
	}
	return session, true
}

// Revoke removes a token from the manager.
func (m *Manager) Revoke(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, token)
}

func randomToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
