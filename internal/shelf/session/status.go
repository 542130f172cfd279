package session

import (
	"errors"

	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

// ErrNotAuthenticated is returned by GetValidToken when there is no usable session.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// Status is the coarse state of a Manager.
type Status int

const (
	StatusUninitialized Status = iota
	StatusChecking
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusChecking:
		return "checking"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// IsAuthenticated is recomputed from the user, the tokens and the clock on
// every call.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authenticatedLocked()
}

func (m *Manager) authenticatedLocked() bool {
	return m.user != nil && m.tokens != nil && !m.tokens.Expired(m.now())
}

// Status derives the current Status from the mirror.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch {
	case m.inflight > 0:
		return StatusChecking
	case !m.resolved:
		return StatusUninitialized
	case m.authenticatedLocked():
		return StatusAuthenticated
	default:
		return StatusUnauthenticated
	}
}

// IsLoading is true until the first status check resolves and while a
// check, login or registration is running.
func (m *Manager) IsLoading() bool {
	s := m.Status()
	return s == StatusUninitialized || s == StatusChecking
}

// User returns the signed-in user, or nil.
func (m *Manager) User() *shelfsdk.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user
}

// Tokens returns the current token pair, or nil.
func (m *Manager) Tokens() *shelfsdk.Tokens {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens
}

// Error is the message of the last failed foreground action, or "".
func (m *Manager) Error() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errMsg
}

// IsTokenExpired reports whether now is at or past the access token's
// expiry. Without tokens it is true.
func (m *Manager) IsTokenExpired() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens.Expired(m.now())
}

func (m *Manager) setError(msg string) {
	m.mu.Lock()
	m.errMsg = msg
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) beginLoading() {
	m.mu.Lock()
	m.inflight++
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) endLoading() {
	m.mu.Lock()
	m.inflight--
	m.resolved = true
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) currentGeneration() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}
