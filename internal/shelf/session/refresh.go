package session

import (
	"context"

	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

// RefreshAuth replaces the token pair using the refresh token. Concurrent
// callers share one refresh. On failure the session is logged out, unless
// another context has meanwhile stored a usable pair, which is adopted.
func (m *Manager) RefreshAuth(ctx context.Context) bool {
	return m.shared(ctx, "refresh", m.refresh)
}

// GetValidToken returns an unexpired access token, refreshing once if
// needed. ErrNotAuthenticated means the caller should stop and let the
// user sign in again; retrying will not help.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	if token, ok := m.validToken(); ok {
		return token, nil
	}

	m.mu.RLock()
	hasSession := m.user != nil && m.tokens != nil
	m.mu.RUnlock()
	if !hasSession {
		return "", ErrNotAuthenticated
	}

	if !m.RefreshAuth(ctx) {
		return "", ErrNotAuthenticated
	}
	if token, ok := m.validToken(); ok {
		return token, nil
	}
	return "", ErrNotAuthenticated
}

func (m *Manager) validToken() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.authenticatedLocked() {
		return "", false
	}
	return m.tokens.AccessToken, true
}

func (m *Manager) refresh(ctx context.Context) bool {
	m.mu.RLock()
	gen, current := m.generation, m.tokens
	m.mu.RUnlock()

	if m.adoptStored(ctx, current) {
		return true
	}

	if current == nil || current.RefreshToken == "" {
		m.logger.Info("no refresh token, ending session")
		m.Logout(ctx)
		return false
	}

	next, err := m.api.Refresh(ctx, current.RefreshToken)
	if err != nil {
		m.logger.Warn("token refresh failed", "err", err)
		if m.adoptStored(ctx, current) {
			return true
		}
		if m.currentGeneration() == gen {
			m.Logout(ctx)
		}
		return false
	}

	if !m.commitTokens(ctx, gen, next) {
		m.logger.Debug("discarding refresh result, session changed")
		return m.IsAuthenticated()
	}
	m.logger.Debug("tokens refreshed", "expires_at", next.ExpiresAt)
	return true
}

// adoptStored takes over a pair another context already rotated to.
func (m *Manager) adoptStored(ctx context.Context, current *shelfsdk.Tokens) bool {
	stored, err := m.tokensEntry.Load(ctx)
	if err != nil || stored.Expired(m.now()) {
		return false
	}
	if current != nil && stored.AccessToken == current.AccessToken {
		return false
	}

	m.mu.RLock()
	user := m.user
	m.mu.RUnlock()
	if user == nil {
		return false
	}

	m.logger.Debug("adopting tokens refreshed by another context")
	m.setSession(user, stored)
	return true
}

// commitTokens persists next and mirrors it if the session is still the one
// the refresh started from.
func (m *Manager) commitTokens(ctx context.Context, gen uint64, next *shelfsdk.Tokens) bool {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	user, current := m.user, m.generation
	m.mu.RUnlock()
	if current != gen || user == nil {
		return false
	}

	_ = m.tokensEntry.Set(ctx, next)
	m.setSession(user, next)
	return true
}
