package session

import (
	"context"
	"errors"

	"github.com/juanclpzq/digital-library/pkg/kvstore"
	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

// CheckAuthStatus validates the persisted session: expired tokens are
// refreshed once, and the profile is re-read from the server unless it was
// checked within the freshness window. Concurrent calls share one check.
func (m *Manager) CheckAuthStatus(ctx context.Context) bool {
	return m.shared(ctx, "check", m.checkAuthStatus)
}

func (m *Manager) checkAuthStatus(ctx context.Context) bool {
	m.beginLoading()
	defer m.endLoading()

	user, tokens := m.reload(ctx)
	if user == nil || tokens == nil {
		return false
	}

	if tokens.Expired(m.now()) {
		m.logger.Debug("stored tokens expired, refreshing")
		// a fresh pair came from the server for this user; the profile
		// check waits for the next run
		return m.shared(ctx, "refresh", m.refresh)
	}

	if m.profileFresh(ctx) {
		return m.IsAuthenticated()
	}
	return m.revalidateProfile(ctx, tokens.AccessToken)
}

// reload reads the persisted pair into the mirror. Unreadable records are
// removed key by key; a user without tokens, or tokens without a user, are
// removed too. When storage is unavailable the mirror is kept.
func (m *Manager) reload(ctx context.Context) (*shelfsdk.User, *shelfsdk.Tokens) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	tokens, tokErr := m.tokensEntry.Load(ctx)
	user, userErr := m.userEntry.Load(ctx)

	if errors.Is(tokErr, kvstore.ErrUnavailable) || errors.Is(userErr, kvstore.ErrUnavailable) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.user, m.tokens
	}

	if isUnreadable(tokErr) {
		m.logger.Warn("clearing unreadable stored tokens", "err", tokErr)
		_ = m.tokensEntry.Remove(ctx)
		tokens = nil
	}
	if isUnreadable(userErr) {
		m.logger.Warn("clearing unreadable stored user", "err", userErr)
		_ = m.userEntry.Remove(ctx)
		user = nil
	}

	switch {
	case user != nil && tokens == nil:
		m.logger.Warn("clearing stored user without tokens")
		_ = m.userEntry.Remove(ctx)
		user = nil
	case user == nil && tokens != nil:
		m.logger.Warn("clearing stored tokens without user")
		_ = m.tokensEntry.Remove(ctx)
		tokens = nil
	}

	m.setSession(user, tokens)
	return user, tokens
}

func isUnreadable(err error) bool {
	return errors.Is(err, kvstore.ErrCorrupt) || errors.Is(err, kvstore.ErrInvalid)
}

func (m *Manager) profileFresh(ctx context.Context) bool {
	last, err := m.checkEntry.Load(ctx)
	if err != nil {
		return false
	}
	return m.now().Sub(last) < m.profileFreshness
}

// revalidateProfile asks the server who the token belongs to. The answer
// always replaces the stored user. Any failure ends the session.
func (m *Manager) revalidateProfile(ctx context.Context, accessToken string) bool {
	gen := m.currentGeneration()

	user, err := m.api.GetProfile(ctx, accessToken)
	if err != nil {
		m.logger.Warn("profile validation failed", "err", err)
		if m.currentGeneration() == gen {
			m.Logout(ctx)
		}
		return m.IsAuthenticated()
	}

	if !m.commitUser(ctx, user) {
		m.logger.Warn("profile belongs to another user, ending session", "user_id", user.ID)
		m.Logout(ctx)
		return false
	}
	return m.IsAuthenticated()
}
