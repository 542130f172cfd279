package session

import (
	"context"

	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

// PreferencesUpdate changes individual preferences; nil fields keep their
// current value.
type PreferencesUpdate struct {
	Theme              *string
	PageSize           *int
	EmailNotifications *bool
	Reminders          *bool
}

// Login signs in. On failure Error() holds a message for the user and any
// existing session is left as it was.
func (m *Manager) Login(ctx context.Context, creds shelfsdk.Credentials) bool {
	m.beginLoading()
	defer m.endLoading()

	m.clearError()
	res, err := m.api.Login(ctx, creds)
	if err != nil {
		m.logger.Info("login failed", "err", err)
		m.setError(err.Error())
		return false
	}

	m.establish(ctx, res)
	m.logger.Info("signed in", "user_id", res.User.ID)
	return true
}

// Register creates an account and signs it in, with the same failure
// behaviour as Login.
func (m *Manager) Register(ctx context.Context, reg shelfsdk.Registration) bool {
	m.beginLoading()
	defer m.endLoading()

	m.clearError()
	res, err := m.api.Register(ctx, reg)
	if err != nil {
		m.logger.Info("registration failed", "err", err)
		m.setError(err.Error())
		return false
	}

	m.establish(ctx, res)
	m.logger.Info("registered", "user_id", res.User.ID)
	return true
}

// establish stores a new session. Observers in any context see the old
// pair, then no pair, then the new one: stale tokens of a different user
// are removed before the new user is written, and the user is written
// before its tokens.
func (m *Manager) establish(ctx context.Context, res *shelfsdk.AuthResult) {
	ctx = context.WithoutCancel(ctx)

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if stored := m.userEntry.Get(ctx, nil); stored == nil || stored.ID != res.User.ID {
		_ = m.tokensEntry.Remove(ctx)
	}
	_ = m.userEntry.Set(ctx, res.User)
	_ = m.tokensEntry.Set(ctx, res.Tokens)
	_ = m.checkEntry.Set(ctx, m.now())

	m.setSession(res.User, res.Tokens)
}

// Logout ends the session locally, then tells the server. The server call
// is bounded by the logout timeout and its failure is only logged.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.RLock()
	tokens := m.tokens
	m.mu.RUnlock()

	m.teardown(ctx)

	if tokens == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.logoutTimeout)
	defer cancel()
	m.api.Logout(ctx, tokens.AccessToken, tokens.RefreshToken)
}

// teardown clears tokens, then user, then the profile check mark.
func (m *Manager) teardown(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	_ = m.tokensEntry.Remove(ctx)
	_ = m.userEntry.Remove(ctx)
	_ = m.checkEntry.Remove(ctx)

	m.mu.Lock()
	m.errMsg = ""
	m.resolved = true
	m.mu.Unlock()

	m.setSession(nil, nil)
	m.notify()
}

// UpdateProfile sends update to the server and stores the user it returns.
func (m *Manager) UpdateProfile(ctx context.Context, update shelfsdk.ProfileUpdate) bool {
	m.clearError()

	token, err := m.GetValidToken(ctx)
	if err != nil {
		m.setError("Not authenticated")
		return false
	}

	user, err := m.api.UpdateProfile(ctx, token, update)
	if err != nil {
		m.logger.Info("profile update failed", "err", err)
		m.setError(err.Error())
		return false
	}

	if !m.commitUser(ctx, user) {
		m.setError("Session changed during update")
		return false
	}
	return true
}

// UpdatePreferences applies a partial change to the current preferences.
// The merged value is sent to the server and the server's answer is kept.
func (m *Manager) UpdatePreferences(ctx context.Context, update PreferencesUpdate) bool {
	current := m.User()
	if current == nil {
		m.setError("Not authenticated")
		return false
	}

	var prefs shelfsdk.Preferences
	if current.Preferences != nil {
		prefs = *current.Preferences
	}
	if update.Theme != nil {
		prefs.Theme = *update.Theme
	}
	if update.PageSize != nil {
		prefs.PageSize = *update.PageSize
	}
	if update.EmailNotifications != nil {
		prefs.Notifications.Email = *update.EmailNotifications
	}
	if update.Reminders != nil {
		prefs.Notifications.Reminders = *update.Reminders
	}

	return m.UpdateProfile(ctx, shelfsdk.ProfileUpdate{Preferences: &prefs})
}

// commitUser stores user if it is still the signed-in identity. Token
// refreshes in the meantime do not matter.
func (m *Manager) commitUser(ctx context.Context, user *shelfsdk.User) bool {
	ctx = context.WithoutCancel(ctx)

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	current, tokens := m.user, m.tokens
	m.mu.RUnlock()
	if current == nil || !sameIdentity(current, user) {
		return false
	}

	_ = m.userEntry.Set(ctx, user)
	_ = m.checkEntry.Set(ctx, m.now())
	m.setSession(user, tokens)
	return true
}

func (m *Manager) clearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errMsg = ""
}
