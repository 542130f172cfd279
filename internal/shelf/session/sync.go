package session

import (
	"bytes"
	"encoding/json"

	"github.com/juanclpzq/digital-library/pkg/kvstore"
	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

// onTokensChange follows writes to authTokens from this process and from
// other contexts. Writes this manager made itself arrive with values equal
// to the mirror and are ignored. An unreadable write counts as a removal,
// as it would when read back from storage.
func (m *Manager) onTokensChange(c kvstore.ValueChange[*shelfsdk.Tokens]) {
	var next *shelfsdk.Tokens
	switch {
	case c.Removed:
	case c.Err != nil:
		m.logger.Warn("dropping session: unreadable tokens from another context", "err", c.Err)
	default:
		next = c.Value
	}

	m.mu.Lock()
	if sameJSON(m.tokens, next) {
		m.mu.Unlock()
		return
	}
	m.tokens = next
	m.generation++
	m.mu.Unlock()

	m.logger.Debug("tokens changed", "remote", c.Remote, "removed", next == nil)
	m.rearm()
	m.notify()
}

func (m *Manager) onUserChange(c kvstore.ValueChange[*shelfsdk.User]) {
	var next *shelfsdk.User
	switch {
	case c.Removed:
	case c.Err != nil:
		m.logger.Warn("dropping session: unreadable user from another context", "err", c.Err)
	default:
		next = c.Value
	}

	m.mu.Lock()
	if sameJSON(m.user, next) {
		m.mu.Unlock()
		return
	}
	if !sameIdentity(m.user, next) {
		m.generation++
	}
	m.user = next
	m.mu.Unlock()

	m.logger.Debug("user changed", "remote", c.Remote, "removed", next == nil)
	m.rearm()
	m.notify()
}

// setSession replaces the mirrored pair in one step.
func (m *Manager) setSession(user *shelfsdk.User, tokens *shelfsdk.Tokens) {
	m.mu.Lock()
	changed := !sameJSON(m.user, user) || !sameJSON(m.tokens, tokens)
	if !sameIdentity(m.user, user) || !sameJSON(m.tokens, tokens) {
		m.generation++
	}
	m.user, m.tokens = user, tokens
	m.mu.Unlock()

	m.rearm()
	if changed {
		m.notify()
	}
}

func sameIdentity(a, b *shelfsdk.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

// sameJSON compares values by their stored form, which is what other
// contexts observe.
func sameJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}
