package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

// fakeAPI records calls and answers from the configured functions.
type fakeAPI struct {
	login    func(shelfsdk.Credentials) (*shelfsdk.AuthResult, error)
	register func(shelfsdk.Registration) (*shelfsdk.AuthResult, error)
	refresh  func(refreshToken string) (*shelfsdk.Tokens, error)
	profile  func(accessToken string) (*shelfsdk.User, error)
	update   func(accessToken string, u shelfsdk.ProfileUpdate) (*shelfsdk.User, error)

	// refreshGate, when set, blocks Refresh until it is closed.
	refreshGate chan struct{}

	loginCalls    atomic.Int32
	registerCalls atomic.Int32
	refreshCalls  atomic.Int32
	profileCalls  atomic.Int32
	updateCalls   atomic.Int32

	mu      sync.Mutex
	logouts [][2]string
}

func (f *fakeAPI) Login(_ context.Context, c shelfsdk.Credentials) (*shelfsdk.AuthResult, error) {
	f.loginCalls.Add(1)
	return f.login(c)
}

func (f *fakeAPI) Register(_ context.Context, r shelfsdk.Registration) (*shelfsdk.AuthResult, error) {
	f.registerCalls.Add(1)
	return f.register(r)
}

func (f *fakeAPI) Refresh(ctx context.Context, rt string) (*shelfsdk.Tokens, error) {
	f.refreshCalls.Add(1)
	if f.refreshGate != nil {
		select {
		case <-f.refreshGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.refresh(rt)
}

func (f *fakeAPI) GetProfile(_ context.Context, at string) (*shelfsdk.User, error) {
	f.profileCalls.Add(1)
	return f.profile(at)
}

func (f *fakeAPI) UpdateProfile(_ context.Context, at string, u shelfsdk.ProfileUpdate) (*shelfsdk.User, error) {
	f.updateCalls.Add(1)
	return f.update(at, u)
}

func (f *fakeAPI) Logout(_ context.Context, at, rt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, [2]string{at, rt})
}

func (f *fakeAPI) loggedOut() [][2]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]string(nil), f.logouts...)
}

func (f *fakeAPI) networkCalls() int32 {
	return f.loginCalls.Load() + f.registerCalls.Load() + f.refreshCalls.Load() +
		f.profileCalls.Load() + f.updateCalls.Load()
}

func user(id, first string) *shelfsdk.User {
	return &shelfsdk.User{ID: id, Email: id + "@example.com", FirstName: first}
}

func tokens(access, refresh string, expiresAt time.Time) *shelfsdk.Tokens {
	return &shelfsdk.Tokens{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}
}

func authResult(u *shelfsdk.User, t *shelfsdk.Tokens) func(shelfsdk.Credentials) (*shelfsdk.AuthResult, error) {
	return func(shelfsdk.Credentials) (*shelfsdk.AuthResult, error) {
		return &shelfsdk.AuthResult{User: u, Tokens: t}, nil
	}
}
