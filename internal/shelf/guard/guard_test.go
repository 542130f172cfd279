package guard_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/juanclpzq/digital-library/internal/shelf/guard"
	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

var errExpired = errors.New("session expired")

type fakeSession struct {
	mu      sync.Mutex
	loading bool
	authed  bool
	user    *shelfsdk.User
	errMsg  string
	subs    map[int]func()
	nextSub int

	checks   atomic.Int32
	check    func(ctx context.Context) bool
	password string
}

func newFakeSession() *fakeSession {
	return &fakeSession{loading: true, subs: map[int]func(){}, password: "secret"}
}

func (f *fakeSession) set(loading, authed bool) {
	f.mu.Lock()
	f.loading, f.authed = loading, authed
	if authed {
		f.user = &shelfsdk.User{ID: "u1", Email: "ada@example.com", FirstName: "Ada"}
	} else {
		f.user = nil
	}
	subs := make([]func(), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func (f *fakeSession) CheckAuthStatus(ctx context.Context) bool {
	f.checks.Add(1)
	if f.check != nil {
		return f.check(ctx)
	}
	return false
}

func (f *fakeSession) IsLoading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

func (f *fakeSession) IsAuthenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authed
}

func (f *fakeSession) User() *shelfsdk.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user
}

func (f *fakeSession) GetValidToken(context.Context) (string, error) {
	if !f.IsAuthenticated() {
		return "", errExpired
	}
	return "access", nil
}

func (f *fakeSession) Login(_ context.Context, creds shelfsdk.Credentials) bool {
	if creds.Password != f.password {
		f.mu.Lock()
		f.errMsg = "Invalid credentials"
		f.mu.Unlock()
		return false
	}
	f.set(false, true)
	return true
}

func (f *fakeSession) Register(ctx context.Context, reg shelfsdk.Registration) bool {
	return f.Login(ctx, shelfsdk.Credentials{Email: reg.Email, Password: reg.Password})
}

func (f *fakeSession) Error() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errMsg
}

func (f *fakeSession) Subscribe(fn func()) func() {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

type fakeView struct {
	loading   atomic.Int32
	public    atomic.Int32
	protected atomic.Int32

	onPublic    func(ctx context.Context, flow guard.Flow) error
	onProtected func(ctx context.Context) error
}

func (v *fakeView) Loading(context.Context) { v.loading.Add(1) }

func (v *fakeView) Public(ctx context.Context, flow guard.Flow) error {
	v.public.Add(1)
	if v.onPublic != nil {
		return v.onPublic(ctx, flow)
	}
	return guard.ErrAborted
}

func (v *fakeView) Protected(ctx context.Context) error {
	v.protected.Add(1)
	if v.onProtected != nil {
		return v.onProtected(ctx)
	}
	return nil
}

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		loading bool
		authed  bool
		want    guard.Screen
	}{
		{"loading wins", true, true, guard.ScreenLoading},
		{"signed out", false, false, guard.ScreenPublic},
		{"signed in", false, true, guard.ScreenProtected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newFakeSession()
			s.set(tt.loading, tt.authed)
			g := guard.New(s, &fakeView{})
			require.Equal(t, tt.want, g.Render())
			require.Equal(t, tt.want.String(), g.Render().String())
		})
	}
}

func TestMountChecksOnce(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	g := guard.New(s, &fakeView{})
	for range 5 {
		g.Mount(t.Context())
	}
	require.Eventually(t, func() bool { return s.checks.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 1, s.checks.Load())
}

func TestRunWaitsForCheckThenShowsProtected(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	release := make(chan struct{})
	s.check = func(context.Context) bool {
		<-release
		s.set(false, true)
		return true
	}

	var (
		seen      *shelfsdk.User
		authed    bool
		token     string
		isSession bool
	)
	v := &fakeView{onProtected: func(ctx context.Context) error {
		a := guard.MustAccess(ctx)
		authed = a.IsAuthenticated()
		seen = a.User()
		_, isSession = a.(guard.Session)
		var err error
		token, err = a.GetValidToken(ctx)
		return err
	}}

	done := make(chan error, 1)
	go func() { done <- guard.New(s, v).Run(t.Context()) }()

	require.Eventually(t, func() bool { return v.loading.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Zero(t, v.protected.Load())
	close(release)

	require.NoError(t, <-done)
	require.EqualValues(t, 1, v.loading.Load())
	require.EqualValues(t, 1, v.protected.Load())
	require.Zero(t, v.public.Load())
	require.True(t, authed)
	require.Equal(t, "access", token)
	require.False(t, isSession)
	require.NotNil(t, seen)
	require.Equal(t, "u1", seen.ID)
}

func TestRunPublicFlowLogsIn(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	s.check = func(context.Context) bool {
		s.set(false, false)
		return false
	}

	v := &fakeView{}
	v.onPublic = func(ctx context.Context, flow guard.Flow) error {
		if v.public.Load() == 1 {
			require.False(t, flow.Login(ctx, shelfsdk.Credentials{Email: "ada@example.com", Password: "wrong"}))
			require.Equal(t, "Invalid credentials", flow.Error())
			return nil
		}
		require.True(t, flow.Login(ctx, shelfsdk.Credentials{Email: "ada@example.com", Password: "secret"}))
		return nil
	}

	require.NoError(t, guard.New(s, v).Run(t.Context()))
	require.EqualValues(t, 2, v.public.Load())
	require.EqualValues(t, 1, v.protected.Load())
}

func TestRunAborted(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	s.set(false, false)
	v := &fakeView{}

	err := guard.New(s, v).Run(t.Context())
	require.ErrorIs(t, err, guard.ErrAborted)
	require.Zero(t, v.protected.Load())
}

func TestRunReturnsToPublicWhenSessionEnds(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	s.set(false, true)

	v := &fakeView{}
	v.onProtected = func(ctx context.Context) error {
		if v.protected.Load() == 1 {
			s.set(false, false)
			_, err := guard.MustAccess(ctx).GetValidToken(ctx)
			return err
		}
		return nil
	}
	v.onPublic = func(ctx context.Context, flow guard.Flow) error {
		require.True(t, flow.Register(ctx, shelfsdk.Registration{Email: "ada@example.com", Password: "secret"}))
		return nil
	}

	require.NoError(t, guard.New(s, v).Run(t.Context()))
	require.EqualValues(t, 1, v.public.Load())
	require.EqualValues(t, 2, v.protected.Load())
}

func TestRunProtectedErrorWhileSignedIn(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	s.set(false, true)
	boom := errors.New("boom")
	v := &fakeView{onProtected: func(context.Context) error { return boom }}

	require.ErrorIs(t, guard.New(s, v).Run(t.Context()), boom)
}

func TestRunCancelledWhileLoading(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	s.check = func(ctx context.Context) bool {
		<-ctx.Done()
		return false
	}
	v := &fakeView{}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- guard.New(s, v).Run(ctx) }()

	require.Eventually(t, func() bool { return v.loading.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestAccessFromEmptyContext(t *testing.T) {
	t.Parallel()

	_, ok := guard.AccessFrom(context.Background())
	require.False(t, ok)
	require.Panics(t, func() { guard.MustAccess(context.Background()) })
}
