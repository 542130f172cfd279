// Package session owns the signed-in user and token pair of one client.
//
// The Manager mirrors the persisted `user` and `authTokens` records, derives
// IsAuthenticated from them on every call, refreshes the access token ahead
// of expiry and follows changes written by other contexts sharing the same
// store.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/juanclpzq/digital-library/pkg/kvstore"
	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

const (
	KeyTokens           = "authTokens"
	KeyUser             = "user"
	KeyLastProfileCheck = "lastProfileCheck"

	DefaultRefreshBuffer      = 5 * time.Minute
	DefaultMinRefreshInterval = 30 * time.Second
	DefaultProfileFreshness   = 5 * time.Minute
	DefaultOperationTimeout   = 30 * time.Second
	DefaultLogoutTimeout      = 5 * time.Second
)

// API is the part of the backend client the manager needs.
type API interface {
	Login(ctx context.Context, creds shelfsdk.Credentials) (*shelfsdk.AuthResult, error)
	Register(ctx context.Context, reg shelfsdk.Registration) (*shelfsdk.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*shelfsdk.Tokens, error)
	GetProfile(ctx context.Context, accessToken string) (*shelfsdk.User, error)
	UpdateProfile(ctx context.Context, accessToken string, update shelfsdk.ProfileUpdate) (*shelfsdk.User, error)
	Logout(ctx context.Context, accessToken, refreshToken string)
}

// Manager owns the signed-in session: the user, its tokens and their persistence.
type Manager struct {
	api API

	tokensEntry *kvstore.Entry[*shelfsdk.Tokens]
	userEntry   *kvstore.Entry[*shelfsdk.User]
	checkEntry  *kvstore.Entry[time.Time]

	logger             *slog.Logger
	now                func() time.Time
	refreshBuffer      time.Duration
	minRefreshInterval time.Duration
	profileFreshness   time.Duration
	opTimeout          time.Duration
	logoutTimeout      time.Duration

	mu         sync.RWMutex
	user       *shelfsdk.User
	tokens     *shelfsdk.Tokens
	errMsg     string
	generation uint64
	inflight   int
	resolved   bool

	// writeMu orders store writes made by this manager. It is never held
	// across network calls and never taken by change handlers.
	writeMu sync.Mutex

	group singleflight.Group

	sched scheduler

	subsMu sync.Mutex
	subs   map[uint64]func()
	subSeq uint64

	unwatch []func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRefreshBuffer sets how long before expiry the auto-refresh fires.
func WithRefreshBuffer(d time.Duration) Option {
	return func(m *Manager) { m.refreshBuffer = d }
}

// WithMinRefreshInterval bounds how often auto-refresh may run.
func WithMinRefreshInterval(d time.Duration) Option {
	return func(m *Manager) { m.minRefreshInterval = d }
}

// WithProfileFreshness sets how long a profile check stays valid.
func WithProfileFreshness(d time.Duration) Option {
	return func(m *Manager) { m.profileFreshness = d }
}

// WithOperationTimeout bounds shared status checks and refreshes.
func WithOperationTimeout(d time.Duration) Option {
	return func(m *Manager) { m.opTimeout = d }
}

// WithLogoutTimeout bounds the best-effort server logout.
func WithLogoutTimeout(d time.Duration) Option {
	return func(m *Manager) { m.logoutTimeout = d }
}

// New builds a manager over store and loads the persisted session into
// memory. Call CheckAuthStatus to validate it.
func New(api API, store *kvstore.Store, opts ...Option) *Manager {
	m := &Manager{
		api:                api,
		logger:             slog.Default(),
		now:                time.Now,
		refreshBuffer:      DefaultRefreshBuffer,
		minRefreshInterval: DefaultMinRefreshInterval,
		profileFreshness:   DefaultProfileFreshness,
		opTimeout:          DefaultOperationTimeout,
		logoutTimeout:      DefaultLogoutTimeout,
		subs:               make(map[uint64]func()),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.tokensEntry = kvstore.NewEntry(store, KeyTokens, kvstore.WithValidator((*shelfsdk.Tokens).Validate))
	m.userEntry = kvstore.NewEntry(store, KeyUser, kvstore.WithValidator((*shelfsdk.User).Validate))
	m.checkEntry = kvstore.NewEntry[time.Time](store, KeyLastProfileCheck)

	limit := rate.Inf
	if m.minRefreshInterval > 0 {
		limit = rate.Every(m.minRefreshInterval)
	}
	m.sched.limiter = rate.NewLimiter(limit, 1)

	ctx := context.Background()
	m.user = m.userEntry.Get(ctx, nil)
	m.tokens = m.tokensEntry.Get(ctx, nil)

	m.unwatch = append(m.unwatch,
		m.tokensEntry.OnChange(m.onTokensChange),
		m.userEntry.OnChange(m.onUserChange),
	)
	return m
}

// Subscribe registers fn to run after every session change.
func (m *Manager) Subscribe(fn func()) (unsubscribe func()) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	m.subSeq++
	id := m.subSeq
	m.subs[id] = fn
	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) notify() {
	m.subsMu.Lock()
	fns := make([]func(), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subsMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Close stops the auto-refresh timer and store subscriptions. The store
// itself belongs to the caller.
func (m *Manager) Close() {
	for _, stop := range m.unwatch {
		stop()
	}
	m.sched.close()
}

// shared runs fn once for all concurrent callers of key. The work is
// detached from any single caller's cancellation and bounded by the
// operation timeout; a caller whose ctx ends gets the current state.
func (m *Manager) shared(ctx context.Context, key string, fn func(context.Context) bool) bool {
	ch := m.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opTimeout)
		defer cancel()
		return fn(ctx), nil
	})

	select {
	case res := <-ch:
		return res.Val.(bool)
	case <-ctx.Done():
		return m.IsAuthenticated()
	}
}
