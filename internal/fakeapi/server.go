// Package fakeapi is an in-process stand-in for the library backend. It
// speaks the same wire contract as the real service so the SDK, the session
// manager and the CLI can be exercised end to end without a network.
package fakeapi

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/juanclpzq/digital-library/pkg/cryptox"
	"github.com/juanclpzq/digital-library/pkg/httpx"
	"github.com/juanclpzq/digital-library/pkg/jwtx"
	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
	"github.com/juanclpzq/digital-library/pkg/slogx"
)

const issuer = "shelf-fakeapi"

// Server is an in-memory library backend served over HTTP.
type Server struct {
	router chi.Router
	signer *jwtx.HS256
	logger *slog.Logger

	accessTTL  time.Duration
	refreshTTL time.Duration
	rotate     bool
	now        func() time.Time

	mu       sync.Mutex
	accounts map[string]*account // by user id
	byEmail  map[string]string
	refresh  map[string]refreshRecord // by token fingerprint
	issued   map[string][]string      // user id -> access jtis
	revoked  map[string]struct{}      // access jtis
	books    map[string][]shelfsdk.Book
	faults   map[string][]fault
	delays   map[string]time.Duration
	calls    map[string]int
}

type account struct {
	user         shelfsdk.User
	passwordHash string
}

type refreshRecord struct {
	userID    string
	expiresAt time.Time
}

type fault struct {
	status  int
	message string
}

// Option configures a Server.
type Option func(*Server)

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) { s.accessTTL = d }
}

// WithRefreshTTL sets the lifetime of issued refresh tokens.
func WithRefreshTTL(d time.Duration) Option {
	return func(s *Server) { s.refreshTTL = d }
}

// WithRotation controls whether /auth/refresh issues a new refresh token.
// When off the response omits it and the old one stays valid.
func WithRotation(on bool) Option {
	return func(s *Server) { s.rotate = on }
}

// WithClock replaces the clock used for token issue and expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New returns a Server with no accounts.
func New(opts ...Option) *Server {
	s := &Server{
		logger:     slogx.Discard(),
		accessTTL:  jwtx.DefaultAccessTokenTTL,
		refreshTTL: jwtx.DefaultRefreshTokenTTL,
		rotate:     true,
		now:        time.Now,
		accounts:   map[string]*account{},
		byEmail:    map[string]string{},
		refresh:    map[string]refreshRecord{},
		issued:     map[string][]string{},
		revoked:    map[string]struct{}{},
		books:      map[string][]shelfsdk.Book{},
		faults:     map[string][]fault{},
		delays:     map[string]time.Duration{},
		calls:      map[string]int{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.signer = jwtx.NewHS256([]byte(cryptox.MustGenerateToken(cryptox.TokenSize256)), issuer).WithClock(s.now)
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(slogx.HTTPMiddleware(s.logger), s.intercept)

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/refresh", s.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(httpx.AuthnMiddleware(verifier{s}))
		r.Get("/auth/me", s.handleMe)
		r.Patch("/auth/profile", s.handleUpdateProfile)
		r.Post("/auth/logout", s.handleLogout)
		r.Get("/api/books", s.handleListBooks)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "Not found")
	})
	s.router = r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// FailNext makes the next call to route ("POST /auth/refresh") answer with
// status and message instead of being handled. Calls queue up.
func (s *Server) FailNext(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[route] = append(s.faults[route], fault{status: status, message: message})
}

// Delay holds every call to route for d before handling it.
func (s *Server) Delay(route string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[route] = d
}

// Calls reports how many requests reached route, faults included.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path

		s.mu.Lock()
		s.calls[route]++
		delay := s.delays[route]
		var f *fault
		if q := s.faults[route]; len(q) > 0 {
			f = &q[0]
			s.faults[route] = q[1:]
		}
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if f != nil {
			httpx.WriteError(w, f.status, f.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// verifier rejects tokens revoked by logout on top of the signature and
// expiry checks.
type verifier struct{ s *Server }

func (v verifier) Verify(token string) (jwtx.Claims, error) {
	claims, err := v.s.signer.Verify(token)
	if err != nil {
		return jwtx.Claims{}, err
	}

	v.s.mu.Lock()
	_, revoked := v.s.revoked[claims.ID]
	_, exists := v.s.accounts[claims.Subject]
	v.s.mu.Unlock()

	if revoked || !exists {
		return jwtx.Claims{}, errRevoked
	}
	return claims, nil
}
