// Package guard decides what a client shows based on the session: a
// loading placeholder while the status is unresolved, the sign-in flow when
// nobody is signed in, and protected content otherwise.
package guard

import (
	"context"
	"errors"
	"sync"

	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

// ErrAborted is returned by a View's Public flow when the user gives up.
var ErrAborted = errors.New("guard: sign-in aborted")

// Session is the state machine the guard reads.
type Session interface {
	CheckAuthStatus(ctx context.Context) bool
	IsLoading() bool
	IsAuthenticated() bool
	User() *shelfsdk.User
	GetValidToken(ctx context.Context) (string, error)
	Login(ctx context.Context, creds shelfsdk.Credentials) bool
	Register(ctx context.Context, reg shelfsdk.Registration) bool
	Error() string
	Subscribe(fn func()) (unsubscribe func())
}

// Flow is handed to the public view. It signs in but never navigates: the
// guard notices the session change and moves on by itself.
type Flow interface {
	Login(ctx context.Context, creds shelfsdk.Credentials) bool
	Register(ctx context.Context, reg shelfsdk.Registration) bool
	Error() string
}

// View renders the three guard screens.
type View interface {
	// Loading shows a placeholder. It must not block.
	Loading(ctx context.Context)
	// Public runs the sign-in flow and returns when it is done or aborted.
	Public(ctx context.Context, flow Flow) error
	// Protected runs with Access available through AccessFrom(ctx).
	Protected(ctx context.Context) error
}

// Screen is the outcome of Render.
type Screen int

const (
	ScreenLoading Screen = iota
	ScreenPublic
	ScreenProtected
)

func (s Screen) String() string {
	switch s {
	case ScreenLoading:
		return "loading"
	case ScreenPublic:
		return "public"
	case ScreenProtected:
		return "protected"
	default:
		return "unknown"
	}
}

// Guard decides between loading, public and protected content for a session.
type Guard struct {
	session Session
	view    View
	mount   sync.Once
}

// New returns a Guard over s that renders through v.
func New(s Session, v View) *Guard {
	return &Guard{session: s, view: v}
}

// Mount starts the status check in the background. Only the first call
// per guard does anything.
func (g *Guard) Mount(ctx context.Context) {
	g.mount.Do(func() {
		go g.session.CheckAuthStatus(ctx)
	})
}

// Render picks the screen for the current session state.
func (g *Guard) Render() Screen {
	switch {
	case g.session.IsLoading():
		return ScreenLoading
	case !g.session.IsAuthenticated():
		return ScreenPublic
	default:
		return ScreenProtected
	}
}

// Run mounts the guard and drives the view until protected content
// finishes. Protected content that fails after the session ended sends the
// user back to the sign-in flow.
func (g *Guard) Run(ctx context.Context) error {
	changed := make(chan struct{}, 1)
	unsubscribe := g.session.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	g.Mount(ctx)

	loadingShown := false
	for {
		screen := g.Render()
		if screen != ScreenLoading {
			loadingShown = false
		}

		switch screen {
		case ScreenLoading:
			if !loadingShown {
				g.view.Loading(ctx)
				loadingShown = true
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-changed:
			}

		case ScreenPublic:
			if err := g.view.Public(ctx, flow{g.session}); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}

		case ScreenProtected:
			err := g.view.Protected(WithAccess(ctx, access{g.session}))
			if err == nil || g.session.IsAuthenticated() || ctx.Err() != nil {
				return err
			}
		}
	}
}

type flow struct{ s Session }

func (f flow) Login(ctx context.Context, creds shelfsdk.Credentials) bool {
	return f.s.Login(ctx, creds)
}

func (f flow) Register(ctx context.Context, reg shelfsdk.Registration) bool {
	return f.s.Register(ctx, reg)
}

func (f flow) Error() string { return f.s.Error() }
