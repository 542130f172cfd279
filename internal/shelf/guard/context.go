package guard

import (
	"context"

	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

// Access is what protected code may do with the session: read who is
// signed in and obtain a token. It cannot log in or out.
type Access interface {
	IsAuthenticated() bool
	User() *shelfsdk.User
	GetValidToken(ctx context.Context) (string, error)
}

type accessKey struct{}

// access narrows a Session so callers cannot type-assert their way back to
// the full API.
type access struct{ s Session }

func (a access) IsAuthenticated() bool { return a.s.IsAuthenticated() }

func (a access) User() *shelfsdk.User { return a.s.User() }

func (a access) GetValidToken(ctx context.Context) (string, error) {
	return a.s.GetValidToken(ctx)
}

// WithAccess returns a copy of ctx carrying a.
func WithAccess(ctx context.Context, a Access) context.Context {
	return context.WithValue(ctx, accessKey{}, a)
}

// AccessFrom returns the Access stored in ctx, if any.
func AccessFrom(ctx context.Context) (Access, bool) {
	a, ok := ctx.Value(accessKey{}).(Access)
	return a, ok
}

// MustAccess panics when ctx was not prepared by a Guard.
func MustAccess(ctx context.Context) Access {
	a, ok := AccessFrom(ctx)
	if !ok {
		panic("guard: no session access in context")
	}
	return a
}
