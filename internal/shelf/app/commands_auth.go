package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juanclpzq/digital-library/internal/shelf/guard"
	"github.com/juanclpzq/digital-library/internal/shelf/session"
	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

func (a *Application) loginCmd(args []string) (action, error) {
	fs := a.flags("login")
	email := fs.String("email", "", "account email (prompted when empty)")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		if a.session.CheckAuthStatus(ctx) {
			if user := a.session.User(); user != nil {
				fmt.Fprintf(a.out, "Already signed in as %s\n", user.DisplayName())
				return nil
			}
		}

		creds := shelfsdk.Credentials{Email: *email}
		var err error
		if creds.Email == "" {
			if creds.Email, err = a.prompt("Email"); err != nil {
				return err
			}
		}
		if creds.Password, err = a.promptSecret("Password"); err != nil {
			return err
		}

		if !a.session.Login(ctx, creds) {
			return errors.New(a.session.Error())
		}
		user := a.session.User()
		if user == nil {
			return session.ErrNotAuthenticated
		}
		fmt.Fprintf(a.out, "Signed in as %s\n", user.DisplayName())
		return nil
	}, nil
}

func (a *Application) registerCmd(args []string) (action, error) {
	fs := a.flags("register")
	email := fs.String("email", "", "account email")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		reg := shelfsdk.Registration{Email: *email, FirstName: *first, LastName: *last}
		var err error
		for _, field := range []struct {
			label string
			value *string
		}{
			{"Email", &reg.Email},
			{"First name", &reg.FirstName},
			{"Last name", &reg.LastName},
		} {
			if *field.value != "" {
				continue
			}
			if *field.value, err = a.prompt(field.label); err != nil {
				return err
			}
		}
		if reg.Password, err = a.promptSecret("Password"); err != nil {
			return err
		}

		if !a.session.Register(ctx, reg) {
			return errors.New(a.session.Error())
		}
		user := a.session.User()
		if user == nil {
			return session.ErrNotAuthenticated
		}
		fmt.Fprintf(a.out, "Welcome, %s\n", user.DisplayName())
		return nil
	}, nil
}

func (a *Application) logoutCmd(args []string) (action, error) {
	fs := a.flags("logout")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		if a.session.User() == nil && a.session.Tokens() == nil {
			fmt.Fprintln(a.out, "Not signed in")
			return nil
		}
		a.session.Logout(ctx)
		fmt.Fprintln(a.out, "Signed out")
		return nil
	}, nil
}

// signedInUser returns the user behind the guard. The session can end in
// another process after the guard let the command through.
func signedInUser(ctx context.Context) (*shelfsdk.User, error) {
	user := guard.MustAccess(ctx).User()
	if user == nil {
		return nil, session.ErrNotAuthenticated
	}
	return user, nil
}

func (a *Application) whoamiCmd(args []string) (action, error) {
	fs := a.flags("whoami")
	asJSON := fs.Bool("json", false, "print the user as JSON")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		user, err := signedInUser(ctx)
		if err != nil {
			return err
		}
		if *asJSON {
			return a.printJSON(user)
		}
		fmt.Fprintf(a.out, "%s <%s>\n", user.DisplayName(), user.Email)
		fmt.Fprintf(a.out, "id:      %s\n", user.ID)
		if t := a.session.Tokens(); t != nil {
			fmt.Fprintf(a.out, "expires: %s\n", t.ExpiresAt.Local().Format(time.RFC3339))
		}
		return nil
	}, nil
}

// watchCmd prints every session transition until the context ends or the
// session is gone, whichever comes first.
func (a *Application) watchCmd(args []string) (action, error) {
	fs := a.flags("watch")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		changed := make(chan struct{}, 1)
		unsubscribe := a.session.Subscribe(func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()

		var last string
		for {
			if now := a.describe(); now != last {
				fmt.Fprintln(a.out, now)
				last = now
			}
			if a.session.Status() == session.StatusUnauthenticated {
				return nil
			}

			select {
			case <-ctx.Done():
				return nil
			case <-changed:
			}
		}
	}, nil
}

func (a *Application) describe() string {
	st := a.session.Status()
	user, tokens := a.session.User(), a.session.Tokens()
	switch {
	case st == session.StatusAuthenticated && user != nil && tokens != nil:
		return fmt.Sprintf("%s: %s, token valid until %s", st, user.Email, tokens.ExpiresAt.Local().Format(time.RFC3339))
	default:
		return st.String()
	}
}
