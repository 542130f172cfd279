package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/juanclpzq/digital-library/internal/shelf/guard"
	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

const maxSignInAttempts = 3

// terminalView renders guard screens on the terminal. Its protected
// screen is the command the user asked for.
type terminalView struct {
	app      *Application
	run      func(ctx context.Context) error
	attempts int
}

func (v *terminalView) Loading(context.Context) {
	fmt.Fprintln(v.app.errOut, "Checking session...")
}

// Public asks for credentials. Answering "register" at the email prompt
// creates an account instead. A failed attempt returns nil so the guard
// asks again; running out of attempts or input aborts.
func (v *terminalView) Public(ctx context.Context, flow guard.Flow) error {
	if v.attempts >= maxSignInAttempts {
		return guard.ErrAborted
	}
	v.attempts++

	if v.attempts == 1 {
		fmt.Fprintln(v.app.errOut, "You are not signed in.")
	}
	email, err := v.app.prompt("Email (or \"register\")")
	if err != nil {
		return abortOnEOF(err)
	}

	var ok bool
	if strings.EqualFold(email, "register") {
		reg, err := v.app.askRegistration()
		if err != nil {
			return abortOnEOF(err)
		}
		ok = flow.Register(ctx, reg)
	} else {
		password, err := v.app.promptSecret("Password")
		if err != nil {
			return abortOnEOF(err)
		}
		ok = flow.Login(ctx, shelfsdk.Credentials{Email: email, Password: password})
	}

	if !ok {
		fmt.Fprintln(v.app.errOut, "Sign-in failed:", flow.Error())
	}
	return nil
}

func (v *terminalView) Protected(ctx context.Context) error {
	return v.run(ctx)
}

func (a *Application) askRegistration() (shelfsdk.Registration, error) {
	var reg shelfsdk.Registration
	var err error
	if reg.Email, err = a.prompt("Email"); err != nil {
		return reg, err
	}
	if reg.FirstName, err = a.prompt("First name"); err != nil {
		return reg, err
	}
	if reg.LastName, err = a.prompt("Last name"); err != nil {
		return reg, err
	}
	if reg.Password, err = a.promptSecret("Password"); err != nil {
		return reg, err
	}
	return reg, nil
}

func abortOnEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return guard.ErrAborted
	}
	return err
}

// protect runs fn behind the guard: it waits for the session check and
// signs the user in first if needed.
func (a *Application) protect(ctx context.Context, fn func(ctx context.Context) error) error {
	view := &terminalView{app: a, run: fn}
	return guard.New(a.session, view).Run(ctx)
}
