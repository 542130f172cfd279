package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompt prints label and reads one trimmed line. EOF after partial input
// still returns that input.
func (a *Application) prompt(label string) (string, error) {
	if _, err := fmt.Fprint(a.errOut, label+": "); err != nil {
		return "", err
	}
	line, err := a.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads a password without echo when stdin is a terminal and
// as a plain line otherwise.
func (a *Application) promptSecret(label string) (string, error) {
	read := a.readPassword
	if read == nil {
		f, ok := a.stdin.(*os.File)
		if !ok || !term.IsTerminal(int(f.Fd())) {
			return a.prompt(label)
		}
		read = func() ([]byte, error) { return term.ReadPassword(int(f.Fd())) }
	}

	if _, err := fmt.Fprint(a.errOut, label+": "); err != nil {
		return "", err
	}
	pw, err := read()
	fmt.Fprintln(a.errOut)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
