package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/juanclpzq/digital-library/internal/shelf/guard"
	"github.com/juanclpzq/digital-library/internal/shelf/session"
	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

// endedAccess is what protected code sees when another process signed out
// after the guard let it through.
type endedAccess struct{}

func (endedAccess) IsAuthenticated() bool { return false }
func (endedAccess) User() *shelfsdk.User { return nil }
func (endedAccess) GetValidToken(context.Context) (string, error) {
	return "", session.ErrNotAuthenticated
}

func TestCommandsWithEndedSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		cmd  func(*Application, []string) (action, error)
	}{
		{name: "whoami", cmd: (*Application).whoamiCmd},
		{name: "whoami json", args: []string{"-json"}, cmd: (*Application).whoamiCmd},
		{name: "profile", cmd: (*Application).profileCmd},
		{name: "prefs", cmd: (*Application).prefsCmd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			a := &Application{out: &out, errOut: &out}

			run, err := tt.cmd(a, tt.args)
			require.NoError(t, err)

			ctx := guard.WithAccess(context.Background(), endedAccess{})
			require.NotPanics(t, func() {
				err = run(ctx)
			})
			require.ErrorIs(t, err, session.ErrNotAuthenticated)
			require.Empty(t, out.String())
		})
	}
}
