package shelf_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/juanclpzq/digital-library/internal/fakeapi"
	"github.com/juanclpzq/digital-library/internal/shelf/app"
	"github.com/juanclpzq/digital-library/internal/shelf/session"
	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

func TestSessionSurvivesRestart(t *testing.T) {
	t.Parallel()
	w := newWorld(t)
	w.login()

	code, stdout, _ := w.exec("", "whoami")
	require.Equal(t, app.ExitOK, code)
	require.Contains(t, stdout, "Ada Lovelace <ada@example.com>")
	require.Equal(t, 1, w.api.Calls("POST /auth/login"))
}

func TestLogoutReachesRunningProcess(t *testing.T) {
	t.Parallel()
	w := newWorld(t)
	w.login()

	watcher := w.spawn("")
	done := make(chan int, 1)
	go func() { done <- watcher.Run(t.Context(), []string{"watch"}) }()

	require.Eventually(t, func() bool {
		return watcher.Session().Status() == session.StatusAuthenticated
	}, 2*time.Second, 10*time.Millisecond)

	code, stdout, _ := w.exec("", "logout")
	require.Equal(t, app.ExitOK, code)
	require.Contains(t, stdout, "Signed out")

	select {
	case code := <-done:
		require.Equal(t, app.ExitOK, code)
	case <-time.After(5 * time.Second):
		t.Fatal("running process did not observe the logout")
	}
	require.Nil(t, watcher.Session().User())
	require.Nil(t, watcher.Session().Tokens())
	require.Contains(t, watcher.out.String(), "unauthenticated")
}

func TestLoginReachesRunningProcess(t *testing.T) {
	t.Parallel()
	w := newWorld(t)

	idle := w.spawn("")
	require.False(t, idle.Session().CheckAuthStatus(t.Context()))

	w.login()

	require.Eventually(t, func() bool {
		return idle.Session().IsAuthenticated()
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, ada.Email, idle.Session().User().Email)
	require.Equal(t, 1, w.api.Calls("POST /auth/login"))
}

// Two processes with the same tokens: the one whose timer fires first
// rotates the pair, the other adopts it without a network call of its own.
func TestRotatedTokensAreShared(t *testing.T) {
	t.Parallel()
	w := newWorld(t, fakeapi.WithAccessTTL(4*time.Second))
	w.login()

	early := w.spawn("",
		session.WithRefreshBuffer(3*time.Second),
		session.WithMinRefreshInterval(100*time.Millisecond),
	)
	late := w.spawn("",
		session.WithRefreshBuffer(time.Second),
		session.WithMinRefreshInterval(100*time.Millisecond),
	)
	require.True(t, early.Session().CheckAuthStatus(t.Context()))
	require.True(t, late.Session().CheckAuthStatus(t.Context()))
	first := early.Session().Tokens().AccessToken

	require.Eventually(t, func() bool {
		return w.api.Calls("POST /auth/refresh") >= 1 &&
			early.Session().Tokens() != nil &&
			early.Session().Tokens().AccessToken != first
	}, 5*time.Second, 20*time.Millisecond)

	rotated := early.Session().Tokens().AccessToken
	require.Eventually(t, func() bool {
		tok := late.Session().Tokens()
		return tok != nil && tok.AccessToken != first
	}, 3*time.Second, 10*time.Millisecond)

	require.True(t, early.Session().IsAuthenticated())
	require.True(t, late.Session().IsAuthenticated())
	require.NotEqual(t, first, rotated)

	token, err := late.Session().GetValidToken(t.Context())
	require.NoError(t, err)
	_, err = shelfsdk.NewClient(w.url).GetProfile(t.Context(), token)
	require.NoError(t, err)
}

func TestRevokedSessionIsDroppedEverywhere(t *testing.T) {
	t.Parallel()
	w := newWorld(t)
	w.login()

	bystander := w.spawn("")
	require.True(t, bystander.Session().CheckAuthStatus(t.Context()))

	me := bystander.Session().User()
	w.api.RevokeSessions(me.ID)

	stale := w.spawn("", session.WithProfileFreshness(time.Nanosecond))
	code := stale.Run(t.Context(), []string{"whoami"})
	require.Equal(t, app.ExitFailure, code)
	require.Contains(t, stale.err.String(), "not signed in")
	require.Equal(t, 1, w.api.Calls("GET /auth/me"))

	require.Eventually(t, func() bool {
		return !bystander.Session().IsAuthenticated() && bystander.Session().User() == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBooksThroughSharedSession(t *testing.T) {
	t.Parallel()
	w := newWorld(t)
	w.login()

	owner := w.spawn("")
	require.True(t, owner.Session().CheckAuthStatus(t.Context()))
	w.api.SeedBooks(owner.Session().User().ID,
		shelfsdk.Book{Title: "Dune", Author: "Frank Herbert", Status: shelfsdk.StatusRead, Rating: 5},
		shelfsdk.Book{Title: "Emma", Author: "Jane Austen", Status: shelfsdk.StatusReading},
	)

	code, stdout, _ := w.exec("", "books", "-sort", "rating", "-desc")
	require.Equal(t, app.ExitOK, code)
	require.Contains(t, stdout, "Dune")
	require.Contains(t, stdout, "Emma")
	require.Less(t, strings.Index(stdout, "Dune"), strings.Index(stdout, "Emma"))
}

