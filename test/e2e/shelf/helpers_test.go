package shelf_test

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/juanclpzq/digital-library/internal/fakeapi"
	"github.com/juanclpzq/digital-library/internal/shelf/app"
	"github.com/juanclpzq/digital-library/internal/shelf/session"
	"github.com/juanclpzq/digital-library/pkg/cryptox"
	"github.com/juanclpzq/digital-library/pkg/kvstore/drivers/sqlite"
	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
	"github.com/juanclpzq/digital-library/pkg/slogx"
)

/*
 * Every test starts an in-process backend and opens "processes": separate
 * applications with their own sqlite driver on one shared database file,
 * which is what two shelf invocations on the same machine look like.
 */

const pollInterval = 50 * time.Millisecond

var ada = shelfsdk.Registration{
	Email:     "ada@example.com",
	Password:  "analytical",
	FirstName: "Ada",
	LastName:  "Lovelace",
}

type world struct {
	t       *testing.T
	api     *fakeapi.Server
	url     string
	dbPath  string
	keyFile string
}

func newWorld(t *testing.T, opts ...fakeapi.Option) *world {
	t.Helper()

	api := fakeapi.New(opts...)
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	w := &world{
		t:       t,
		api:     api,
		url:     ts.URL,
		dbPath:  filepath.Join(dir, "session.db"),
		keyFile: filepath.Join(dir, "session.key"),
	}
	_, err := api.SeedUser(ada)
	require.NoError(t, err)
	return w
}

type process struct {
	*app.Application
	out *lockedBuffer
	err *lockedBuffer
}

// spawn opens a new client on the shared database. stdin feeds its prompts.
func (w *world) spawn(stdin string, opts ...session.Option) *process {
	w.t.Helper()

	sealer, err := cryptox.NewSealerFromFile(w.keyFile)
	require.NoError(w.t, err)
	driver, err := sqlite.Open(w.dbPath,
		sqlite.WithSealer(sealer),
		sqlite.WithPollInterval(pollInterval),
		sqlite.WithLogger(slogx.Discard()),
	)
	require.NoError(w.t, err)

	p := &process{out: &lockedBuffer{}, err: &lockedBuffer{}}
	p.Application, err = app.New(w.t.Context(),
		app.Config{APIURL: w.url, StoreDriver: app.DriverSQLite, StorePath: w.dbPath},
		app.WithDriver(driver),
		app.WithIO(strings.NewReader(stdin), p.out, p.err),
		app.WithLogger(slogx.Discard()),
		app.WithSessionOptions(opts...),
	)
	require.NoError(w.t, err)
	w.t.Cleanup(func() { _ = p.Close() })
	return p
}

// exec runs one command in a short-lived process.
func (w *world) exec(stdin string, args ...string) (int, string, string) {
	w.t.Helper()
	p := w.spawn(stdin)
	code := p.Run(w.t.Context(), args)
	return code, p.out.String(), p.err.String()
}

func (w *world) login() {
	w.t.Helper()
	code, _, stderr := w.exec(ada.Password+"\n", "login", "-email", ada.Email)
	require.Equal(w.t, app.ExitOK, code, stderr)
}

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}
