package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/juanclpzq/digital-library/pkg/cryptox"
	"github.com/juanclpzq/digital-library/pkg/kvstore"
	"github.com/juanclpzq/digital-library/pkg/kvstore/drivers/sqlite"
	"github.com/juanclpzq/digital-library/pkg/slogx"
)

type recorder struct {
	mu     sync.Mutex
	events []kvstore.Event
}

func (r *recorder) add(ev kvstore.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []kvstore.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kvstore.Event(nil), r.events...)
}

func open(t *testing.T, path string, opts ...sqlite.Option) *sqlite.Driver {
	t.Helper()
	opts = append([]sqlite.Option{
		sqlite.WithLogger(slogx.Discard()),
		sqlite.WithPollInterval(20 * time.Millisecond),
	}, opts...)
	d, err := sqlite.Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDriverCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	d := open(t, sqlite.MemoryPath)

	_, err := d.Get(ctx, "user")
	require.ErrorIs(t, err, kvstore.ErrNotFound)

	require.NoError(t, d.Set(ctx, "user", []byte(`{"id":"1"}`)))
	got, err := d.Get(ctx, "user")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"1"}`, string(got))

	require.NoError(t, d.Set(ctx, "user", []byte(`{"id":"2"}`)))
	got, err = d.Get(ctx, "user")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"2"}`, string(got))

	require.NoError(t, d.Delete(ctx, "user"))
	_, err = d.Get(ctx, "user")
	require.ErrorIs(t, err, kvstore.ErrNotFound)

	require.NoError(t, d.Set(ctx, "user", []byte(`{"id":"3"}`)))
	_, err = d.Get(ctx, "user")
	require.NoError(t, err)
}

func TestReopenKeepsData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shelf.db")

	first, err := sqlite.Open(path, sqlite.WithLogger(slogx.Discard()))
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "authTokens", []byte(`"x"`)))
	require.NoError(t, first.Close())

	second := open(t, path)
	got, err := second.Get(ctx, "authTokens")
	require.NoError(t, err)
	require.Equal(t, `"x"`, string(got))
}

func TestWatchAcrossProcesses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shelf.db")

	writer := open(t, path)
	reader := open(t, path)
	require.NotEqual(t, writer.Origin(), reader.Origin())

	var fromWriter, fromReader recorder
	stopReader, err := reader.Watch(ctx, fromReader.add)
	require.NoError(t, err)
	defer stopReader()
	stopWriter, err := writer.Watch(ctx, fromWriter.add)
	require.NoError(t, err)
	defer stopWriter()

	require.NoError(t, writer.Set(ctx, "authTokens", []byte(`{"accessToken":"T1"}`)))
	require.NoError(t, writer.Delete(ctx, "user"))
	require.NoError(t, writer.Set(ctx, "user", []byte(`{"id":"1"}`)))
	require.NoError(t, writer.Delete(ctx, "user"))

	// rows hold only their newest state, so writes between two scans
	// coalesce; watchers converge on the final value of each key
	latest := func() map[string]kvstore.Event {
		last := map[string]kvstore.Event{}
		for _, ev := range fromReader.snapshot() {
			last[ev.Key] = ev
		}
		return last
	}
	require.Eventually(t, func() bool {
		last := latest()
		tok, okTok := last["authTokens"]
		user, okUser := last["user"]
		return okTok && !tok.Removed && okUser && user.Removed
	}, 2*time.Second, 10*time.Millisecond)

	last := latest()
	require.JSONEq(t, `{"accessToken":"T1"}`, string(last["authTokens"].Value))
	require.Equal(t, kvstore.Event{Key: "user", Removed: true}, last["user"])

	_, err = reader.Get(ctx, "user")
	require.ErrorIs(t, err, kvstore.ErrNotFound)

	require.Never(t, func() bool { return len(fromWriter.snapshot()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestWatchReportsRevisionOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shelf.db")

	writer := open(t, path)
	reader := open(t, path)

	var seen recorder
	stop, err := reader.Watch(ctx, seen.add)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, writer.Set(ctx, "user", []byte(`{"id":"1"}`)))
	require.NoError(t, writer.Set(ctx, "authTokens", []byte(`{"accessToken":"T1"}`)))
	require.NoError(t, writer.Set(ctx, "user", []byte(`{"id":"2"}`)))

	require.Eventually(t, func() bool {
		events := seen.snapshot()
		return len(events) > 0 && string(events[len(events)-1].Value) == `{"id":"2"}`
	}, 2*time.Second, 10*time.Millisecond)

	// authTokens was written before the last user write, so it is never
	// reported after it
	events := seen.snapshot()
	lastUser, lastTokens := -1, -1
	for i, ev := range events {
		switch ev.Key {
		case "user":
			lastUser = i
		case "authTokens":
			lastTokens = i
		}
	}
	require.NotEqual(t, -1, lastTokens)
	require.Less(t, lastTokens, lastUser)
}

func TestSealedValues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shelf.db")

	sealer, err := cryptox.NewSealer([]byte("correct horse battery staple"))
	require.NoError(t, err)
	other, err := cryptox.NewSealer([]byte("another key entirely"))
	require.NoError(t, err)

	sealed := open(t, path, sqlite.WithSealer(sealer))
	require.NoError(t, sealed.Set(ctx, "authTokens", []byte(`{"refreshToken":"R1"}`)))

	got, err := sealed.Get(ctx, "authTokens")
	require.NoError(t, err)
	require.Equal(t, `{"refreshToken":"R1"}`, string(got))

	plain := open(t, path)
	raw, err := plain.Get(ctx, "authTokens")
	require.NoError(t, err)
	require.NotContains(t, string(raw), "R1")

	wrong := open(t, path, sqlite.WithSealer(other))
	_, err = wrong.Get(ctx, "authTokens")
	require.ErrorIs(t, err, cryptox.ErrOpen)
}

func TestStoreOverSqlite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shelf.db")

	a := kvstore.New(open(t, path), kvstore.WithLogger(slogx.Discard()))
	b := kvstore.New(open(t, path), kvstore.WithLogger(slogx.Discard()))
	defer a.Close()
	defer b.Close()

	type tokens struct {
		AccessToken string `json:"accessToken"`
	}
	entryA := kvstore.NewEntry[*tokens](a, "authTokens")
	entryB := kvstore.NewEntry[*tokens](b, "authTokens")

	seen := make(chan kvstore.ValueChange[*tokens], 4)
	entryB.OnChange(func(c kvstore.ValueChange[*tokens]) { seen <- c })

	require.NoError(t, entryA.Set(ctx, &tokens{AccessToken: "T1"}))

	select {
	case c := <-seen:
		require.True(t, c.Remote)
		require.Equal(t, "T1", c.Value.AccessToken)
	case <-time.After(2 * time.Second):
		t.Fatal("change not observed")
	}
	require.Equal(t, "T1", entryB.Get(ctx, nil).AccessToken)
}
