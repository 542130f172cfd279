package kvstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/juanclpzq/digital-library/pkg/kvstore"
	"github.com/juanclpzq/digital-library/pkg/kvstore/drivers/memory"
	"github.com/juanclpzq/digital-library/pkg/slogx"
)

type pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func validPair(p *pair) error {
	if p == nil || p.Access == "" {
		return errors.New("access token required")
	}
	return nil
}

type changes[T any] struct {
	mu  sync.Mutex
	got []kvstore.ValueChange[T]
}

func (c *changes[T]) add(v kvstore.ValueChange[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, v)
}

func (c *changes[T]) snapshot() []kvstore.ValueChange[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]kvstore.ValueChange[T](nil), c.got...)
}

func newStore(t *testing.T, p *memory.Profile) *kvstore.Store {
	t.Helper()
	s := kvstore.New(p.Open(), kvstore.WithLogger(slogx.Discard()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEntryRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newStore(t, memory.NewProfile())
	e := kvstore.NewEntry[*pair](s, "authTokens")

	require.Nil(t, e.Get(ctx, nil))
	_, err := e.Load(ctx)
	require.ErrorIs(t, err, kvstore.ErrNotFound)

	require.NoError(t, e.Set(ctx, &pair{Access: "a", Refresh: "r"}))
	require.Equal(t, &pair{Access: "a", Refresh: "r"}, e.Get(ctx, nil))

	require.NoError(t, e.Remove(ctx))
	require.Nil(t, e.Get(ctx, nil))
}

func TestEntryCorruptAndInvalid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p := memory.NewProfile()
	s := newStore(t, p)
	e := kvstore.NewEntry(s, "authTokens", kvstore.WithValidator(validPair))

	p.Seed("authTokens", []byte("{not json"))
	_, err := e.Load(ctx)
	require.ErrorIs(t, err, kvstore.ErrCorrupt)
	def := &pair{Access: "default"}
	require.Same(t, def, e.Get(ctx, def))

	p.Seed("authTokens", []byte(`{"access":""}`))
	_, err = e.Load(ctx)
	require.ErrorIs(t, err, kvstore.ErrInvalid)
	require.Nil(t, e.Get(ctx, nil))
}

func TestLocalNotificationsAreSynchronous(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newStore(t, memory.NewProfile())
	e := kvstore.NewEntry[string](s, "theme")

	var rec changes[string]
	unsubscribe := e.OnChange(rec.add)

	require.NoError(t, e.Set(ctx, ""))
	require.NoError(t, e.Remove(ctx))

	got := rec.snapshot()
	require.Len(t, got, 2)
	require.False(t, got[0].Removed)
	require.False(t, got[0].Remote)
	require.Equal(t, "", got[0].Value)
	require.True(t, got[1].Removed)

	unsubscribe()
	require.NoError(t, e.Set(ctx, "dark"))
	require.Len(t, rec.snapshot(), 2)
}

func TestRemoteNotifications(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p := memory.NewProfile()
	tabA, tabB := newStore(t, p), newStore(t, p)
	entryA := kvstore.NewEntry(tabA, "authTokens", kvstore.WithValidator(validPair))
	entryB := kvstore.NewEntry(tabB, "authTokens", kvstore.WithValidator(validPair))

	var rec changes[*pair]
	entryB.OnChange(rec.add)

	require.NoError(t, entryA.Set(ctx, &pair{Access: "T1", Refresh: "R1"}))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	got := rec.snapshot()[0]
	require.True(t, got.Remote)
	require.NoError(t, got.Err)
	require.Equal(t, &pair{Access: "T1", Refresh: "R1"}, got.Value)

	require.NoError(t, tabA.SetRaw(ctx, "authTokens", []byte(`{"access":""}`)))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, rec.snapshot()[1].Err, kvstore.ErrInvalid)

	require.NoError(t, entryA.Remove(ctx))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	require.True(t, rec.snapshot()[2].Removed)
}

func TestDegradedStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("no driver", func(t *testing.T) {
		s := kvstore.New(nil, kvstore.WithLogger(slogx.Discard()))
		require.False(t, s.Available())

		e := kvstore.NewEntry[string](s, "k")
		require.Equal(t, "def", e.Get(ctx, "def"))
		require.ErrorIs(t, e.Set(ctx, "v"), kvstore.ErrUnavailable)
		require.ErrorIs(t, e.Remove(ctx), kvstore.ErrUnavailable)
		require.NoError(t, s.Close())
	})

	t.Run("driver failing", func(t *testing.T) {
		p := memory.NewProfile()
		s := newStore(t, p)
		p.SetDisabled(true)

		var fired bool
		e := kvstore.NewEntry[string](s, "k")
		e.OnChange(func(kvstore.ValueChange[string]) { fired = true })

		require.Equal(t, "def", e.Get(ctx, "def"))
		_, err := e.Load(ctx)
		require.ErrorIs(t, err, kvstore.ErrUnavailable)
		require.ErrorIs(t, e.Set(ctx, "v"), kvstore.ErrUnavailable)
		require.False(t, fired)
	})
}

func TestClearRemovesEveryKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p := memory.NewProfile()
	s := newStore(t, p)
	require.NoError(t, s.SetRaw(ctx, "a", []byte("1")))
	require.NoError(t, s.SetRaw(ctx, "b", []byte("2")))

	require.NoError(t, s.Clear(ctx, "a", "b", "missing"))
	_, okA := p.Raw("a")
	_, okB := p.Raw("b")
	require.False(t, okA)
	require.False(t, okB)
}
