package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/juanclpzq/digital-library/pkg/kvstore"
)

// Watch reports rows written by other origins. Writes are detected through
// fsnotify on the database directory, with a poll ticker as the fallback for
// filesystems that do not deliver events.
func (d *Driver) Watch(ctx context.Context, fn func(kvstore.Event)) (func(), error) {
	var last int64
	if err := d.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(rev), 0) FROM kv`).Scan(&last); err != nil {
		return nil, err
	}

	var watcher *fsnotify.Watcher
	if d.path != MemoryPath {
		w, err := fsnotify.NewWatcher()
		if err == nil {
			err = w.Add(filepath.Dir(d.path))
			if err != nil {
				_ = w.Close()
			} else {
				watcher = w
			}
		}
		if err != nil {
			d.logger.Warn("file watch unavailable, polling only", "err", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.watchLoop(ctx, watcher, last, fn)
		return nil
	})

	stop := sync.OnceFunc(func() {
		cancel()
		_ = g.Wait()
		if watcher != nil {
			_ = watcher.Close()
		}
	})
	return stop, nil
}

func (d *Driver) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, last int64, fn func(kvstore.Event)) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	var (
		fsEvents <-chan fsnotify.Event
		fsErrors <-chan error
	)
	if watcher != nil {
		fsEvents, fsErrors = watcher.Events, watcher.Errors
	}
	base := filepath.Base(d.path)

	poll := func() {
		events, rev, err := d.changesSince(ctx, last)
		if err != nil {
			if ctx.Err() == nil {
				d.logger.Warn("failed to read store changes", "err", err)
			}
			return
		}
		last = rev
		for _, ev := range events {
			fn(ev)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		case ev, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if strings.HasPrefix(filepath.Base(ev.Name), base) && ev.Has(fsnotify.Write|fsnotify.Create) {
				poll()
			}
		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			d.logger.Warn("file watch error", "err", err)
		}
	}
}

// changesSince collects foreign rows with rev > last. Rows are closed before
// the caller dispatches, since handlers may read the store again.
func (d *Driver) changesSince(ctx context.Context, last int64) ([]kvstore.Event, int64, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT key, value, deleted, rev, origin FROM kv WHERE rev > ? ORDER BY rev`, last,
	)
	if err != nil {
		return nil, last, err
	}
	defer rows.Close()

	var events []kvstore.Event
	for rows.Next() {
		var (
			key     string
			value   []byte
			deleted bool
			rev     int64
			origin  string
		)
		if err := rows.Scan(&key, &value, &deleted, &rev, &origin); err != nil {
			return nil, last, err
		}
		if rev > last {
			last = rev
		}
		if origin == d.origin.String() {
			continue
		}
		if deleted {
			events = append(events, kvstore.Event{Key: key, Removed: true})
			continue
		}
		plain, err := d.open(key, value)
		if err != nil {
			d.logger.Warn("skipping unreadable change", "key", key, "err", err)
			continue
		}
		events = append(events, kvstore.Event{Key: key, Value: plain})
	}
	if err := rows.Err(); err != nil {
		return nil, last, err
	}
	return events, last, nil
}
