// Package sqlite is a file-backed kvstore driver. Several processes may open
// the same file; each one sees the others' writes through Watch.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/juanclpzq/digital-library/pkg/cryptox"
	"github.com/juanclpzq/digital-library/pkg/idx"
	"github.com/juanclpzq/digital-library/pkg/kvstore"
)

const (
	MemoryPath          = ":memory:"
	DefaultPollInterval = 2 * time.Second
)

// Driver is a kvstore.Driver backed by a SQLite file that other processes may share.
type Driver struct {
	db           *sql.DB
	path         string
	origin       idx.ID
	sealer       cryptox.Sealer
	pollInterval time.Duration
	logger       *slog.Logger
	now          func() time.Time

	closeOnce sync.Once
}

var _ kvstore.Driver = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithSealer encrypts values at rest. The key name is bound as associated
// data so a value cannot be replayed under another key.
func WithSealer(s cryptox.Sealer) Option {
	return func(d *Driver) { d.sealer = s }
}

// WithPollInterval sets how often Watch checks for foreign writes when the
// file watcher reports nothing.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Driver) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithLogger sets the driver logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string, opts ...Option) (*Driver, error) {
	d := &Driver{
		path:         path,
		origin:       idx.New(),
		pollInterval: DefaultPollInterval,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers
	// within the process.
	db.SetMaxOpenConns(1)
	d.db = db

	if err := d.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", path, err)
	}

	d.logger = d.logger.With("store_path", path, "origin", d.origin.String())
	return d, nil
}

func dsn(path string) string {
	if path == MemoryPath {
		return "file::memory:?_pragma=busy_timeout(5000)&_txlock=immediate"
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

// Origin identifies this driver instance in the rows it writes.
func (d *Driver) Origin() idx.ID { return d.origin }

// Get returns the live value of key, opened with the sealer when one is set.
func (d *Driver) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ? AND deleted = 0`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kvstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d.open(key, value)
}

// Set writes value under a new revision stamped with this driver's origin.
func (d *Driver) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := d.seal(key, value)
	if err != nil {
		return err
	}

	return d.withTx(ctx, func(tx *sql.Tx) error {
		rev, err := nextRev(ctx, tx)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, rev, deleted, origin, updated_at)
			VALUES (?, ?, ?, 0, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				rev = excluded.rev,
				deleted = 0,
				origin = excluded.origin,
				updated_at = excluded.updated_at`,
			key, sealed, rev, d.origin.String(), d.now().UTC(),
		)
		return err
	})
}

// Delete leaves a tombstone so watchers in other processes observe it.
func (d *Driver) Delete(ctx context.Context, key string) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		rev, err := nextRev(ctx, tx)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE kv SET value = NULL, deleted = 1, rev = ?, origin = ?, updated_at = ?
			WHERE key = ? AND deleted = 0`,
			rev, d.origin.String(), d.now().UTC(), key,
		)
		return err
	})
}

func (d *Driver) Close() error {
	var err error
	d.closeOnce.Do(func() { err = d.db.Close() })
	return err
}

// withTx runs fn in a transaction. Only tx may be used inside fn.
func (d *Driver) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func nextRev(ctx context.Context, tx *sql.Tx) (int64, error) {
	var rev int64
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(rev), 0) + 1 FROM kv`).Scan(&rev)
	return rev, err
}

func (d *Driver) seal(key string, value []byte) ([]byte, error) {
	if d.sealer == nil {
		return value, nil
	}
	return d.sealer.Seal(value, []byte(key))
}

func (d *Driver) open(key string, value []byte) ([]byte, error) {
	if d.sealer == nil {
		return value, nil
	}
	plain, err := d.sealer.Open(value, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return plain, nil
}
