package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	ErrNotFound    = errors.New("kvstore: not found")
	ErrCorrupt     = errors.New("kvstore: corrupt value")
	ErrInvalid     = errors.New("kvstore: value failed validation")
	ErrUnavailable = errors.New("kvstore: storage unavailable")
)

// Event is a change written by another context of the same storage.
type Event struct {
	Key     string
	Value   []byte
	Removed bool
}

// Driver persists raw values. Get returns ErrNotFound for absent keys.
// Watch reports writes made by other contexts only; the returned stop
// function is idempotent.
type Driver interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Watch(ctx context.Context, fn func(Event)) (stop func(), err error)
	Close() error
}

// Change is delivered to subscribers of a key.
type Change struct {
	Key     string
	Value   []byte
	Removed bool
	Remote  bool
}

// Store wraps a Driver with change notification. A nil driver keeps it in memory-only mode.
type Store struct {
	driver Driver
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[string]map[uint64]func(Change)
	nextID uint64

	stopWatch func()
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New wraps driver. A nil driver yields a Store in degraded mode.
func New(driver Driver, opts ...Option) *Store {
	s := &Store{
		driver: driver,
		logger: slog.Default(),
		subs:   make(map[string]map[uint64]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}

	if driver == nil {
		s.logger.Warn("storage unavailable, session data will not persist")
		return s
	}

	stop, err := driver.Watch(context.Background(), s.dispatchRemote)
	if err != nil {
		s.logger.Warn("cross-context notifications disabled", "err", err)
		return s
	}
	s.stopWatch = stop
	return s
}

// Available reports whether the store has a backing driver.
func (s *Store) Available() bool { return s.driver != nil }

// GetRaw returns the stored bytes for key.
func (s *Store) GetRaw(ctx context.Context, key string) ([]byte, error) {
	if s.driver == nil {
		return nil, ErrUnavailable
	}

	value, err := s.driver.Get(ctx, key)
	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, ErrNotFound):
		return nil, ErrNotFound
	default:
		s.logger.Warn("storage read failed", "key", key, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}

// SetRaw writes value and notifies local subscribers once it is persisted.
func (s *Store) SetRaw(ctx context.Context, key string, value []byte) error {
	if s.driver == nil {
		return ErrUnavailable
	}

	if err := s.driver.Set(ctx, key, value); err != nil {
		s.logger.Warn("storage write failed", "key", key, "err", err)
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.notify(Change{Key: key, Value: value})
	return nil
}

// Remove deletes key and notifies local subscribers with Removed set.
func (s *Store) Remove(ctx context.Context, key string) error {
	if s.driver == nil {
		return ErrUnavailable
	}

	if err := s.driver.Delete(ctx, key); err != nil {
		s.logger.Warn("storage delete failed", "key", key, "err", err)
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.notify(Change{Key: key, Removed: true})
	return nil
}

// Clear removes every key given, continuing past failures.
func (s *Store) Clear(ctx context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		if err := s.Remove(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers fn for changes of key, local and remote.
func (s *Store) Subscribe(key string, fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	if s.subs[key] == nil {
		s.subs[key] = make(map[uint64]func(Change))
	}
	s.subs[key][id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[key], id)
	}
}

// Close stops remote notifications and closes the driver.
func (s *Store) Close() error {
	if s.stopWatch != nil {
		s.stopWatch()
	}
	if s.driver == nil {
		return nil
	}
	return s.driver.Close()
}

func (s *Store) dispatchRemote(ev Event) {
	s.notify(Change{Key: ev.Key, Value: ev.Value, Removed: ev.Removed, Remote: true})
}

// notify calls subscribers outside the lock so they may use the store.
func (s *Store) notify(c Change) {
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.subs[c.Key]))
	for _, fn := range s.subs[c.Key] {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}
