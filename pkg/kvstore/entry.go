package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Entry is a typed, JSON-encoded view of one key.
type Entry[T any] struct {
	store    *Store
	key      string
	validate func(T) error
}

// EntryOption configures an Entry.
type EntryOption[T any] func(*Entry[T])

// WithValidator rejects decoded values that fail fn; they are treated as
// absent. This protects against records written by an older or newer
// client sharing the same storage.
func WithValidator[T any](fn func(T) error) EntryOption[T] {
	return func(e *Entry[T]) { e.validate = fn }
}

// NewEntry returns a typed handle on key in store.
func NewEntry[T any](store *Store, key string, opts ...EntryOption[T]) *Entry[T] {
	e := &Entry[T]{store: store, key: key}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Entry[T]) Key() string { return e.key }

// Load returns the stored value, or the zero value and one of ErrNotFound,
// ErrCorrupt, ErrInvalid or ErrUnavailable.
func (e *Entry[T]) Load(ctx context.Context) (T, error) {
	raw, err := e.store.GetRaw(ctx, e.key)
	if err != nil {
		var zero T
		return zero, err
	}
	return e.decode(raw)
}

// Get returns the stored value or def. Corrupt and invalid records are
// logged, never returned.
func (e *Entry[T]) Get(ctx context.Context, def T) T {
	v, err := e.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrCorrupt) || errors.Is(err, ErrInvalid) {
			e.store.logger.Warn("ignoring stored value", "key", e.key, "err", err)
		}
		return def
	}
	return v
}

// Set encodes v as JSON and stores it.
func (e *Entry[T]) Set(ctx context.Context, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", e.key, err)
	}
	return e.store.SetRaw(ctx, e.key, raw)
}

// Remove deletes the key.
func (e *Entry[T]) Remove(ctx context.Context) error {
	return e.store.Remove(ctx, e.key)
}

// ValueChange is a decoded Change. Err is set when a remote write could not
// be decoded or validated; Value is then the zero value.
type ValueChange[T any] struct {
	Key     string
	Value   T
	Removed bool
	Remote  bool
	Err     error
}

// OnChange subscribes fn to decoded changes of this entry's key.
func (e *Entry[T]) OnChange(fn func(ValueChange[T])) (unsubscribe func()) {
	return e.store.Subscribe(e.key, func(c Change) {
		vc := ValueChange[T]{Key: c.Key, Removed: c.Removed, Remote: c.Remote}
		if !c.Removed {
			vc.Value, vc.Err = e.decode(c.Value)
		}
		fn(vc)
	})
}

func (e *Entry[T]) decode(raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %s: %w", ErrCorrupt, e.key, err)
	}
	if e.validate != nil {
		if err := e.validate(v); err != nil {
			var zero T
			return zero, fmt.Errorf("%w: %s: %w", ErrInvalid, e.key, err)
		}
	}
	return v, nil
}
