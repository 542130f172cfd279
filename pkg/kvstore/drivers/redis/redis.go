// Package redis is a kvstore driver backed by Redis. Writes are announced on
// a pub/sub channel so every client sharing the namespace can follow them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/juanclpzq/digital-library/pkg/idx"
	"github.com/juanclpzq/digital-library/pkg/kvstore"
)

// DefaultNamespace prefixes keys and the change channel when none is given.
const DefaultNamespace = "shelf"

// Driver is a kvstore.Driver over Redis keys with pub/sub change notification.
type Driver struct {
	client    *goredis.Client
	namespace string
	origin    idx.ID
	logger    *slog.Logger
}

var _ kvstore.Driver = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the driver logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// New wraps client. The driver takes ownership and closes it on Close.
func New(client *goredis.Client, namespace string, opts ...Option) *Driver {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	d := &Driver{
		client:    client,
		namespace: namespace,
		origin:    idx.New(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// message is published on the changes channel after every write.
type message struct {
	Key     string `json:"key"`
	Value   []byte `json:"value,omitempty"`
	Removed bool   `json:"removed,omitempty"`
	Origin  string `json:"origin"`
}

func (d *Driver) key(k string) string { return d.namespace + ":" + k }

func (d *Driver) channel() string { return d.namespace + ":changes" }

// Get returns the stored value or kvstore.ErrNotFound.
func (d *Driver) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := d.client.Get(ctx, d.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, kvstore.ErrNotFound
	}
	return value, err
}

// Set writes value and publishes the change.
func (d *Driver) Set(ctx context.Context, key string, value []byte) error {
	payload, err := json.Marshal(message{Key: key, Value: value, Origin: d.origin.String()})
	if err != nil {
		return err
	}

	_, err = d.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, d.key(key), value, 0)
		p.Publish(ctx, d.channel(), payload)
		return nil
	})
	return err
}

// Delete announces the removal only when the key existed.
func (d *Driver) Delete(ctx context.Context, key string) error {
	n, err := d.client.Del(ctx, d.key(key)).Result()
	if err != nil || n == 0 {
		return err
	}

	payload, err := json.Marshal(message{Key: key, Removed: true, Origin: d.origin.String()})
	if err != nil {
		return err
	}
	return d.client.Publish(ctx, d.channel(), payload).Err()
}

// Watch subscribes to the change channel and skips this driver's own writes.
func (d *Driver) Watch(ctx context.Context, fn func(kvstore.Event)) (func(), error) {
	sub := d.client.Subscribe(ctx, d.channel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range sub.Channel() {
			var m message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				d.logger.Warn("ignoring malformed change message", "err", err)
				continue
			}
			if m.Origin == d.origin.String() {
				continue
			}
			fn(kvstore.Event{Key: m.Key, Value: m.Value, Removed: m.Removed})
		}
	}()

	stop := sync.OnceFunc(func() {
		_ = sub.Close()
		<-done
	})
	context.AfterFunc(ctx, stop)
	return stop, nil
}

func (d *Driver) Close() error { return d.client.Close() }
