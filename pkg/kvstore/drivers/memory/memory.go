// Package memory is an in-process kvstore driver. A Profile is the shared
// storage; each Context opened on it behaves like a separate browser tab
// that observes writes made by the others.
package memory

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/juanclpzq/digital-library/pkg/kvstore"
)

// ErrDisabled is returned by every operation while the profile is disabled.
var ErrDisabled = errors.New("memory: storage disabled")

// Profile is storage shared by all contexts opened on it.
type Profile struct {
	mu       sync.Mutex
	data     map[string][]byte
	contexts map[uint64]*Context
	nextID   uint64
	disabled bool
}

// NewProfile returns an empty, enabled Profile.
func NewProfile() *Profile {
	return &Profile{
		data:     make(map[string][]byte),
		contexts: make(map[uint64]*Context),
	}
}

// Open returns a new context attached to the profile.
func (p *Profile) Open() *Context {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	c := &Context{
		profile:  p,
		id:       p.nextID,
		watchers: make(map[uint64]*mailbox),
	}
	p.contexts[c.id] = c
	return c
}

// SetDisabled makes every operation on the profile fail, as when storage is
// blocked by policy.
func (p *Profile) SetDisabled(disabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disabled = disabled
}

// Raw returns the stored bytes for key without notifying anyone.
func (p *Profile) Raw(key string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.data[key]
	return bytes.Clone(v), ok
}

// Seed writes raw bytes without notifying anyone.
func (p *Profile) Seed(key string, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = bytes.Clone(value)
}

func (p *Profile) others(id uint64) []*Context {
	out := make([]*Context, 0, len(p.contexts))
	for cid, c := range p.contexts {
		if cid != id {
			out = append(out, c)
		}
	}
	return out
}

// Context is one participant of a Profile. It implements kvstore.Driver.
type Context struct {
	profile *Profile
	id      uint64

	mu       sync.Mutex
	watchers map[uint64]*mailbox
	nextID   uint64
	closed   bool
}

var _ kvstore.Driver = (*Context)(nil)

// Get returns a copy of the value shared by the profile.
func (c *Context) Get(_ context.Context, key string) ([]byte, error) {
	p := c.profile
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disabled {
		return nil, ErrDisabled
	}
	v, ok := p.data[key]
	if !ok {
		return nil, kvstore.ErrNotFound
	}
	return bytes.Clone(v), nil
}

// Set stores value. Other contexts are told only when the value changed.
// Events are queued under the profile lock, so every watcher sees writes
// in the order they were applied.
func (c *Context) Set(_ context.Context, key string, value []byte) error {
	p := c.profile
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disabled {
		return ErrDisabled
	}
	prev, existed := p.data[key]
	p.data[key] = bytes.Clone(value)
	if existed && bytes.Equal(prev, value) {
		return nil
	}
	for _, t := range p.others(c.id) {
		t.deliver(kvstore.Event{Key: key, Value: bytes.Clone(value)})
	}
	return nil
}

// Delete removes key. Other contexts are told only when it existed.
func (c *Context) Delete(_ context.Context, key string) error {
	p := c.profile
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disabled {
		return ErrDisabled
	}
	if _, existed := p.data[key]; !existed {
		return nil
	}
	delete(p.data, key)
	for _, t := range p.others(c.id) {
		t.deliver(kvstore.Event{Key: key, Removed: true})
	}
	return nil
}

// Watch delivers events from other contexts on a dedicated goroutine, in
// the order they were written.
func (c *Context) Watch(ctx context.Context, fn func(kvstore.Event)) (func(), error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("memory: context closed")
	}
	c.nextID++
	id := c.nextID
	mb := newMailbox()
	c.watchers[id] = mb
	c.mu.Unlock()

	go mb.run(fn)

	stop := sync.OnceFunc(func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
		mb.close()
	})
	context.AfterFunc(ctx, stop)
	return stop, nil
}

// Close detaches the context from its profile and stops its watchers.
func (c *Context) Close() error {
	p := c.profile
	p.mu.Lock()
	delete(p.contexts, c.id)
	p.mu.Unlock()

	c.mu.Lock()
	c.closed = true
	watchers := c.watchers
	c.watchers = make(map[uint64]*mailbox)
	c.mu.Unlock()

	for _, mb := range watchers {
		mb.close()
	}
	return nil
}

// deliver never blocks; it is called with the profile lock held.
func (c *Context) deliver(ev kvstore.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, mb := range c.watchers {
		mb.push(ev)
	}
}

// mailbox is an unbounded FIFO so a slow watcher never blocks writers.
type mailbox struct {
	mu     sync.Mutex
	queue  []kvstore.Event
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newMailbox() *mailbox {
	return &mailbox{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (m *mailbox) push(ev kvstore.Event) {
	m.mu.Lock()
	m.queue = append(m.queue, ev)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) close() {
	m.once.Do(func() { close(m.done) })
}

func (m *mailbox) run(fn func(kvstore.Event)) {
	for {
		select {
		case <-m.done:
			return
		case <-m.signal:
		}

		for {
			m.mu.Lock()
			if len(m.queue) == 0 {
				m.mu.Unlock()
				break
			}
			ev := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()

			select {
			case <-m.done:
				return
			default:
			}
			fn(ev)
		}
	}
}
