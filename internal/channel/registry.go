package channel

import (
	"sort"
	"sync"

	"foodtrack/internal/contracts"
)

// registry is a publish/subscribe table keyed by event name.
type registry struct {
	mu       sync.Mutex
	next     int
	handlers map[string]map[int]func(contracts.Frame)
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string]map[int]func(contracts.Frame))}
}

// on registers fn and returns an idempotent disposer.
func (r *registry) on(event string, fn func(contracts.Frame)) func() {
	r.mu.Lock()
	r.next++
	id := r.next
	if r.handlers[event] == nil {
		r.handlers[event] = make(map[int]func(contracts.Frame))
	}
	r.handlers[event][id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.handlers[event], id)
			r.mu.Unlock()
		})
	}
}

// dispatch calls the subscribers of f.Event in subscription order, outside the lock.
func (r *registry) dispatch(f contracts.Frame) {
	r.mu.Lock()
	subs := r.handlers[f.Event]
	ids := make([]int, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(contracts.Frame), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, subs[id])
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(f)
	}
}

// Connectivity is the observable connected flag of a Client.
type Connectivity struct {
	mu       sync.Mutex
	value    bool
	next     int
	watchers map[int]func(bool)
}

func (c *Connectivity) Get() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Watch calls fn on every change until the returned disposer runs.
func (c *Connectivity) Watch(fn func(bool)) func() {
	c.mu.Lock()
	if c.watchers == nil {
		c.watchers = make(map[int]func(bool))
	}
	c.next++
	id := c.next
	c.watchers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			c.mu.Unlock()
		})
	}
}

// set reports the previous value. Watchers only hear about changes.
func (c *Connectivity) set(v bool) bool {
	c.mu.Lock()
	prev := c.value
	c.value = v
	var fns []func(bool)
	if prev != v {
		ids := make([]int, 0, len(c.watchers))
		for id := range c.watchers {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			fns = append(fns, c.watchers[id])
		}
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
	return prev
}
