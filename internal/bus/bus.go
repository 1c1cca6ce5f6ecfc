// Package bus fans domain events out to in-process subscribers.
package bus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Bus delivers each published event to every subscriber whose namespace is
// a prefix of the event kind. Publish never blocks. A Subscribe subscriber
// with a full buffer misses the event and the drop is counted; a Follow
// subscriber queues it instead.
type Bus struct {
	mu        sync.RWMutex
	subs      map[*subscriber]struct{}
	followers map[*follower]struct{}
	now       func() time.Time
	dropped   atomic.Uint64
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs:      make(map[*subscriber]struct{}),
		followers: make(map[*follower]struct{}),
		now:       time.Now,
	}
}

// Publish delivers evt, stamping Timestamp when it is zero. A single
// subscriber sees events in publish order.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = b.now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !strings.HasPrefix(evt.Kind, s.prefix) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
	for f := range b.followers {
		if strings.HasPrefix(evt.Kind, f.prefix) {
			f.push(evt)
		}
	}
}

// Subscribe registers a subscriber for kinds starting with namespace; the
// empty namespace matches everything. The returned cancel func may be
// called more than once. The channel is never closed.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	s := &subscriber{prefix: namespace, ch: make(chan Event, max(bufSize, 0))}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	return s.ch, func() {
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
	}
}

// Follow is Subscribe without loss: events queue up behind a slow reader
// and arrive in publish order. The backlog is unbounded, so the reader must
// keep draining until it calls cancel. The channel is never closed.
func (b *Bus) Follow(namespace string) (<-chan Event, func()) {
	f := &follower{
		prefix: namespace,
		wake:   make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	b.followers[f] = struct{}{}
	b.mu.Unlock()
	go f.run()

	var once sync.Once
	return f.out, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.followers, f)
			b.mu.Unlock()
			close(f.done)
		})
	}
}

// Subscribers returns the number of live subscriptions of both kinds.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs) + len(b.followers)
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

type follower struct {
	prefix string

	mu      sync.Mutex
	backlog []Event
	wake    chan struct{}
	out     chan Event
	done    chan struct{}
}

func (f *follower) push(evt Event) {
	f.mu.Lock()
	f.backlog = append(f.backlog, evt)
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *follower) next() (Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.backlog) == 0 {
		return Event{}, false
	}
	evt := f.backlog[0]
	f.backlog[0] = Event{}
	f.backlog = f.backlog[1:]
	return evt, true
}

// run hands the backlog to the reader one event at a time.
func (f *follower) run() {
	for {
		evt, ok := f.next()
		if !ok {
			select {
			case <-f.wake:
				continue
			case <-f.done:
				return
			}
		}
		select {
		case f.out <- evt:
		case <-f.done:
			return
		}
	}
}
