package events

import "sync"

// DefaultSubscriberBuffer is the per-subscriber channel capacity.
const DefaultSubscriberBuffer = 64

// Feed is a typed broadcast channel. The zero value is not usable; create
// with NewFeed.
type Feed[T any] struct {
	mu      sync.Mutex
	subs    map[int]chan T
	nextID  int
	bufSize int
	closed  bool

	published int64
	dropped   int64
}

// NewFeed creates a feed whose subscribers get channels of the given
// capacity. bufSize < 1 falls back to DefaultSubscriberBuffer.
func NewFeed[T any](bufSize int) *Feed[T] {
	if bufSize < 1 {
		bufSize = DefaultSubscriberBuffer
	}
	return &Feed[T]{
		subs:    make(map[int]chan T),
		bufSize: bufSize,
	}
}

// Subscribe registers a new listener. The returned cancel function is
// idempotent and closes the listener's channel.
func (f *Feed[T]) Subscribe() (<-chan T, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan T, f.bufSize)
	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			if c, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(c)
			}
			f.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber without blocking. When a
// subscriber's buffer is full its oldest event is evicted so the newest one
// always lands; one slow listener never delays the rest.
func (f *Feed[T]) Publish(ev T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.published++

	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
				f.dropped++
			default:
			}
			select {
			case ch <- ev:
			default:
				f.dropped++
			}
		}
	}
}

// Close shuts the feed down and closes every subscriber channel. Publish and
// Subscribe after Close are no-ops.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}

// Stats returns publish/drop counters and the current subscriber count.
func (f *Feed[T]) Stats() (published, dropped int64, subscribers int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published, f.dropped, len(f.subs)
}
