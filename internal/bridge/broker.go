package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/bizmon/eventrelay/internal/wire"
)

const listenerBufSize = 256

// broker fans out envelopes to every subscribed listener.
type broker struct {
	mu        sync.RWMutex
	listeners map[int64]chan wire.Envelope
	nextID    atomic.Int64
	bufSize   int
	closed    bool
}

func newBroker(bufSize int) *broker {
	if bufSize <= 0 {
		bufSize = listenerBufSize
	}
	return &broker{
		listeners: make(map[int64]chan wire.Envelope),
		bufSize:   bufSize,
	}
}

// subscribe registers a listener. The channel is buffered; slow listeners
// have envelopes dropped. After close the returned channel is already
// closed.
func (b *broker) subscribe() (int64, <-chan wire.Envelope) {
	id := b.nextID.Add(1)
	ch := make(chan wire.Envelope, b.bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.listeners[id] = ch
	return id, ch
}

func (b *broker) unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.listeners[id]
	if ok {
		delete(b.listeners, id)
		close(ch)
	}
	b.mu.Unlock()
}

// publish returns the number of listeners that missed env.
func (b *broker) publish(env wire.Envelope) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	dropped := 0
	for _, ch := range b.listeners {
		select {
		case ch <- env:
		default:
			dropped++
		}
	}
	return dropped
}

func (b *broker) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.listeners {
		delete(b.listeners, id)
		close(ch)
	}
	b.closed = true
}
