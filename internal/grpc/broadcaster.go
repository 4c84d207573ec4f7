package grpc

import (
	"sync"
	"sync/atomic"

	"github.com/mr1hm/go-citymap/internal/render"
)

const subscriberBuffer = 16

type subscriber struct {
	sessionID string
	ch        chan *render.Scene
}

// Broadcaster fans rendered scenes out to stream subscribers. A subscriber
// only receives scenes of its own session.
type Broadcaster struct {
	subscribers map[uint64]subscriber
	nextID      atomic.Uint64
	mu          sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]subscriber),
	}
}

func (b *Broadcaster) Subscribe(sessionID string) (uint64, chan *render.Scene) {
	id := b.nextID.Add(1)
	ch := make(chan *render.Scene, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[id] = subscriber{sessionID: sessionID, ch: ch}
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Broadcast delivers scene to the subscribers of its session. When a
// subscriber's buffer is full the oldest queued scene is discarded, since
// only the newest scene matters to a map client.
func (b *Broadcaster) Broadcast(scene *render.Scene) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.sessionID != scene.SessionID {
			continue
		}
		select {
		case sub.ch <- scene:
			continue
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- scene:
		default:
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels, causing streams to exit gracefully
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}
