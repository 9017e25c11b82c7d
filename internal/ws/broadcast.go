package ws

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/dirsync/server/internal/snapshot"
)

// Broadcaster fans a computed delta out to every registered session. Delivery
// is fire-and-forget: each session has its own bounded queue, and a session
// whose queue is full is disconnected rather than allowed to stall the rest.
type Broadcaster struct {
	registry *Registry

	pubMu sync.Mutex // serialises Publish so per-session delivery order matches publish order
	seq   atomic.Uint64

	published  atomic.Uint64 // non-empty deltas fanned out
	degenerate atomic.Uint64 // empty deltas recorded but delivered to nobody
	dropped    atomic.Uint64 // sessions disconnected for a full queue, never for being mid-close
}

func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Publish delivers delta to every registered session. An empty delta is
// counted and delivered to nobody. A session that cannot accept the frame is
// unregistered and closed; delivery to the remaining sessions continues.
func (b *Broadcaster) Publish(delta snapshot.Delta) {
	if delta.Empty() {
		b.degenerate.Add(1)
		return
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	frame, err := Encode(MsgDelta, b.seq.Add(1), DeltaPayload{
		Added:    delta.Added,
		Removed:  delta.Removed,
		Modified: delta.Modified,
	})
	if err != nil {
		log.Printf("broadcast encode error: %v", err)
		return
	}

	b.published.Add(1)
	for _, s := range b.registry.Snapshot() {
		switch s.enqueue(frame) {
		case frameQueued:
		case refusedClosed:
			// Already leaving on its own; take it out of the fan-out
			// without charging it as a backpressure drop.
			b.registry.Unregister(s.ID())
		case refusedFull:
			log.Printf("session %s not draining, disconnecting", s.ID())
			b.dropped.Add(1)
			b.registry.Unregister(s.ID())
			s.beginClose()
		}
	}
}

// Counters reports lifetime publish accounting.
func (b *Broadcaster) Counters() (published, degenerate, dropped uint64) {
	return b.published.Load(), b.degenerate.Load(), b.dropped.Load()
}
