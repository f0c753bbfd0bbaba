package events

import (
	"sync"

	"github.com/google/uuid"
)

const subscriberBuffer = 64

// Broker fans emitted events out to any number of subscribers. Slow
// subscribers drop events rather than back-pressuring the ledger path;
// consumers that need a complete view re-sync through the query surface.
type Broker struct {
	mu   sync.Mutex
	subs map[string]chan *Record
}

// NewBroker constructs an empty event broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]chan *Record)}
}

// Emit implements the Emitter interface.
func (b *Broker) Emit(ev Event) {
	if b == nil || ev == nil {
		return
	}
	record := ev.Record()
	if record == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- record:
		default:
		}
	}
}

// Subscribe registers a new subscriber and returns its channel together with
// a cancel function that must be called to release the subscription.
func (b *Broker) Subscribe() (string, <-chan *Record, func()) {
	id := uuid.NewString()
	ch := make(chan *Record, subscriberBuffer)
	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
		b.mu.Unlock()
	}
	return id, ch, cancel
}
