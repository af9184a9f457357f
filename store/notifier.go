// Package store holds pieces shared by the DocumentStore backends.
package store

import (
	"context"
	"sync"

	"github.com/warp/casebook/casebook"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 16

// =============================================================================
// NOTIFIER - In-process change fan-out
// =============================================================================

// Notifier fans out changes to subscribers of a collection. Backends that
// have no native change feed (memory, sqlite) publish to it after each write.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[casebook.Collection]map[int]chan casebook.Change
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[casebook.Collection]map[int]chan casebook.Change)}
}

// Subscribe registers a subscriber. The channel is closed when ctx is done.
func (n *Notifier) Subscribe(ctx context.Context, c casebook.Collection) <-chan casebook.Change {
	ch := make(chan casebook.Change, subscriberBuffer)

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	if n.subs[c] == nil {
		n.subs[c] = make(map[int]chan casebook.Change)
	}
	n.subs[c][id] = ch
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.subs[c], id)
		n.mu.Unlock()
		close(ch)
	}()
	return ch
}

// Publish delivers change to every subscriber of its collection. A subscriber
// with a full buffer misses it; it already has a change pending.
func (n *Notifier) Publish(change casebook.Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs[change.Collection] {
		select {
		case ch <- change:
		default:
		}
	}
}
