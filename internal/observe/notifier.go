// Package observe fans state snapshots out to subscribers.
package observe

import "sync"

// Notifier delivers values to subscribers synchronously, in subscription
// order. Subscribers must not call back into the publisher while it holds
// its own locks.
type Notifier[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(T)
	ids  []int

	seq       uint64
	pubMu     sync.Mutex
	published uint64
}

// Subscribe registers fn and returns a function that removes it.
func (n *Notifier[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func(T))
	}
	id := n.next
	n.next++
	n.subs[id] = fn
	n.ids = append(n.ids, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
			for i, v := range n.ids {
				if v == id {
					n.ids = append(n.ids[:i], n.ids[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish calls every current subscriber with v.
func (n *Notifier[T]) Publish(v T) {
	n.mu.Lock()
	fns := make([]func(T), 0, len(n.ids))
	for _, id := range n.ids {
		fns = append(fns, n.subs[id])
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Stamp reserves the next sequence number. Call it under the lock that
// guards the published state, so stamps follow mutation order.
func (n *Notifier[T]) Stamp() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	return n.seq
}

// PublishStamped delivers v unless a value with a later stamp was already
// delivered. Deliveries never interleave, so subscribers end on the newest
// value.
func (n *Notifier[T]) PublishStamped(seq uint64, v T) {
	n.pubMu.Lock()
	defer n.pubMu.Unlock()
	if seq <= n.published {
		return
	}
	n.published = seq
	n.Publish(v)
}

// Len returns the number of subscribers.
func (n *Notifier[T]) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.ids)
}
