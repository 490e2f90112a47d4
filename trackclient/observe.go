// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package trackclient

import (
	"sort"
	"sync"
)

// broadcaster delivers values to a set of subscribers. Subscribe returns a
// cancel function; after it returns no further deliveries happen for that
// subscriber. Publish calls subscribers synchronously in registration order.
type broadcaster[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(T)
}

func newBroadcaster[T any]() *broadcaster[T] {
	return &broadcaster[T]{subs: make(map[int]func(T))}
}

func (b *broadcaster[T]) Subscribe(fn func(T)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	fns := make([]func(T), 0, len(b.subs))
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	// Map iteration order is random; deliver in registration order.
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
