package notify

import (
	"context"
	"sync"

	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/domain"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/ports"
)

// Bus fans a notice out to every subscriber, synchronously and in
// subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]ports.Notifier
	order  []int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]ports.Notifier)}
}

// Func adapts a function to ports.Notifier.
type Func func(ctx context.Context, n domain.Notice)

func (f Func) Notify(ctx context.Context, n domain.Notice) { f(ctx, n) }

// Subscribe registers n and returns a function that removes it.
func (b *Bus) Subscribe(n ports.Notifier) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = n
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (b *Bus) Notify(ctx context.Context, n domain.Notice) {
	b.mu.RLock()
	subs := make([]ports.Notifier, 0, len(b.order))
	for _, id := range b.order {
		subs = append(subs, b.subs[id])
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.Notify(ctx, n)
	}
}

var _ ports.Notifier = (*Bus)(nil)
