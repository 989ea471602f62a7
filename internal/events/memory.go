package events

import (
	"context"
	"sync"

	"github.com/devforge-dev/devforge/pkg/models"
)

// MemoryBus is an in-process Bus for tests. It mirrors the Redis semantics:
// events published with no active subscriber are dropped.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string][]chan models.GenerationEvent
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]chan models.GenerationEvent)}
}

func (b *MemoryBus) Publish(_ context.Context, event models.GenerationEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[event.JobID] {
		select {
		case ch <- event:
		default:
			// Slow subscriber. Drop, like Redis pub/sub under pressure.
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, jobID string) (<-chan models.GenerationEvent, func(), error) {
	ch := make(chan models.GenerationEvent, 64)

	b.mu.Lock()
	b.subs[jobID] = append(b.subs[jobID], ch)
	b.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[jobID]
			for i, c := range subs {
				if c == ch {
					b.subs[jobID] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
	return ch, stop, nil
}

var _ Bus = (*MemoryBus)(nil)
