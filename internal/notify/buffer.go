package notify

import (
	"context"
	"sync"

	"github.com/fjod/cartsync/internal/domain"
	"go.uber.org/zap"
)

const DefaultBufferSize = 64

// Buffer keeps the most recent notifications of one session until they are
// drained. When full the oldest entry is dropped.
type Buffer struct {
	mu      sync.Mutex
	items   []domain.Notification
	limit   int
	dropped int
	log     *zap.Logger
}

func NewBuffer(limit int, log *zap.Logger) *Buffer {
	if limit <= 0 {
		limit = DefaultBufferSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Buffer{limit: limit, log: log}
}

func (b *Buffer) Notify(_ context.Context, n domain.Notification) {
	fields := []zap.Field{
		zap.String("identity", n.Identity),
		zap.String("message", n.Message),
	}
	if n.Kind == domain.NotificationError {
		b.log.Warn("cart notification", fields...)
	} else {
		b.log.Debug("cart notification", fields...)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, n)
	if over := len(b.items) - b.limit; over > 0 {
		b.items = append([]domain.Notification(nil), b.items[over:]...)
		b.dropped += over
	}
}

// Drain returns pending notifications oldest first and empties the buffer.
func (b *Buffer) Drain() []domain.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	if out == nil {
		out = []domain.Notification{}
	}
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Dropped is the number of notifications discarded because the buffer was full.
func (b *Buffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
