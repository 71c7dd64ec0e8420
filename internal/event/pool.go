// Package event provides a sync.Pool-backed allocator for
// domain.DataMessage, keeping the ingest hot path allocation-light under
// sustained load.
package event

import (
	"sync"

	"tradingengine/internal/domain"
)

var pool = sync.Pool{
	New: func() any { return &domain.DataMessage{} },
}

// Acquire returns a zeroed DataMessage, either freshly allocated or
// recycled from the pool.
func Acquire() *domain.DataMessage {
	m := pool.Get().(*domain.DataMessage)
	m.Reset()
	return m
}

// Release returns a DataMessage to the pool. The caller must not use m
// after calling Release.
func Release(m *domain.DataMessage) {
	if m == nil {
		return
	}
	pool.Put(m)
}

// Warmup pre-fills the pool with n messages so the first burst of
// traffic after startup doesn't pay allocation cost on the hot path.
func Warmup(n int) {
	msgs := make([]*domain.DataMessage, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, Acquire())
	}
	for _, m := range msgs {
		Release(m)
	}
}
