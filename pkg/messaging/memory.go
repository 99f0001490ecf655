package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

var _ Broker = (*MemoryBroker)(nil)

// MemoryBroker is an in-process Broker used by tests and the memory store mode.
type MemoryBroker struct {
	mu        sync.RWMutex
	published map[string][][]byte
	closed    bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		published: make(map[string][][]byte),
	}
}

func (b *MemoryBroker) Publish(_ context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("broker closed")
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

// Published returns the raw payloads sent to channel so far.
func (b *MemoryBroker) Published(channel string) [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([][]byte, len(b.published[channel]))
	copy(out, b.published[channel])
	return out
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
