package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-process bus used by `ape run` and by tests. It implements
// service.Publisher; consumers drain topics explicitly instead of blocking.
type Memory struct {
	queues map[string][][]byte
	mu     sync.Mutex
}

// NewMemory creates an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{queues: make(map[string][][]byte)}
}

// Publish appends one JSON message to a topic queue.
func (m *Memory) Publish(_ context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", topic, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[topic] = append(m.queues[topic], data)
	return nil
}

// Drain removes and returns every message currently queued on a topic.
func (m *Memory) Drain(topic string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.queues[topic]
	m.queues[topic] = nil
	return msgs
}

// Len returns the number of messages queued on a topic.
func (m *Memory) Len(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[topic])
}
