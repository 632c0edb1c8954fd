// Package memory keeps published change sets in process. It is the default
// publisher when no Pub/Sub topic is configured.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// PublishedMessage captures one publish call in wire form.
type PublishedMessage struct {
	Topic string
	Data  json.RawMessage
}

// Publisher records payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish encodes payload as JSON, records it and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Data: data})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns a copy of the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Decode unmarshals every message on topic into T.
func Decode[T any](p *Publisher, topic string) ([]T, error) {
	var out []T
	for _, msg := range p.Messages() {
		if msg.Topic != topic {
			continue
		}
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s message: %w", topic, err)
		}
		out = append(out, v)
	}
	return out, nil
}
