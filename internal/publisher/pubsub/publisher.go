// Package pubsub publishes change sets to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

// Topic is the slice of *pubsub.Topic the publisher needs, flattened so a
// publish returns the server message ID directly.
type Topic interface {
	Publish(ctx context.Context, msg *pubsub.Message) (string, error)
}

type topicAdapter struct {
	topic *pubsub.Topic
}

func (a topicAdapter) Publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	id, err := a.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish result: %w", err)
	}
	return id, nil
}

// Publisher wraps one Pub/Sub topic. The topic argument of Publish is
// recorded as an attribute; the destination is fixed at construction.
type Publisher struct {
	topic Topic
}

// New creates a Publisher for an existing topic handle.
func New(topic *pubsub.Topic) *Publisher {
	if topic == nil {
		return &Publisher{}
	}
	return &Publisher{topic: topicAdapter{topic: topic}}
}

// NewWithTopic creates a Publisher over any Topic implementation.
func NewWithTopic(topic Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Publish marshals the payload to JSON and publishes it.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{Data: data, Attributes: attributes(topic, payload)}
	id, err := p.topic.Publish(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// attributes lets subscribers filter without decoding the body.
func attributes(topic string, payload any) map[string]string {
	attrs := map[string]string{"topic": topic}
	switch cs := payload.(type) {
	case camp.ChangeSet:
		attrs["entityId"] = cs.EntityID
		attrs["hasChanges"] = strconv.FormatBool(cs.HasChanges)
	case *camp.ChangeSet:
		attrs["entityId"] = cs.EntityID
		attrs["hasChanges"] = strconv.FormatBool(cs.HasChanges)
	}
	return attrs
}
