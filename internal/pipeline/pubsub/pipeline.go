// Package pubsub provides an output pipeline that publishes flushed
// output to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Config identifies the destination topic.
type Config struct {
	ProjectID string
	TopicID   string
}

// Pipeline publishes one message per entity or error. Messages carry a
// "kind" attribute so a single topic can serve both sinks.
type Pipeline[E any] struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// New connects to Pub/Sub and binds the topic.
func New[E any](ctx context.Context, cfg Config) (*Pipeline[E], error) {
	if cfg.ProjectID == "" || cfg.TopicID == "" {
		return nil, fmt.Errorf("pubsub project_id and topic_id are required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	return NewWithClient[E](client, cfg.TopicID)
}

// NewWithClient constructs a pipeline from an existing client (primarily
// for testing).
func NewWithClient[E any](client *pubsub.Client, topicID string) (*Pipeline[E], error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topicID == "" {
		return nil, fmt.Errorf("topic id is required")
	}
	return &Pipeline[E]{
		client: client,
		topic:  client.Topic(topicID),
	}, nil
}

// Close flushes pending publishes and releases the client.
func (p *Pipeline[E]) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

// FlushEntities publishes each entity as a JSON message.
func (p *Pipeline[E]) FlushEntities(ctx context.Context, es []E) error {
	for _, e := range es {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal entity: %w", err)
		}
		if err := p.publish(ctx, data, "entity"); err != nil {
			return err
		}
	}
	return nil
}

// FlushErrors publishes each extraction error message.
func (p *Pipeline[E]) FlushErrors(ctx context.Context, msgs []string) error {
	for _, msg := range msgs {
		if err := p.publish(ctx, []byte(msg), "error"); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline[E]) publish(ctx context.Context, data []byte, kind string) error {
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"kind": kind},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}
