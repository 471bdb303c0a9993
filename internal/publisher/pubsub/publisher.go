// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Config identifies the topic to publish to.
type Config struct {
	ProjectID string
	TopicName string
}

// Publisher wraps a Pub/Sub client. The configured topic is verified at
// startup; other topics are opened on first use.
type Publisher struct {
	client       *pubsub.Client
	defaultTopic string
	logger       *zap.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// New connects to Pub/Sub and checks the topic exists. Without opts the
// client uses Application Default Credentials.
func New(ctx context.Context, cfg Config, logger *zap.Logger, opts ...option.ClientOption) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProjectID == "" || cfg.TopicName == "" {
		return nil, fmt.Errorf("pubsub project_id and topic_name are required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(cfg.TopicName)
	exists, err := topic.Exists(ctx)
	if err != nil || !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("Failed to close pubsub client after topic check failure", zap.Error(closeErr))
		}
		if err != nil {
			return nil, fmt.Errorf("check pubsub topic %q: %w", cfg.TopicName, err)
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.TopicName, cfg.ProjectID)
	}
	return &Publisher{
		client:       client,
		defaultTopic: cfg.TopicName,
		logger:       logger,
		topics:       map[string]*pubsub.Topic{cfg.TopicName: topic},
	}, nil
}

// Publish marshals the payload to JSON, publishes it to topic (the
// configured topic when empty) and waits for the server ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	t, err := p.topic(topic)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	result := t.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"content_type": "application/json"},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message to %q: %w", t.ID(), err)
	}
	return id, nil
}

func (p *Publisher) topic(name string) (*pubsub.Topic, error) {
	if p.client == nil {
		return nil, fmt.Errorf("pubsub publisher is not configured")
	}
	if name == "" {
		name = p.defaultTopic
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[name]; ok {
		return t, nil
	}
	t := p.client.Topic(name)
	p.topics[name] = t
	return t, nil
}

// Close flushes pending messages on every opened topic and closes the client.
func (p *Publisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.topics = nil
	p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
