package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"google.golang.org/api/option"
)

// PubSubNotifier publishes notifications to a Google Cloud Pub/Sub topic.
type PubSubNotifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	owned  bool
}

// NewPubSubNotifier connects to projectID and publishes on topicID, creating
// the topic when it does not exist.
func NewPubSubNotifier(ctx context.Context, projectID, topicID string, opts ...option.ClientOption) (*PubSubNotifier, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	n, err := NewPubSubNotifierFromClient(ctx, client, topicID)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	n.owned = true
	return n, nil
}

func NewPubSubNotifierFromClient(ctx context.Context, client *pubsub.Client, topicID string) (*PubSubNotifier, error) {
	topic := client.Topic(topicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %q: %w", topicID, err)
	}
	if !ok {
		if topic, err = client.CreateTopic(ctx, topicID); err != nil {
			return nil, fmt.Errorf("create topic %q: %w", topicID, err)
		}
	}
	return &PubSubNotifier{client: client, topic: topic}, nil
}

func (p *PubSubNotifier) Name() string { return "pubsub" }

func (p *PubSubNotifier) Notify(ctx context.Context, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	res := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":           n.Type,
			"recipient_kind": string(n.RecipientKind),
			"recipient_id":   n.RecipientID,
		},
	})
	_, err = res.Get(ctx)
	return err
}

// Close flushes pending publishes and releases the client when this notifier created it.
func (p *PubSubNotifier) Close() error {
	p.topic.Stop()
	if p.owned {
		return p.client.Close()
	}
	return nil
}
