package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/vegbox-admin/api/internal/platform/textutil"
	"github.com/vegbox-admin/api/internal/services"
)

// PubSubLedgerPublisher publishes payment ledger events to a Pub/Sub topic.
type PubSubLedgerPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.LedgerEventPublisher = (*PubSubLedgerPublisher)(nil)

// NewPubSubLedgerPublisher constructs a Pub/Sub backed ledger event publisher.
func NewPubSubLedgerPublisher(topic *pubsub.Topic) (*PubSubLedgerPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub ledger publisher: topic is required")
	}
	return &PubSubLedgerPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishLedgerEvent sends event and waits for the server acknowledgement.
func (p *PubSubLedgerPublisher) PublishLedgerEvent(ctx context.Context, event services.LedgerEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub ledger publisher: not initialised")
	}
	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: textutil.NormalizeStringMap(map[string]string{
			"type":       event.Type,
			"logId":      event.LogID,
			"customerId": event.CustomerID,
		}),
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish ledger event %s: %w", event.EventID, err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *PubSubLedgerPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}
