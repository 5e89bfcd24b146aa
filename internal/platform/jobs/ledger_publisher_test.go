package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vegbox-admin/api/internal/services"
)

func TestPubSubLedgerPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "payment-ledger")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubLedgerPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubLedgerPublisher: %v", err)
	}
	defer publisher.Stop()

	event := services.LedgerEvent{
		EventID:    "evt_1",
		Type:       "payment.ledger.mark_paid",
		LogID:      "plog_1",
		Action:     "mark_paid",
		CustomerID: "cust_1",
		OrderIDs:   []string{"ord_1", "ord_2"},
		Actor:      "admin",
		OccurredAt: time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
	}
	if err := publisher.PublishLedgerEvent(ctx, event); err != nil {
		t.Fatalf("PublishLedgerEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.LedgerEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.LogID != "plog_1" || len(payload.OrderIDs) != 2 || !payload.OccurredAt.Equal(event.OccurredAt) {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["type"]; attr != "payment.ledger.mark_paid" {
		t.Fatalf("expected type attribute, got %q", attr)
	}
	if _, ok := messages[0].Attributes["originalLogId"]; ok {
		t.Fatalf("unexpected originalLogId attribute")
	}
}

func TestNewPubSubLedgerPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubLedgerPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
