package events

import (
	"context"
	"testing"
)

func TestNilPublisherPublishIsNoOp(t *testing.T) {
	var p *Publisher
	if err := p.Publish(context.Background(), DialogueStarted, "sess", 1, DialogueStartedPayload{DialogueID: 1}); err != nil {
		t.Fatalf("expected nil Publisher Publish to be a no-op, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("expected nil Publisher Close to be a no-op, got %v", err)
	}
}

func TestNewPublisherRejectsNoBrokers(t *testing.T) {
	if _, err := NewPublisher(context.Background(), nil, "events"); err == nil {
		t.Fatalf("expected error with no brokers configured")
	}
}
