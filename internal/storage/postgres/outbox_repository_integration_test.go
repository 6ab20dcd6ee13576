package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func TestOutboxRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)
	ctx := context.Background()

	stored1, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-1",
		EventType:     domain.EventOrderShipped,
		Payload:       []byte(`{"id":"order-1"}`),
	})
	if err != nil {
		t.Fatalf("enqueue msg without id: %v", err)
	}
	if stored1.ID == "" {
		t.Fatal("expected generated id for outbox message")
	}

	stored2, err := repo.Enqueue(ctx, domain.OutboxMessage{
		ID:            "outbox-fixed-id",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-2",
		EventType:     domain.EventOrderDelivered,
	})
	if err != nil {
		t.Fatalf("enqueue msg with id: %v", err)
	}
	if stored2.ID != "outbox-fixed-id" {
		t.Fatalf("expected fixed id, got %q", stored2.ID)
	}

	pending, err := repo.PullPending(ctx, 0)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 2 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := repo.MarkSent(ctx, stored1.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := repo.MarkFailed(ctx, stored2.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkSent(ctx, "missing"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish, got %v", err)
	}

	pending, err = repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull pending after mark: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending messages, got %d", len(pending))
	}
}

func TestOutboxRepository_PostgresDeleteSent(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)
	pruner, ok := repo.(domain.OutboxPruner)
	if !ok {
		t.Fatal("postgres outbox repository must implement OutboxPruner")
	}
	ctx := context.Background()

	sent, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateOrder, AggregateID: "order-del", EventType: domain.EventOrderShipped})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := repo.MarkSent(ctx, sent.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	pending, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateOrder, AggregateID: "order-keep", EventType: domain.EventOrderShipped})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deleted, err := pruner.DeleteSent(ctx, time.Now().UTC().Add(time.Minute), 100)
	if err != nil {
		t.Fatalf("delete sent: %v", err)
	}
	if deleted < 1 {
		t.Fatalf("expected sent message to be deleted, got %d", deleted)
	}

	rest, err := repo.PullPending(ctx, 100)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	found := false
	for _, msg := range rest {
		if msg.ID == pending.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("pending message must survive cleanup")
	}
}
