package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

func TestMembershipRepository_Versions(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMembershipRepository()

	empty, err := repo.Snapshot(ctx, domain.MembershipCart, "c1")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if empty.Version != 0 || len(empty.Items) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", empty)
	}

	snap, _ := repo.Add(ctx, domain.MembershipCart, "c1", "p2")
	snap, _ = repo.Add(ctx, domain.MembershipCart, "c1", "p1")
	if snap.Version != 2 || len(snap.Items) != 2 || snap.Items[0] != "p1" {
		t.Fatalf("unexpected snapshot after adds: %+v", snap)
	}

	again, _ := repo.Add(ctx, domain.MembershipCart, "c1", "p1")
	if again.Version != 2 {
		t.Fatalf("repeated add must not bump version, got %d", again.Version)
	}

	removed, _ := repo.Remove(ctx, domain.MembershipCart, "c1", "p2")
	if removed.Version != 3 || removed.Contains("p2") {
		t.Fatalf("unexpected snapshot after remove: %+v", removed)
	}

	other, _ := repo.Snapshot(ctx, domain.MembershipWishlist, "c1")
	if len(other.Items) != 0 {
		t.Fatalf("sets must be independent, got %+v", other)
	}
}

func TestCatalog_Product(t *testing.T) {
	ctx := context.Background()
	catalog := memory.NewCatalog(domain.Product{ID: "p1", Title: "Lamp", Stock: 2})

	p, err := catalog.Product(ctx, "p1")
	if err != nil || !p.InStock() {
		t.Fatalf("expected in-stock product, got %+v, %v", p, err)
	}

	catalog.Upsert(domain.Product{ID: "p1", Title: "Lamp", Stock: 0})
	p, _ = catalog.Product(ctx, "p1")
	if p.InStock() {
		t.Fatal("expected product to be out of stock")
	}

	if _, err := catalog.Product(ctx, "missing"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
}
