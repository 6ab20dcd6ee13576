package membership

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots []domain.MembershipSnapshot
	err       error
}

func (p *recordingPublisher) PublishSnapshot(_ context.Context, snapshot domain.MembershipSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, snapshot)
	return p.err
}

func newService(pub domain.SnapshotPublisher) *Service {
	catalog := memory.NewCatalog(
		domain.Product{ID: "mug", Title: "Mug", Stock: 3},
		domain.Product{ID: "lamp", Title: "Lamp", Stock: 0},
	)
	return NewService(memory.NewMembershipRepository(), catalog, WithPublisher(pub))
}

func TestAddAndRemovePublishSnapshots(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := newService(pub)

	snap, err := svc.Add(ctx, domain.MembershipCart, "cust-1", "mug")
	require.NoError(t, err)
	assert.Equal(t, []string{"mug"}, snap.Items)
	assert.Equal(t, int64(1), snap.Version)

	snap, err = svc.Remove(ctx, domain.MembershipCart, "cust-1", "mug")
	require.NoError(t, err)
	assert.Empty(t, snap.Items)
	assert.Equal(t, int64(2), snap.Version)

	require.Len(t, pub.snapshots, 2)
	assert.Equal(t, "cust-1", pub.snapshots[1].CustomerID)
}

func TestAddOutOfStock(t *testing.T) {
	ctx := context.Background()
	svc := newService(nil)

	_, err := svc.Add(ctx, domain.MembershipCart, "cust-1", "lamp")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOutOfStock))
	assert.Equal(t, domain.ErrorKindConflict, domain.KindOf(err))

	// В избранное закончившийся товар добавить можно.
	snap, err := svc.Add(ctx, domain.MembershipWishlist, "cust-1", "lamp")
	require.NoError(t, err)
	assert.True(t, snap.Contains("lamp"))
}

func TestAddUnknownProduct(t *testing.T) {
	_, err := newService(nil).Add(context.Background(), domain.MembershipWishlist, "cust-1", "ghost")
	assert.Equal(t, domain.ErrorKindNotFound, domain.KindOf(err))
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	svc := newService(nil)

	_, err := svc.Add(ctx, "basket", "cust-1", "mug")
	assert.Equal(t, domain.ErrorKindValidation, domain.KindOf(err))

	_, err = svc.Remove(ctx, domain.MembershipCart, "", "mug")
	assert.Equal(t, domain.ErrorKindValidation, domain.KindOf(err))

	_, err = svc.Snapshot(ctx, domain.MembershipCart, " ")
	assert.Equal(t, domain.ErrorKindValidation, domain.KindOf(err))
}

func TestPublishFailureDoesNotFailChange(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("redis down")}
	svc := newService(pub)

	_, err := svc.Add(context.Background(), domain.MembershipWishlist, "cust-1", "mug")
	require.NoError(t, err)

	snap, err := svc.Snapshot(context.Background(), domain.MembershipWishlist, "cust-1")
	require.NoError(t, err)
	assert.True(t, snap.Contains("mug"))
}
