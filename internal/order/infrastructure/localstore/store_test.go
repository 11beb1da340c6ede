package localstore

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapurkita/ordersync/internal/order/domain"
)

func newTestStore() (*Store, *MemoryKV) {
	kv := NewMemoryKV()
	return NewStore(slog.Default(), kv), kv
}

func TestSaveAndLoadOrders(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	orders := []domain.Order{{
		ID:            "ORD-1735689600000",
		OwnerID:       "u1",
		CreatedAt:     1735689600000,
		Status:        domain.StatusActive,
		PaymentStatus: domain.PaymentPending,
		Total:         42000,
		Items:         []domain.OrderItem{{Title: "Mie Ayam", Qty: 2, UnitPrice: 21000, Subtotal: 42000}},
	}}
	require.NoError(t, store.SaveOrders(ctx, "u1", orders))

	got, err := store.LoadOrders(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, orders, got)

	// Other partitions stay empty.
	other, err := store.LoadOrders(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestLoadOrdersEmptyPartition(t *testing.T) {
	store, _ := newTestStore()
	got, err := store.LoadOrders(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadOrdersCorruptBucket(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore()
	require.NoError(t, kv.Set(ctx, "orders:u1", "{not json"))

	got, err := store.LoadOrders(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadOrdersDropsEntriesWithoutID(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore()
	require.NoError(t, kv.Set(ctx, "orders:u1", `[{"id":"ORD-1","ownerId":"u1"},{"ownerId":"u1"}]`))

	got, err := store.LoadOrders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ORD-1", got[0].ID)
}

func TestLegacyBucketMigration(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore()
	require.NoError(t, kv.Set(ctx, "orders", `[{"id":"ORD-legacy","status":"delivered"}]`))

	got, err := store.LoadOrders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ORD-legacy", got[0].ID)
	assert.Equal(t, "u1", got[0].OwnerID)

	// Migration persisted the partition and removed the legacy bucket.
	_, err = kv.Get(ctx, "orders")
	assert.ErrorIs(t, err, ErrNotFound)

	again, err := store.LoadOrders(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestLegacyBucketMigrationSkipsForeignOrders(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore()
	require.NoError(t, kv.Set(ctx, "orders",
		`[{"id":"ORD-mine","ownerId":"u1"},{"id":"ORD-unowned"},{"id":"ORD-theirs","ownerId":"u2"}]`))

	got, err := store.LoadOrders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ORD-mine", got[0].ID)
	assert.Equal(t, "ORD-unowned", got[1].ID)
	assert.Equal(t, "u1", got[1].OwnerID)

	// The other user's order stays in the legacy bucket for their own
	// first read.
	theirs, err := store.LoadOrders(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, "ORD-theirs", theirs[0].ID)

	// Bucket is gone once every entry found its owner.
	_, err = kv.Get(ctx, "orders")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserIDs(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()
	require.NoError(t, store.SaveOrders(ctx, "u1", []domain.Order{{ID: "ORD-1"}}))
	require.NoError(t, store.SaveOrders(ctx, "u2", []domain.Order{{ID: "ORD-2"}}))

	ids, err := store.UserIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, ids)
}
