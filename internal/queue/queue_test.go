package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/pos-sync/internal/domain/item"
	"github.com/example/pos-sync/internal/localstore"
	"github.com/example/pos-sync/internal/notify"
)

func testActor() item.Actor {
	return item.Actor{UserID: "user-1", Role: item.RoleStaff, BranchID: "branch-1", BusinessID: "biz-1"}
}

func newTestQueue(offline bool) (*Queue, *notify.Recorder) {
	recorder := notify.NewRecorder()
	q := New(localstore.NewMemoryStore(), recorder, func() bool { return offline })
	return q, recorder
}

func addPayload(name string) AddProductPayload {
	return AddProductPayload{
		Actor: testActor(),
		Req: item.AddRequest{
			Name: name, Category: "misc", CostPrice: 100, Quantity: 1, BranchID: "branch-1",
		},
	}
}

// ============================================
// Enqueue Tests
// ============================================

func TestQueue_Enqueue_Persists(t *testing.T) {
	q, _ := newTestQueue(true)

	id, err := q.Enqueue(addPayload("Widget"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	op, ok := q.Get(id)
	require.True(t, ok)
	assert.Equal(t, TypeAddProduct, op.Type)
	assert.Equal(t, StatusPending, op.Status)
	assert.Equal(t, 0, op.RetryCount)
	assert.False(t, op.CreatedAt.IsZero())
}

func TestQueue_Enqueue_OfflineToast(t *testing.T) {
	q, recorder := newTestQueue(true)

	_, err := q.Enqueue(addPayload("Widget"))
	require.NoError(t, err)

	msgs := recorder.ByCategory(notify.Info)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "saved locally")
	assert.Contains(t, msgs[0], "back online")
}

func TestQueue_Enqueue_OnlineNoToast(t *testing.T) {
	q, recorder := newTestQueue(false)

	_, err := q.Enqueue(addPayload("Widget"))
	require.NoError(t, err)

	assert.Empty(t, recorder.Messages)
}

// ============================================
// Ordering Tests
// ============================================

func TestQueue_ListPending_FIFO(t *testing.T) {
	q, _ := newTestQueue(true)

	first, err := q.Enqueue(addPayload("First"))
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := q.Enqueue(SellProductPayload{
		Actor: testActor(),
		Req:   item.SellRequest{Source: item.Item{ID: "item-1"}, Quantity: 1, Price: 200},
	})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	third, err := q.Enqueue(addPayload("Third"))
	require.NoError(t, err)

	ops := q.ListPending()
	require.Len(t, ops, 3)
	assert.Equal(t, first, ops[0].ID)
	assert.Equal(t, second, ops[1].ID)
	assert.Equal(t, third, ops[2].ID)
}

func TestQueue_ListPending_FailedKeepsPosition(t *testing.T) {
	q, _ := newTestQueue(true)

	first, _ := q.Enqueue(addPayload("First"))
	time.Sleep(2 * time.Millisecond)
	second, _ := q.Enqueue(addPayload("Second"))

	// A failed first operation keeps its place at the head.
	require.NoError(t, q.MarkSyncing(first))
	require.NoError(t, q.MarkFailed(first))

	ops := q.ListPending()
	require.Len(t, ops, 2)
	assert.Equal(t, first, ops[0].ID)
	assert.Equal(t, StatusFailed, ops[0].Status)
	assert.Equal(t, 1, ops[0].RetryCount)
	assert.Equal(t, second, ops[1].ID)
}

func TestQueue_ListPending_ExcludesSyncing(t *testing.T) {
	q, _ := newTestQueue(true)

	id, _ := q.Enqueue(addPayload("Widget"))
	require.NoError(t, q.MarkSyncing(id))

	assert.Empty(t, q.ListPending())
	assert.Equal(t, 0, q.Count())
}

// ============================================
// Lifecycle Tests
// ============================================

func TestQueue_MarkFailed_IncrementsRetry(t *testing.T) {
	q, _ := newTestQueue(true)

	id, _ := q.Enqueue(addPayload("Widget"))
	for i := 1; i <= 3; i++ {
		require.NoError(t, q.MarkSyncing(id))
		require.NoError(t, q.MarkFailed(id))
		op, ok := q.Get(id)
		require.True(t, ok)
		assert.Equal(t, i, op.RetryCount)
	}
}

func TestQueue_Remove(t *testing.T) {
	q, _ := newTestQueue(true)

	id, _ := q.Enqueue(addPayload("Widget"))
	q.Remove(id)

	_, ok := q.Get(id)
	assert.False(t, ok)
	assert.Equal(t, 0, q.Count())
}

func TestQueue_Transition_Missing(t *testing.T) {
	q, _ := newTestQueue(true)

	assert.ErrorIs(t, q.MarkSyncing("no-such-op"), ErrOperationNotFound)
	assert.ErrorIs(t, q.MarkFailed("no-such-op"), ErrOperationNotFound)
}

func TestQueue_Clear(t *testing.T) {
	q, _ := newTestQueue(true)

	q.Enqueue(addPayload("One"))
	q.Enqueue(addPayload("Two"))
	q.Clear()

	assert.Equal(t, 0, q.Count())
}

// ============================================
// Payload Tests
// ============================================

func TestOperation_DecodePayload_RoundTrip(t *testing.T) {
	q, _ := newTestQueue(true)

	payload := SellProductPayload{
		Actor: testActor(),
		Req: item.SellRequest{
			Source:   item.Item{ID: "item-1", Quantity: 10, BranchID: "branch-1", BusinessID: "biz-1"},
			Quantity: 4,
			Price:    1500,
			NewID:    "sold-1",
		},
	}
	id, err := q.Enqueue(payload)
	require.NoError(t, err)

	op, ok := q.Get(id)
	require.True(t, ok)

	decoded, err := op.DecodePayload()
	require.NoError(t, err)
	sell, ok := decoded.(SellProductPayload)
	require.True(t, ok)
	assert.Equal(t, payload.Req.Source.ID, sell.Req.Source.ID)
	assert.Equal(t, 4, sell.Req.Quantity)
	assert.Equal(t, int64(1500), sell.Req.Price)
	assert.Equal(t, "sold-1", sell.Req.NewID)
	assert.Equal(t, testActor(), sell.Actor)
}

func TestOperation_DecodePayload_UnknownType(t *testing.T) {
	op := Operation{Type: Type("teleportProduct"), Payload: []byte(`{}`)}

	_, err := op.DecodePayload()
	assert.Error(t, err)
}

func TestType_Describe(t *testing.T) {
	for _, typ := range []Type{
		TypeAddProduct, TypeUpdateProduct, TypeDeleteProduct,
		TypeSellProduct, TypeRestoreProduct, TypeSellRestored, TypeUpdateBusiness,
	} {
		assert.NotEmpty(t, typ.Describe())
		assert.NotEqual(t, string(typ), typ.Describe())
	}
}
