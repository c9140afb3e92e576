package localstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntity struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status,omitempty"`
	BranchID   string `json:"branch_id,omitempty"`
	BusinessID string `json:"business_id,omitempty"`
}

func record(t *testing.T, e testEntity) Record {
	t.Helper()
	rec, err := NewRecord(e.ID, e)
	require.NoError(t, err)
	return rec
}

// ============================================
// Record Tests
// ============================================

func TestNewRecord_DenormalizesIndexedFields(t *testing.T) {
	rec := record(t, testEntity{ID: "a", Status: "store", BranchID: "branch-1", BusinessID: "biz-1"})

	assert.Equal(t, "a", rec.ID)
	assert.Equal(t, "store", rec.Status)
	assert.Equal(t, "branch-1", rec.BranchID)
	assert.Equal(t, "biz-1", rec.BusinessID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Contains(t, string(rec.Data), `"id":"a"`)
}

// ============================================
// CRUD Tests
// ============================================

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()

	s.Put("docs", record(t, testEntity{ID: "a", Name: "first"}))

	rec, ok := s.Get("docs", "a")
	require.True(t, ok)
	assert.Contains(t, string(rec.Data), "first")

	_, ok = s.Get("docs", "missing")
	assert.False(t, ok)
}

func TestMemoryStore_PutPreservesCreatedAt(t *testing.T) {
	s := NewMemoryStore()
	first := record(t, testEntity{ID: "a", Status: "pending"})
	first.CreatedAt = time.Now().Add(-time.Hour)
	s.Put("docs", first)

	// A later rewrite keeps the original insertion time so age-based
	// ordering survives status changes.
	s.Put("docs", record(t, testEntity{ID: "a", Status: "syncing"}))

	rec, ok := s.Get("docs", "a")
	require.True(t, ok)
	assert.Equal(t, first.CreatedAt, rec.CreatedAt)
	assert.Equal(t, "syncing", rec.Status)
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	s.Put("docs", record(t, testEntity{ID: "a", Status: "store"}))

	s.Delete("docs", "a")

	_, ok := s.Get("docs", "a")
	assert.False(t, ok)
	assert.Empty(t, s.QueryByIndex("docs", IndexStatus, "store"))

	// Deleting a missing record is a no-op.
	s.Delete("docs", "a")
}

func TestMemoryStore_List(t *testing.T) {
	s := NewMemoryStore()
	s.Put("docs", record(t, testEntity{ID: "a"}))
	s.Put("docs", record(t, testEntity{ID: "b"}))
	s.Put("other", record(t, testEntity{ID: "c"}))

	assert.Len(t, s.List("docs"), 2)
	assert.Len(t, s.List("other"), 1)
	assert.Empty(t, s.List("empty"))
}

// ============================================
// Index Tests
// ============================================

func TestMemoryStore_QueryByIndex(t *testing.T) {
	s := NewMemoryStore()
	s.Put("docs", record(t, testEntity{ID: "a", Status: "store", BranchID: "branch-1"}))
	s.Put("docs", record(t, testEntity{ID: "b", Status: "store", BranchID: "branch-2"}))
	s.Put("docs", record(t, testEntity{ID: "c", Status: "sold", BranchID: "branch-1"}))

	assert.Len(t, s.QueryByIndex("docs", IndexStatus, "store"), 2)
	assert.Len(t, s.QueryByIndex("docs", IndexStatus, "sold"), 1)
	assert.Len(t, s.QueryByIndex("docs", IndexBranch, "branch-1"), 2)
	assert.Empty(t, s.QueryByIndex("docs", IndexStatus, "deleted"))
}

func TestMemoryStore_QueryByIndex_FollowsRewrites(t *testing.T) {
	s := NewMemoryStore()
	s.Put("docs", record(t, testEntity{ID: "a", Status: "store"}))

	s.Put("docs", record(t, testEntity{ID: "a", Status: "sold"}))

	assert.Empty(t, s.QueryByIndex("docs", IndexStatus, "store"))
	require.Len(t, s.QueryByIndex("docs", IndexStatus, "sold"), 1)
}

func TestMemoryStore_QueryByIndex_EmptyValuesNotIndexed(t *testing.T) {
	s := NewMemoryStore()
	s.Put("docs", record(t, testEntity{ID: "a"}))

	assert.Empty(t, s.QueryByIndex("docs", IndexStatus, ""))
}

// ============================================
// Clear and Meta Tests
// ============================================

func TestMemoryStore_Clear(t *testing.T) {
	s := NewMemoryStore()
	s.Put("docs", record(t, testEntity{ID: "a", Status: "store"}))
	s.Put("other", record(t, testEntity{ID: "b", Status: "store"}))

	s.Clear("docs")

	assert.Empty(t, s.List("docs"))
	assert.Empty(t, s.QueryByIndex("docs", IndexStatus, "store"))

	// Other collections and their indexes are untouched.
	assert.Len(t, s.List("other"), 1)
	assert.Len(t, s.QueryByIndex("other", IndexStatus, "store"), 1)
}

func TestMemoryStore_Meta(t *testing.T) {
	s := NewMemoryStore()

	_, ok := s.GetMeta("last_sync_at")
	assert.False(t, ok)

	s.SetMeta("last_sync_at", "2026-01-02T15:04:05Z")

	v, ok := s.GetMeta("last_sync_at")
	require.True(t, ok)
	assert.Equal(t, "2026-01-02T15:04:05Z", v)

	s.SetMeta("last_sync_at", "2026-01-03T00:00:00Z")
	v, _ = s.GetMeta("last_sync_at")
	assert.Equal(t, "2026-01-03T00:00:00Z", v)
}
