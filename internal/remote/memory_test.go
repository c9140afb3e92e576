package remote

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Count  int    `json:"count"`
}

func set(t *testing.T, s *MemoryStore, collection string, doc testDoc) {
	t.Helper()
	require.NoError(t, s.Set(context.Background(), collection, doc.ID, doc))
}

func get(t *testing.T, s *MemoryStore, collection, id string) testDoc {
	t.Helper()
	raw, err := s.Get(context.Background(), collection, id)
	require.NoError(t, err)
	var doc testDoc
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

// ============================================
// CRUD Tests
// ============================================

func TestMemoryStore_SetGet(t *testing.T) {
	s := NewMemoryStore()

	set(t, s, "docs", testDoc{ID: "a", Status: "open", Count: 1})

	assert.Equal(t, testDoc{ID: "a", Status: "open", Count: 1}, get(t, s, "docs", "a"))
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "docs", "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(context.Background(), "no-such-collection", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SetOverwrites(t *testing.T) {
	s := NewMemoryStore()
	set(t, s, "docs", testDoc{ID: "a", Status: "open"})

	set(t, s, "docs", testDoc{ID: "a", Status: "closed"})

	assert.Equal(t, "closed", get(t, s, "docs", "a").Status)
}

func TestMemoryStore_Query(t *testing.T) {
	s := NewMemoryStore()
	set(t, s, "docs", testDoc{ID: "a", Status: "open", Count: 1})
	set(t, s, "docs", testDoc{ID: "b", Status: "open", Count: 2})
	set(t, s, "docs", testDoc{ID: "c", Status: "closed", Count: 3})

	all, err := s.Query(context.Background(), "docs")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	open, err := s.Query(context.Background(), "docs", Eq("status", "open"))
	require.NoError(t, err)
	assert.Len(t, open, 2)

	one, err := s.Query(context.Background(), "docs", Eq("status", "open"), Eq("count", 2))
	require.NoError(t, err)
	require.Len(t, one, 1)
	var doc testDoc
	require.NoError(t, json.Unmarshal(one[0], &doc))
	assert.Equal(t, "b", doc.ID)

	none, err := s.Query(context.Background(), "docs", Eq("status", "archived"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_UpdateMergesFields(t *testing.T) {
	s := NewMemoryStore()
	set(t, s, "docs", testDoc{ID: "a", Status: "open", Count: 1})

	err := s.Update(context.Background(), "docs", "a", map[string]any{"status": "closed"})
	require.NoError(t, err)

	got := get(t, s, "docs", "a")
	assert.Equal(t, "closed", got.Status)
	assert.Equal(t, 1, got.Count) // untouched field survives
}

func TestMemoryStore_UpdateMissing(t *testing.T) {
	s := NewMemoryStore()

	err := s.Update(context.Background(), "docs", "nope", map[string]any{"status": "closed"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	set(t, s, "docs", testDoc{ID: "a"})

	require.NoError(t, s.Delete(context.Background(), "docs", "a"))

	_, err := s.Get(context.Background(), "docs", "a")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing document is not an error.
	assert.NoError(t, s.Delete(context.Background(), "docs", "a"))
}

// ============================================
// Transaction Tests
// ============================================

func TestMemoryStore_RunTransaction_CommitsAllWrites(t *testing.T) {
	s := NewMemoryStore()
	set(t, s, "docs", testDoc{ID: "a", Count: 1})

	err := s.RunTransaction(context.Background(), func(tx Tx) error {
		if err := tx.Set("docs", "b", testDoc{ID: "b", Count: 2}); err != nil {
			return err
		}
		return tx.Delete("docs", "a")
	})
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "docs", "a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, get(t, s, "docs", "b").Count)
}

func TestMemoryStore_RunTransaction_ErrorDiscardsWrites(t *testing.T) {
	s := NewMemoryStore()
	set(t, s, "docs", testDoc{ID: "a", Count: 1})
	boom := errors.New("boom")

	err := s.RunTransaction(context.Background(), func(tx Tx) error {
		if err := tx.Set("docs", "a", testDoc{ID: "a", Count: 99}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 1, get(t, s, "docs", "a").Count)
}

func TestMemoryStore_RunTransaction_ReadsOwnWrites(t *testing.T) {
	s := NewMemoryStore()
	set(t, s, "docs", testDoc{ID: "a", Count: 1})

	err := s.RunTransaction(context.Background(), func(tx Tx) error {
		if err := tx.Set("docs", "a", testDoc{ID: "a", Count: 5}); err != nil {
			return err
		}
		raw, err := tx.Get("docs", "a")
		if err != nil {
			return err
		}
		var doc testDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		assert.Equal(t, 5, doc.Count)

		if err := tx.Delete("docs", "a"); err != nil {
			return err
		}
		_, err = tx.Get("docs", "a")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_RunTransaction_QuerySeesOverlay(t *testing.T) {
	s := NewMemoryStore()
	set(t, s, "docs", testDoc{ID: "a", Status: "open"})
	set(t, s, "docs", testDoc{ID: "b", Status: "open"})

	err := s.RunTransaction(context.Background(), func(tx Tx) error {
		if err := tx.Delete("docs", "a"); err != nil {
			return err
		}
		if err := tx.Set("docs", "c", testDoc{ID: "c", Status: "open"}); err != nil {
			return err
		}

		docs, err := tx.Query("docs", Eq("status", "open"))
		if err != nil {
			return err
		}
		ids := make(map[string]bool)
		for _, raw := range docs {
			var doc testDoc
			if err := json.Unmarshal(raw, &doc); err != nil {
				return err
			}
			ids[doc.ID] = true
		}
		assert.Equal(t, map[string]bool{"b": true, "c": true}, ids)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_RunTransaction_UpdateInsideTx(t *testing.T) {
	s := NewMemoryStore()
	set(t, s, "docs", testDoc{ID: "a", Status: "open", Count: 1})

	err := s.RunTransaction(context.Background(), func(tx Tx) error {
		return tx.Update("docs", "a", map[string]any{"count": 7})
	})
	require.NoError(t, err)

	got := get(t, s, "docs", "a")
	assert.Equal(t, 7, got.Count)
	assert.Equal(t, "open", got.Status)
}

func TestMemoryStore_RunTransaction_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.RunTransaction(ctx, func(tx Tx) error {
		called = true
		return nil
	})

	assert.Error(t, err)
	assert.False(t, called)
}

// ============================================
// Subscription Tests
// ============================================

func TestMemoryStore_Subscribe_DeliversMatchingPuts(t *testing.T) {
	s := NewMemoryStore()

	var changes []Change
	unsubscribe := s.Subscribe("docs", Eq("status", "open"), func(ch Change) {
		changes = append(changes, ch)
	})
	defer unsubscribe()

	set(t, s, "docs", testDoc{ID: "a", Status: "open"})
	set(t, s, "docs", testDoc{ID: "b", Status: "closed"}) // filtered out
	set(t, s, "other", testDoc{ID: "c", Status: "open"})  // wrong collection

	require.Len(t, changes, 1)
	assert.Equal(t, ChangePut, changes[0].Type)
	assert.Equal(t, "a", changes[0].ID)
}

func TestMemoryStore_Subscribe_DeletesAlwaysDelivered(t *testing.T) {
	s := NewMemoryStore()
	set(t, s, "docs", testDoc{ID: "a", Status: "closed"})

	var changes []Change
	unsubscribe := s.Subscribe("docs", Eq("status", "open"), func(ch Change) {
		changes = append(changes, ch)
	})
	defer unsubscribe()

	require.NoError(t, s.Delete(context.Background(), "docs", "a"))

	require.Len(t, changes, 1)
	assert.Equal(t, ChangeDelete, changes[0].Type)
}

func TestMemoryStore_Subscribe_UnsubscribeStopsDelivery(t *testing.T) {
	s := NewMemoryStore()

	count := 0
	unsubscribe := s.Subscribe("docs", Eq("status", "open"), func(Change) { count++ })

	set(t, s, "docs", testDoc{ID: "a", Status: "open"})
	unsubscribe()
	set(t, s, "docs", testDoc{ID: "b", Status: "open"})

	assert.Equal(t, 1, count)
}

func TestMemoryStore_Subscribe_TransactionChangesDelivered(t *testing.T) {
	s := NewMemoryStore()

	var changes []Change
	unsubscribe := s.Subscribe("docs", Eq("status", "open"), func(ch Change) {
		changes = append(changes, ch)
	})
	defer unsubscribe()

	err := s.RunTransaction(context.Background(), func(tx Tx) error {
		return tx.Set("docs", "a", testDoc{ID: "a", Status: "open"})
	})
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, "a", changes[0].ID)
}
