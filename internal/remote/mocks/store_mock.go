package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/example/pos-sync/internal/remote"
)

// Call records one delegated store operation
type Call struct {
	Method     string
	Collection string
	ID         string
}

// MockStore wraps a real Store, records every call and optionally injects
// failures. Tests use it to assert replay order and to simulate remote
// errors for specific documents.
type MockStore struct {
	Inner remote.Store

	mu    sync.Mutex
	Calls []Call

	// FailOn, when set, is consulted before every delegated call. A
	// non-nil return aborts the call with that error.
	FailOn func(method, collection, id string) error
}

// NewMockStore creates a MockStore over an inner store
func NewMockStore(inner remote.Store) *MockStore {
	return &MockStore{
		Inner: inner,
		Calls: make([]Call, 0),
	}
}

func (m *MockStore) record(method, collection, id string) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, Call{Method: method, Collection: collection, ID: id})
	failOn := m.FailOn
	m.mu.Unlock()

	if failOn != nil {
		return failOn(method, collection, id)
	}
	return nil
}

// CallsFor returns the recorded calls for one method, in order.
func (m *MockStore) CallsFor(method string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockStore) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	if err := m.record("Get", collection, id); err != nil {
		return nil, err
	}
	return m.Inner.Get(ctx, collection, id)
}

func (m *MockStore) Query(ctx context.Context, collection string, preds ...remote.Predicate) ([]json.RawMessage, error) {
	if err := m.record("Query", collection, ""); err != nil {
		return nil, err
	}
	return m.Inner.Query(ctx, collection, preds...)
}

func (m *MockStore) Set(ctx context.Context, collection, id string, doc any) error {
	if err := m.record("Set", collection, id); err != nil {
		return err
	}
	return m.Inner.Set(ctx, collection, id, doc)
}

func (m *MockStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := m.record("Update", collection, id); err != nil {
		return err
	}
	return m.Inner.Update(ctx, collection, id, fields)
}

func (m *MockStore) Delete(ctx context.Context, collection, id string) error {
	if err := m.record("Delete", collection, id); err != nil {
		return err
	}
	return m.Inner.Delete(ctx, collection, id)
}

func (m *MockStore) RunTransaction(ctx context.Context, fn func(tx remote.Tx) error) error {
	if err := m.record("RunTransaction", "", ""); err != nil {
		return err
	}
	return m.Inner.RunTransaction(ctx, func(tx remote.Tx) error {
		return fn(&mockTx{parent: m, inner: tx})
	})
}

// mockTx forwards transactional calls to the wrapped Tx while recording
// them on the parent mock.
type mockTx struct {
	parent *MockStore
	inner  remote.Tx
}

func (t *mockTx) Get(collection, id string) (json.RawMessage, error) {
	if err := t.parent.record("Tx.Get", collection, id); err != nil {
		return nil, err
	}
	return t.inner.Get(collection, id)
}

func (t *mockTx) Query(collection string, preds ...remote.Predicate) ([]json.RawMessage, error) {
	if err := t.parent.record("Tx.Query", collection, ""); err != nil {
		return nil, err
	}
	return t.inner.Query(collection, preds...)
}

func (t *mockTx) Set(collection, id string, doc any) error {
	if err := t.parent.record("Tx.Set", collection, id); err != nil {
		return err
	}
	return t.inner.Set(collection, id, doc)
}

func (t *mockTx) Update(collection, id string, fields map[string]any) error {
	if err := t.parent.record("Tx.Update", collection, id); err != nil {
		return err
	}
	return t.inner.Update(collection, id, fields)
}

func (t *mockTx) Delete(collection, id string) error {
	if err := t.parent.record("Tx.Delete", collection, id); err != nil {
		return err
	}
	return t.inner.Delete(collection, id)
}
