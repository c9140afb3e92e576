package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store with transactional writes and change
// subscriptions. It is the default backend and the test double for the
// DynamoDB-backed store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]json.RawMessage // collection -> id -> doc

	subMu  sync.Mutex
	subs   map[int]subscription
	nextID int
}

type subscription struct {
	collection string
	pred       Predicate
	fn         func(Change)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]json.RawMessage),
		subs: make(map[int]subscription),
	}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(collection, id)
}

func (s *MemoryStore) getLocked(collection, id string) (json.RawMessage, error) {
	doc, ok := s.data[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, preds ...Predicate) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLocked(collection, preds)
}

func (s *MemoryStore) queryLocked(collection string, preds []Predicate) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for _, doc := range s.data[collection] {
		ok, err := docMatches(doc, preds)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.setLocked(collection, id, raw)
	s.mu.Unlock()
	s.notify(Change{Type: ChangePut, Collection: collection, ID: id, Doc: raw})
	return nil
}

func (s *MemoryStore) setLocked(collection, id string, raw json.RawMessage) {
	if s.data[collection] == nil {
		s.data[collection] = make(map[string]json.RawMessage)
	}
	s.data[collection][id] = raw
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	raw, err := s.updateLocked(collection, id, fields)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(Change{Type: ChangePut, Collection: collection, ID: id, Doc: raw})
	return nil
}

func (s *MemoryStore) updateLocked(collection, id string, fields map[string]any) (json.RawMessage, error) {
	current, ok := s.data[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	merged, err := mergeFields(current, fields)
	if err != nil {
		return nil, err
	}
	s.data[collection][id] = merged
	return merged, nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	if s.data[collection] != nil {
		delete(s.data[collection], id)
	}
	s.mu.Unlock()
	s.notify(Change{Type: ChangeDelete, Collection: collection, ID: id})
	return nil
}

// RunTransaction runs fn against a buffered view of the store. The store's
// write lock is held for the whole transaction, so fn observes a consistent
// snapshot and commits atomically.
func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	tx := &memoryTx{store: s, writes: make(map[string]map[string]*json.RawMessage)}
	err := fn(tx)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	var changes []Change
	for collection, docs := range tx.writes {
		for id, doc := range docs {
			if doc == nil {
				if s.data[collection] != nil {
					delete(s.data[collection], id)
				}
				changes = append(changes, Change{Type: ChangeDelete, Collection: collection, ID: id})
			} else {
				s.setLocked(collection, id, *doc)
				changes = append(changes, Change{Type: ChangePut, Collection: collection, ID: id, Doc: *doc})
			}
		}
	}
	s.mu.Unlock()

	for _, ch := range changes {
		s.notify(ch)
	}
	return nil
}

// Subscribe registers a change listener scoped to one collection and
// predicate. Deletes are always delivered since the matching fields are
// gone by the time the change fires.
func (s *MemoryStore) Subscribe(collection string, pred Predicate, fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = subscription{collection: collection, pred: pred, fn: fn}
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *MemoryStore) notify(ch Change) {
	s.subMu.Lock()
	var targets []func(Change)
	for _, sub := range s.subs {
		if sub.collection != ch.Collection {
			continue
		}
		if ch.Type == ChangePut {
			ok, err := docMatches(ch.Doc, []Predicate{sub.pred})
			if err != nil || !ok {
				continue
			}
		}
		targets = append(targets, sub.fn)
	}
	s.subMu.Unlock()

	for _, fn := range targets {
		fn(ch)
	}
}

// memoryTx buffers writes as collection -> id -> doc, nil meaning delete.
type memoryTx struct {
	store  *MemoryStore
	writes map[string]map[string]*json.RawMessage
}

func (tx *memoryTx) Get(collection, id string) (json.RawMessage, error) {
	if docs, ok := tx.writes[collection]; ok {
		if doc, ok := docs[id]; ok {
			if doc == nil {
				return nil, ErrNotFound
			}
			return *doc, nil
		}
	}
	return tx.store.getLocked(collection, id)
}

func (tx *memoryTx) Query(collection string, preds ...Predicate) ([]json.RawMessage, error) {
	base, err := tx.store.queryLocked(collection, preds)
	if err != nil {
		return nil, err
	}
	overlay, ok := tx.writes[collection]
	if !ok {
		return base, nil
	}

	// Re-evaluate against the overlay: drop docs the tx deleted or
	// rewrote, then add overlay docs that match.
	var out []json.RawMessage
	for _, doc := range base {
		id, err := docID(doc)
		if err != nil {
			return nil, err
		}
		if _, rewritten := overlay[id]; rewritten {
			continue
		}
		out = append(out, doc)
	}
	for _, doc := range overlay {
		if doc == nil {
			continue
		}
		match, err := docMatches(*doc, preds)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (tx *memoryTx) Set(collection, id string, doc any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	raw := json.RawMessage(b)
	tx.stage(collection, id, &raw)
	return nil
}

func (tx *memoryTx) Update(collection, id string, fields map[string]any) error {
	current, err := tx.Get(collection, id)
	if err != nil {
		return err
	}
	merged, err := mergeFields(current, fields)
	if err != nil {
		return err
	}
	tx.stage(collection, id, &merged)
	return nil
}

func (tx *memoryTx) Delete(collection, id string) error {
	tx.stage(collection, id, nil)
	return nil
}

func (tx *memoryTx) stage(collection, id string, doc *json.RawMessage) {
	if tx.writes[collection] == nil {
		tx.writes[collection] = make(map[string]*json.RawMessage)
	}
	tx.writes[collection][id] = doc
}

func docMatches(doc json.RawMessage, preds []Predicate) (bool, error) {
	if len(preds) == 0 {
		return true, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(doc, &fields); err != nil {
		return false, err
	}
	for _, p := range preds {
		if !valueEqual(fields[p.Field], p.Value) {
			return false, nil
		}
	}
	return true, nil
}

// valueEqual compares a decoded JSON value against a Go value by
// round-tripping both through JSON.
func valueEqual(got, want any) bool {
	gotJSON, err := json.Marshal(got)
	if err != nil {
		return false
	}
	wantJSON, err := json.Marshal(want)
	if err != nil {
		return false
	}
	return string(gotJSON) == string(wantJSON)
}

func mergeFields(current json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	var doc map[string]any
	if err := json.Unmarshal(current, &doc); err != nil {
		return nil, err
	}
	for k, v := range fields {
		doc[k] = v
	}
	return json.Marshal(doc)
}

func docID(doc json.RawMessage) (string, error) {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(doc, &probe); err != nil {
		return "", fmt.Errorf("document has no id field: %w", err)
	}
	return probe.ID, nil
}
