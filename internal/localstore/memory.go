package localstore

import (
	"sync"
)

// MemoryStore is an in-memory Store. Secondary indexes are maintained as
// value -> id sets per collection so indexed reads stay O(matches).
type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string]map[string]Record            // collection -> id -> record
	indexes map[string]map[string]map[string]bool   // collection/index -> value -> id set
	meta    map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:    make(map[string]map[string]Record),
		indexes: make(map[string]map[string]map[string]bool),
		meta:    make(map[string]string),
	}
}

func indexKey(collection, index string) string { return collection + "/" + index }

func (s *MemoryStore) Get(collection, id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[collection][id]
	return rec, ok
}

func (s *MemoryStore) Put(collection string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.data[collection][rec.ID]; ok {
		s.unindexLocked(collection, old)
		if rec.CreatedAt.After(old.CreatedAt) {
			// Preserve original insertion time across rewrites so
			// queue ordering survives status updates.
			rec.CreatedAt = old.CreatedAt
		}
	}
	if s.data[collection] == nil {
		s.data[collection] = make(map[string]Record)
	}
	s.data[collection][rec.ID] = rec
	s.indexLocked(collection, rec)
}

func (s *MemoryStore) Delete(collection, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.data[collection][id]; ok {
		s.unindexLocked(collection, rec)
		delete(s.data[collection], id)
	}
}

func (s *MemoryStore) List(collection string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.data[collection] {
		out = append(out, rec)
	}
	return out
}

func (s *MemoryStore) QueryByIndex(collection, index, value string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for id := range s.indexes[indexKey(collection, index)][value] {
		if rec, ok := s.data[collection][id]; ok {
			out = append(out, rec)
		}
	}
	return out
}

func (s *MemoryStore) Clear(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, collection)
	for key := range s.indexes {
		if len(key) > len(collection) && key[:len(collection)+1] == collection+"/" {
			delete(s.indexes, key)
		}
	}
}

func (s *MemoryStore) SetMeta(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[key] = value
}

func (s *MemoryStore) GetMeta(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.meta[key]
	return v, ok
}

func (s *MemoryStore) indexLocked(collection string, rec Record) {
	for index, value := range recordIndexValues(rec) {
		if value == "" {
			continue
		}
		key := indexKey(collection, index)
		if s.indexes[key] == nil {
			s.indexes[key] = make(map[string]map[string]bool)
		}
		if s.indexes[key][value] == nil {
			s.indexes[key][value] = make(map[string]bool)
		}
		s.indexes[key][value][rec.ID] = true
	}
}

func (s *MemoryStore) unindexLocked(collection string, rec Record) {
	for index, value := range recordIndexValues(rec) {
		key := indexKey(collection, index)
		if ids := s.indexes[key][value]; ids != nil {
			delete(ids, rec.ID)
		}
	}
}

func recordIndexValues(rec Record) map[string]string {
	return map[string]string{
		IndexStatus:   rec.Status,
		IndexBranch:   rec.BranchID,
		IndexBusiness: rec.BusinessID,
	}
}
