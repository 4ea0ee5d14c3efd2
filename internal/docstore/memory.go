package docstore

import (
	"context"
	"sync"
)

// MemoryStore keeps collections in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Document)}
}

func (s *MemoryStore) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	stored, id := prepareInsert(doc)

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]Document)
		s.collections[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return "", ErrDuplicateID
	}
	coll[id] = stored
	return id, nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return normalizeDocument(doc), nil
}

func (s *MemoryStore) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	s.mu.RLock()
	var out []Document
	for _, doc := range s.collections[collection] {
		if Matches(doc, q) {
			out = append(out, normalizeDocument(doc))
		}
	}
	s.mu.RUnlock()

	return Finish(out, q), nil
}

func (s *MemoryStore) Count(ctx context.Context, collection string, q Query) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, doc := range s.collections[collection] {
		if Matches(doc, q) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields Document) error {
	patch := prepareUpdate(fields)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range patch {
		doc[k] = v
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return false, nil
	}
	delete(s.collections[collection], id)
	return true, nil
}
