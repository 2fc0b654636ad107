package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps documents in process memory. Used by STORE_DRIVER=memory
// and by tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]fields
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]fields)}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string, dst any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	f, ok := s.docs[collection][id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return Document{Collection: collection, ID: id, Data: raw}.Decode(dst)
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, data any, opts SetOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	update, err := toFields(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.docs[collection]
	if !ok {
		coll = make(map[string]fields)
		s.docs[collection] = coll
	}
	if existing, ok := coll[id]; ok && opts.Merge {
		coll[id] = existing.merge(update)
		return nil
	}
	coll[id] = update
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.docs[collection], id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.docs[collection]))
	for id := range s.docs[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Document
	for _, id := range ids {
		f := s.docs[collection][id]
		ok, err := f.matches(filters)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		raw, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("encode %s/%s: %w", collection, id, err)
		}
		out = append(out, Document{Collection: collection, ID: id, Data: raw})
	}
	return out, nil
}

// Len returns the number of documents in collection.
func (s *MemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[collection])
}
