package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process memory. It backs tests and the
// STORE_DRIVER=memory mode.
type MemoryStore struct {
	mu          sync.RWMutex
	txMu        sync.Mutex
	collections map[string]map[string]Document
	// insertion order keeps Find results stable
	order map[string][]string

	// FailOn lets tests inject store rejections.
	FailOn func(op, collection string, data Document) error
	// NoTransactions makes the store behave like a backend without them.
	NoTransactions bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Document),
		order:       make(map[string][]string),
	}
}

func (s *MemoryStore) Find(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.fail("find", collection, Document(filter)); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Document
	for _, id := range s.order[collection] {
		doc := s.collections[collection][id]
		if matches(doc, filter) {
			out = append(out, cloneDocument(doc))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) Create(ctx context.Context, collection string, data Document) (Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.fail("create", collection, data); err != nil {
		return nil, err
	}

	doc := cloneDocument(data)
	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
		doc["id"] = id
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	doc["createdAt"] = now
	doc["updatedAt"] = now

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]Document)
	}
	if _, exists := s.collections[collection][id]; exists {
		return nil, fmt.Errorf("duplicate id %s in %s", id, collection)
	}
	s.collections[collection][id] = doc
	s.order[collection] = append(s.order[collection], id)
	return cloneDocument(doc), nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, data Document) (Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.fail("update", collection, data); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	for k, v := range data {
		if k == "id" {
			continue
		}
		doc[k] = cloneValue(v)
	}
	doc["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	return cloneDocument(doc), nil
}

type memoryTxKey struct{}

// WithTransaction snapshots the store and restores it when fn fails. A call
// nested in a running transaction acts as a savepoint: only its own writes
// are undone. Top-level transactions are serialised; plain writes made by
// other goroutines while a transaction is rolled back are lost.
func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memoryTxKey{}) == nil {
		s.txMu.Lock()
		defer s.txMu.Unlock()
		ctx = context.WithValue(ctx, memoryTxKey{}, true)
	}

	snapshot, order := s.snapshot()
	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.collections = snapshot
		s.order = order
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) SupportsTransactions() bool {
	return !s.NoTransactions
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Count returns the number of documents in a collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Collections lists non-empty collection names.
func (s *MemoryStore) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name, docs := range s.collections {
		if len(docs) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (s *MemoryStore) snapshot() (map[string]map[string]Document, map[string][]string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	collections := make(map[string]map[string]Document, len(s.collections))
	for name, docs := range s.collections {
		copied := make(map[string]Document, len(docs))
		for id, doc := range docs {
			copied[id] = cloneDocument(doc)
		}
		collections[name] = copied
	}
	order := make(map[string][]string, len(s.order))
	for name, ids := range s.order {
		order[name] = append([]string(nil), ids...)
	}
	return collections, order
}

func (s *MemoryStore) fail(op, collection string, data Document) error {
	if s.FailOn == nil {
		return nil
	}
	return s.FailOn(op, collection, data)
}

var (
	_ DocumentStore = (*MemoryStore)(nil)
	_ Transactor    = (*MemoryStore)(nil)
)
