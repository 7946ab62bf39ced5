package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrInvalidCollection = errors.New("collection name is required")
)

// Document is a loosely typed record. Every stored document carries an "id".
type Document map[string]interface{}

func (d Document) ID() string {
	if id, ok := d["id"].(string); ok {
		return id
	}
	return ""
}

// String returns a string field or "".
func (d Document) String(field string) string {
	if v, ok := d[field].(string); ok {
		return v
	}
	return ""
}

// Strings returns a list field as strings, skipping non-string items.
func (d Document) Strings(field string) []string {
	switch v := d[field].(type) {
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// Filter matches documents field by field. Values are compared for equality
// unless they are a Prefix.
type Filter map[string]interface{}

// Prefix matches string fields starting with the given value.
type Prefix string

// DocumentStore is the find/create/update surface the catalog engine needs.
type DocumentStore interface {
	// Find returns up to limit documents matching filter; limit <= 0 means no limit.
	Find(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error)
	Create(ctx context.Context, collection string, data Document) (Document, error)
	// Update merges data into the document; fields absent from data are kept.
	Update(ctx context.Context, collection, id string, data Document) (Document, error)
}

// Transactor is implemented by stores that can run several writes atomically.
// Operations issued with the context passed to fn join the transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	SupportsTransactions() bool
}

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FindOne returns the first match or ErrNotFound.
func FindOne(ctx context.Context, s DocumentStore, collection string, filter Filter) (Document, error) {
	docs, err := s.Find(ctx, collection, filter, 1)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

// FindByID looks a document up by its id.
func FindByID(ctx context.Context, s DocumentStore, collection, id string) (Document, error) {
	return FindOne(ctx, s, collection, Filter{"id": id})
}

// RunInTransaction uses the store's transaction support when available and
// reports whether the writes were transactional.
func RunInTransaction(ctx context.Context, s DocumentStore, fn func(ctx context.Context) error) (bool, error) {
	tx, ok := s.(Transactor)
	if !ok || !tx.SupportsTransactions() {
		return false, fn(ctx)
	}
	return true, tx.WithTransaction(ctx, fn)
}

func validateCollection(collection string) error {
	if strings.TrimSpace(collection) == "" {
		return ErrInvalidCollection
	}
	return nil
}

// matches applies filter to a plain document; used by the memory store.
func matches(doc Document, filter Filter) bool {
	for field, want := range filter {
		got, ok := doc[field]
		if prefix, isPrefix := want.(Prefix); isPrefix {
			s, isString := got.(string)
			if !ok || !isString || !strings.HasPrefix(s, string(prefix)) {
				return false
			}
			continue
		}
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func cloneDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return map[string]interface{}(cloneDocument(Document(t)))
	case Document:
		return cloneDocument(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
