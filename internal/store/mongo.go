package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps each collection in a MongoDB collection of the same name.
// Document ids are uuid strings stored in _id.
type MongoStore struct {
	client       *mongo.Client
	db           *mongo.Database
	transactions bool
}

// NewMongoStore wraps a connected client. Transactions need a replica set,
// so they are only used when enabled.
func NewMongoStore(client *mongo.Client, database string, transactions bool) *MongoStore {
	return &MongoStore{
		client:       client,
		db:           client.Database(database),
		transactions: transactions,
	}
}

func (s *MongoStore) Find(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.db.Collection(collection).Find(ctx, toBSONFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}

	docs := make([]Document, 0, len(raw))
	for _, item := range raw {
		docs = append(docs, fromBSON(item))
	}
	return docs, nil
}

func (s *MongoStore) Create(ctx context.Context, collection string, data Document) (Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	doc := cloneDocument(data)
	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
	}
	delete(doc, "id")
	now := time.Now().UTC()
	doc["_id"] = id
	doc["createdAt"] = now
	doc["updatedAt"] = now

	if _, err := s.db.Collection(collection).InsertOne(ctx, bson.M(doc)); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", collection, err)
	}

	delete(doc, "_id")
	doc["id"] = id
	return doc, nil
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, data Document) (Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	set := bson.M{}
	for k, v := range data {
		if k == "id" || k == "_id" {
			continue
		}
		set[k] = v
	}
	set["updatedAt"] = time.Now().UTC()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated bson.M
	err := s.db.Collection(collection).
		FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).
		Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return fromBSON(updated), nil
}

// WithTransaction runs fn in a session transaction. MongoDB has no
// savepoints: a nested call runs inline, and a failed command inside it
// aborts the whole session transaction.
func (s *MongoStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions {
		return fn(ctx)
	}
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *MongoStore) SupportsTransactions() bool {
	return s.transactions
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func toBSONFilter(filter Filter) bson.M {
	out := bson.M{}
	for field, value := range filter {
		if field == "id" {
			field = "_id"
		}
		if prefix, ok := value.(Prefix); ok {
			out[field] = bson.M{"$regex": "^" + regexp.QuoteMeta(string(prefix))}
			continue
		}
		out[field] = value
	}
	return out
}

func fromBSON(raw bson.M) Document {
	doc := Document{}
	for k, v := range raw {
		if k == "_id" {
			doc["id"] = fmt.Sprint(v)
			continue
		}
		doc[k] = normalizeBSON(v)
	}
	return doc
}

func normalizeBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = normalizeBSON(item)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = normalizeBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = normalizeBSON(item)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case primitive.ObjectID:
		return t.Hex()
	default:
		return v
	}
}

var (
	_ DocumentStore = (*MongoStore)(nil)
	_ Transactor    = (*MongoStore)(nil)
)
