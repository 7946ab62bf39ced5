package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentRecord is one document of the postgres backend; all collections
// share the table and are told apart by Collection.
type DocumentRecord struct {
	ID         string         `gorm:"type:varchar(64);primaryKey"`
	Collection string         `gorm:"type:varchar(100);not null;index"`
	Data       datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time      `gorm:"index"`
	UpdatedAt  time.Time
}

func (DocumentRecord) TableName() string {
	return "catalog_documents"
}

type txKey struct{}

// PostgresStore stores documents as JSONB rows through gorm.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return s.db.WithContext(ctx)
}

func (s *PostgresStore) Find(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	query := s.conn(ctx).Where("collection = ?", collection)
	for field, value := range filter {
		if field == "id" {
			query = query.Where("id = ?", fmt.Sprint(value))
			continue
		}
		if prefix, ok := value.(Prefix); ok {
			query = query.Where("data->>? LIKE ?", field, escapeLike(string(prefix))+"%")
			continue
		}
		query = query.Where("data->>? = ?", field, fmt.Sprint(value))
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []DocumentRecord
	if err := query.Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}

	docs := make([]Document, 0, len(records))
	for _, record := range records {
		doc, err := record.document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *PostgresStore) Create(ctx context.Context, collection string, data Document) (Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	doc := cloneDocument(data)
	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
	}
	delete(doc, "id")

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	record := DocumentRecord{ID: id, Collection: collection, Data: datatypes.JSON(payload)}
	if err := s.conn(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("insert into %s: %w", collection, err)
	}
	return record.document()
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, data Document) (Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	var updated Document
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		var record DocumentRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("collection = ? AND id = ?", collection, id).
			First(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		current, err := record.document()
		if err != nil {
			return err
		}
		for k, v := range data {
			if k == "id" {
				continue
			}
			current[k] = v
		}
		delete(current, "id")
		delete(current, "createdAt")
		delete(current, "updatedAt")

		payload, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		record.Data = datatypes.JSON(payload)
		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		updated, err = record.document()
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return updated, nil
}

// WithTransaction opens a transaction, or a savepoint when ctx already
// carries one, so a failed statement inside fn can be rolled back without
// aborting the enclosing transaction.
func (s *PostgresStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, nested := ctx.Value(txKey{}).(*gorm.DB); nested {
		return tx.Transaction(func(sp *gorm.DB) error {
			return fn(context.WithValue(ctx, txKey{}, sp))
		})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (s *PostgresStore) SupportsTransactions() bool {
	return true
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStore) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(tx)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func (r DocumentRecord) document() (Document, error) {
	doc := Document{}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &doc); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", r.Collection, r.ID, err)
		}
	}
	doc["id"] = r.ID
	doc["createdAt"] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	doc["updatedAt"] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	return doc, nil
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}

var (
	_ DocumentStore = (*PostgresStore)(nil)
	_ Transactor    = (*PostgresStore)(nil)
)
