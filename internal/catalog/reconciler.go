package catalog

import (
	"context"
	"errors"
	"fmt"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/store"

	"github.com/sirupsen/logrus"
)

var (
	ErrRequiredField      = errors.New("required field missing")
	ErrCategoryUnresolved = errors.New("category could not be resolved")
)

// ResolvedRefs holds the document ids found or created for one row.
type ResolvedRefs struct {
	Category         string
	Subcategory      string
	ThirdSubcategory string
	Brands           []string
	Model            string
	Modification     string
	Images           []models.ProductImage
	OtherLinks       []models.MarketplaceLink
}

// Outcome reports what the reconciler wrote.
type Outcome struct {
	ID      string
	Created bool
}

// BuildPayload assembles the product document. Empty values are left out so
// an update never blanks existing data; flags are always written.
func BuildPayload(row ParsedRow, refs ResolvedRefs) (store.Document, error) {
	payload := store.Document{
		"featured": row.Featured,
		"inStock":  row.InStock,
	}

	setString := func(field, value string) {
		if value != "" {
			payload[field] = value
		}
	}
	setString("name", row.Name)
	setString("slug", row.Slug)
	setString("article", row.Article)
	setString("shortDescription", row.ShortDescription)
	setString("oem", row.OEM)
	setString("metaTitle", row.MetaTitle)
	setString("metaDescription", row.MetaDescription)
	setString("category", refs.Category)
	setString("subcategory", refs.Subcategory)
	setString("thirdsubcategory", refs.ThirdSubcategory)
	setString("model", refs.Model)
	setString("modification", refs.Modification)

	if len(refs.Brands) > 0 {
		payload["brand"] = append([]string(nil), refs.Brands...)
	}

	structured := map[string]interface{}{}
	if !row.Description.IsEmpty() {
		structured["description"] = row.Description
	}
	if len(row.Specifications) > 0 {
		structured["specifications"] = row.Specifications
	}
	links := models.MarketplaceLinks{Ozon: row.Ozon, Wildberries: row.Wildberries, Others: refs.OtherLinks}
	if !links.IsEmpty() {
		structured["marketplaceLinks"] = links
	}
	if len(row.Distributors) > 0 {
		structured["distributors"] = row.Distributors
	}
	if len(refs.Images) > 0 {
		structured["images"] = refs.Images
	}

	for field, value := range structured {
		converted, err := models.ToDocumentValue(value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", field, err)
		}
		payload[field] = converted
	}
	return payload, nil
}

// RowReconciler upserts product documents by a unique key.
type RowReconciler struct {
	store  store.DocumentStore
	key    models.UniqueKey
	logger *logrus.Entry
}

func NewRowReconciler(s store.DocumentStore, key models.UniqueKey, logger *logrus.Logger) *RowReconciler {
	if key == "" {
		key = models.UniqueKeyArticle
	}
	return &RowReconciler{
		store:  s,
		key:    key,
		logger: logger.WithField("component", "row_reconciler"),
	}
}

// Reconcile updates the product matching the payload's key in place, or
// creates it when none exists.
func (r *RowReconciler) Reconcile(ctx context.Context, payload store.Document) (Outcome, error) {
	keyValue := payload.String(string(r.key))
	if keyValue == "" {
		return Outcome{}, fmt.Errorf("%w: %s", ErrRequiredField, r.key)
	}

	existing, err := r.store.Find(ctx, models.CollectionProducts, store.Filter{string(r.key): keyValue}, 1)
	if err != nil {
		return Outcome{}, fmt.Errorf("lookup product %s=%q: %w", r.key, keyValue, err)
	}

	if len(existing) > 0 {
		id := existing[0].ID()
		if _, err := r.store.Update(ctx, models.CollectionProducts, id, payload); err != nil {
			return Outcome{}, fmt.Errorf("update product %s: %w", id, err)
		}
		r.logger.WithFields(logrus.Fields{"id": id, string(r.key): keyValue}).Debug("Updated product")
		return Outcome{ID: id}, nil
	}

	for _, field := range []string{"name", string(r.key), "category"} {
		if payload.String(field) == "" {
			return Outcome{}, fmt.Errorf("%w: %s", ErrRequiredField, field)
		}
	}

	created, err := r.store.Create(ctx, models.CollectionProducts, payload)
	if err != nil {
		return Outcome{}, fmt.Errorf("create product %s=%q: %w", r.key, keyValue, err)
	}
	r.logger.WithFields(logrus.Fields{"id": created.ID(), string(r.key): keyValue}).Debug("Created product")
	return Outcome{ID: created.ID(), Created: true}, nil
}
