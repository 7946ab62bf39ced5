package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/store"

	"github.com/sirupsen/logrus"
)

// RefKind names a reference collection the resolver can find or create in.
type RefKind string

const (
	RefCategory         RefKind = "category"
	RefSubcategory      RefKind = "subcategory"
	RefThirdSubcategory RefKind = "thirdsubcategory"
	RefBrand            RefKind = "brand"
	RefModel            RefKind = "model"
	RefModification     RefKind = "modification"
)

type refSpec struct {
	collection  string
	parentField string // field holding the parent reference id, "" for roots
}

var refSpecs = map[RefKind]refSpec{
	RefCategory:         {collection: models.CollectionCategories},
	RefSubcategory:      {collection: models.CollectionSubcategories, parentField: "category"},
	RefThirdSubcategory: {collection: models.CollectionThirdSubcategories, parentField: "subcategory"},
	RefBrand:            {collection: models.CollectionBrands},
	RefModel:            {collection: models.CollectionModels, parentField: "brand"},
	RefModification:     {collection: models.CollectionModifications, parentField: "model"},
}

// Collection returns the store collection backing the reference kind.
func (k RefKind) Collection() string {
	return refSpecs[k].collection
}

// brand documents list the third-level subcategories they appear under
const brandThirdSubcategoriesField = "thirdsubcategories"

var ErrUnknownReference = errors.New("unknown reference kind")

// Resolution is the outcome of a find-or-create.
type Resolution struct {
	ID      string
	Created bool
}

// Ref renders the resolution as "collection/id" for the compensation log.
func (r Resolution) Ref(kind RefKind) string {
	return kind.Collection() + "/" + r.ID
}

// ReferenceResolver finds reference documents by name and creates the ones
// that do not exist yet. It holds no cache; every call queries the store.
type ReferenceResolver struct {
	store  store.DocumentStore
	logger *logrus.Entry
}

func NewReferenceResolver(s store.DocumentStore, logger *logrus.Logger) *ReferenceResolver {
	return &ReferenceResolver{
		store:  s,
		logger: logger.WithField("component", "reference_resolver"),
	}
}

// Resolve returns the id of the kind's document called name, scoped to
// parentID when given, creating it on first sight. A blank name resolves to
// an empty Resolution without touching the store.
func (r *ReferenceResolver) Resolve(ctx context.Context, kind RefKind, name, parentID string) (Resolution, error) {
	spec, ok := refSpecs[kind]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %s", ErrUnknownReference, kind)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return Resolution{}, nil
	}

	filter := store.Filter{"name": name}
	if parentID != "" && spec.parentField != "" {
		filter[spec.parentField] = parentID
	}

	existing, err := r.store.Find(ctx, spec.collection, filter, 1)
	if err != nil {
		return Resolution{}, fmt.Errorf("lookup %s %q: %w", kind, name, err)
	}
	if len(existing) > 0 {
		return Resolution{ID: existing[0].ID()}, nil
	}

	data := store.Document{
		"name": name,
		"slug": Slugify(name),
	}
	if parentID != "" && spec.parentField != "" {
		data[spec.parentField] = parentID
	}

	created, err := r.store.Create(ctx, spec.collection, data)
	if err != nil {
		return Resolution{}, fmt.Errorf("create %s %q: %w", kind, name, err)
	}

	r.logger.WithFields(logrus.Fields{
		"kind":   kind,
		"name":   name,
		"id":     created.ID(),
		"parent": parentID,
	}).Info("Created reference")

	return Resolution{ID: created.ID(), Created: true}, nil
}

// LinkBrandsToThirdSubcategory adds thirdID to each brand's list of
// third-level subcategories unless it is already there.
func (r *ReferenceResolver) LinkBrandsToThirdSubcategory(ctx context.Context, brandIDs []string, thirdID string) error {
	if thirdID == "" {
		return nil
	}

	var errs []error
	for _, brandID := range brandIDs {
		brand, err := store.FindByID(ctx, r.store, models.CollectionBrands, brandID)
		if err != nil {
			errs = append(errs, fmt.Errorf("load brand %s: %w", brandID, err))
			continue
		}

		linked := brand.Strings(brandThirdSubcategoriesField)
		if containsString(linked, thirdID) {
			continue
		}

		linked = append(linked, thirdID)
		if _, err := r.store.Update(ctx, models.CollectionBrands, brandID, store.Document{
			brandThirdSubcategoriesField: linked,
		}); err != nil {
			errs = append(errs, fmt.Errorf("link brand %s: %w", brandID, err))
		}
	}
	return errors.Join(errs...)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
