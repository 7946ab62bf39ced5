package catalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"catalog-import-service/internal/logger"
	"catalog-import-service/internal/models"
	"catalog-import-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productRow(number int, cells map[string]string) Row {
	return NewRow(number, cells)
}

func loadProduct(t *testing.T, s store.DocumentStore, article string) models.Product {
	t.Helper()
	doc, err := store.FindOne(context.Background(), s, models.CollectionProducts, store.Filter{"article": article})
	require.NoError(t, err)
	var product models.Product
	require.NoError(t, models.DecodeDocument(doc, &product))
	return product
}

func TestImportRows_ReferencesCreatedOnce(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	importer := NewImporter(mem, logger.Discard())

	rows := []Row{
		productRow(2, map[string]string{"name": "Pad A", "category": "Brakes", "article": "A-1"}),
		productRow(3, map[string]string{"name": "Pad B", "category": "Brakes", "article": "A-2"}),
	}

	result := importer.ImportRows(ctx, rows, models.ImportOptions{})
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.CreatedCount)
	assert.Equal(t, 1, mem.Count(models.CollectionCategories))

	again := importer.ImportRows(ctx, rows, models.ImportOptions{})
	assert.Equal(t, 0, again.CreatedCount)
	assert.Equal(t, 2, again.UpdatedCount)
	assert.Equal(t, result.CreatedIDs, again.UpdatedIDs)
	assert.Equal(t, 2, mem.Count(models.CollectionProducts))
	assert.Equal(t, 1, mem.Count(models.CollectionCategories))
}

func TestImportRows_MissingArticleRejected(t *testing.T) {
	mem := store.NewMemoryStore()
	importer := NewImporter(mem, logger.Discard())

	result := importer.ImportRows(context.Background(), []Row{
		productRow(2, map[string]string{"name": "Pad", "category": "Brakes"}),
	}, models.ImportOptions{})

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 2, result.Errors[0].Row)
	assert.Equal(t, models.ColArticle, result.Errors[0].Column)
	assert.Equal(t, CodeRequiredField, result.Errors[0].Code)
	assert.Equal(t, 0, mem.Count(models.CollectionProducts))
	assert.Equal(t, 0, mem.Count(models.CollectionCategories))
}

func TestImportRows_SlugKeyFallsBackToName(t *testing.T) {
	mem := store.NewMemoryStore()
	importer := NewImporter(mem, logger.Discard())

	result := importer.ImportRows(context.Background(), []Row{
		productRow(2, map[string]string{"name": "Колодки тормозные", "category": "Brakes"}),
	}, models.ImportOptions{Key: models.UniqueKeySlug})

	require.True(t, result.Success)
	doc, err := store.FindOne(context.Background(), mem, models.CollectionProducts, store.Filter{"slug": "kolodki-tormoznye"})
	require.NoError(t, err)
	assert.Equal(t, "Колодки тормозные", doc.String("name"))
}

func TestImportRows_InStockDefaults(t *testing.T) {
	mem := store.NewMemoryStore()
	importer := NewImporter(mem, logger.Discard())

	result := importer.ImportRows(context.Background(), []Row{
		productRow(2, map[string]string{"name": "A", "category": "Brakes", "article": "missing"}),
		productRow(3, map[string]string{"name": "B", "category": "Brakes", "article": "off", "inStock": "false"}),
		productRow(4, map[string]string{"name": "C", "category": "Brakes", "article": "upper", "inStock": "TRUE", "featured": "yes"}),
	}, models.ImportOptions{})
	require.True(t, result.Success)

	assert.True(t, loadProduct(t, mem, "missing").InStock)
	assert.False(t, loadProduct(t, mem, "missing").Featured)
	assert.False(t, loadProduct(t, mem, "off").InStock)
	assert.True(t, loadProduct(t, mem, "upper").InStock)
	assert.True(t, loadProduct(t, mem, "upper").Featured)
}

func TestImportRows_FailedRowDoesNotStopBatch(t *testing.T) {
	mem := store.NewMemoryStore()
	importer := NewImporter(mem, logger.Discard())

	var rows []Row
	for i := 1; i <= 10; i++ {
		cells := map[string]string{"name": fmt.Sprintf("Part %d", i), "category": "Filters", "article": fmt.Sprintf("F-%d", i)}
		if i == 5 {
			delete(cells, "name")
		}
		rows = append(rows, productRow(i+1, cells))
	}

	result := importer.ImportRows(context.Background(), rows, models.ImportOptions{})
	assert.False(t, result.Success)
	assert.Equal(t, 10, result.TotalRows)
	assert.Equal(t, 9, result.SuccessCount)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 6, result.Errors[0].Row)
	assert.Equal(t, models.ColName, result.Errors[0].Column)
	assert.Equal(t, 9, mem.Count(models.CollectionProducts))
}

func TestImportRows_CategoryStoreFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.FailOn = func(op, collection string, data store.Document) error {
		if op == "create" && collection == models.CollectionCategories {
			return errors.New("write rejected")
		}
		return nil
	}
	importer := NewImporter(mem, logger.Discard())

	result := importer.ImportRows(context.Background(), []Row{
		productRow(2, map[string]string{"name": "Pad", "category": "Brakes", "article": "A-1"}),
	}, models.ImportOptions{})

	require.Len(t, result.Errors, 1)
	assert.Equal(t, CodeCategoryUnresolved, result.Errors[0].Code)
	assert.Equal(t, models.ColCategory, result.Errors[0].Column)
	assert.Contains(t, result.Errors[0].Message, "write rejected")
	assert.Equal(t, 0, mem.Count(models.CollectionProducts))
}

func failProductCreate(op, collection string, data store.Document) error {
	if op == "create" && collection == models.CollectionProducts {
		return errors.New("disk full")
	}
	return nil
}

func TestImportRows_WriteFailureRollsBackReferences(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.FailOn = failProductCreate
	importer := NewImporter(mem, logger.Discard())

	result := importer.ImportRows(context.Background(), []Row{
		productRow(2, map[string]string{"name": "Pad", "category": "Brakes", "article": "A-1", "brand": "Toyota"}),
	}, models.ImportOptions{})

	require.Len(t, result.Errors, 1)
	assert.Equal(t, CodeWriteFailed, result.Errors[0].Code)
	assert.Empty(t, result.Errors[0].CreatedRefs)
	assert.Equal(t, 0, mem.Count(models.CollectionCategories))
	assert.Equal(t, 0, mem.Count(models.CollectionBrands))
}

func TestImportRows_WriteFailureReportsCreatedRefs(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.NoTransactions = true
	mem.FailOn = failProductCreate
	importer := NewImporter(mem, logger.Discard())

	result := importer.ImportRows(context.Background(), []Row{
		productRow(2, map[string]string{"name": "Pad", "category": "Brakes", "article": "A-1", "brand": "Toyota"}),
	}, models.ImportOptions{})

	require.Len(t, result.Errors, 1)
	rowErr := result.Errors[0]
	assert.Equal(t, CodeWriteFailed, rowErr.Code)
	require.Len(t, rowErr.CreatedRefs, 2)
	assert.Contains(t, rowErr.CreatedRefs[0], models.CollectionCategories+"/")
	assert.Contains(t, rowErr.CreatedRefs[1], models.CollectionBrands+"/")
	assert.Equal(t, 1, mem.Count(models.CollectionCategories))
}

func TestImportRows_NormalizesURLs(t *testing.T) {
	mem := store.NewMemoryStore()
	importer := NewImporter(mem, logger.Discard())

	result := importer.ImportRows(context.Background(), []Row{
		productRow(2, map[string]string{
			"name": "Pad", "category": "Brakes", "article": "A-1",
			"marketplaceLinks_ozon":        "ozon.ru/p/1",
			"marketplaceLinks_wildberries": "http://wb.ru/p/1",
			"distributors":                 "Protek:protekauto.ru:Москва",
		}),
	}, models.ImportOptions{})
	require.True(t, result.Success)

	product := loadProduct(t, mem, "A-1")
	assert.Equal(t, "https://ozon.ru/p/1", product.MarketplaceLinks.Ozon)
	assert.Equal(t, "http://wb.ru/p/1", product.MarketplaceLinks.Wildberries)
	assert.Equal(t, []models.Distributor{{Name: "Protek", URL: "https://protekauto.ru", Location: "Москва"}}, product.Distributors)
}

func TestImportRows_UpdateKeepsAbsentFields(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	importer := NewImporter(mem, logger.Discard())

	first := importer.ImportRows(ctx, []Row{
		productRow(2, map[string]string{
			"name": "Pad", "category": "Brakes", "article": "A-1",
			"description": "Ceramic pads", "oem": "04465-33471", "specifications": "Вес:5кг",
		}),
	}, models.ImportOptions{})
	require.True(t, first.Success)

	second := importer.ImportRows(ctx, []Row{
		productRow(2, map[string]string{"name": "Pad v2", "category": "Brakes", "article": "A-1"}),
	}, models.ImportOptions{})
	require.True(t, second.Success)
	assert.Equal(t, 1, second.UpdatedCount)

	product := loadProduct(t, mem, "A-1")
	assert.Equal(t, "Pad v2", product.Name)
	assert.Equal(t, "Ceramic pads", product.Description.PlainText())
	assert.Equal(t, "04465-33471", product.OEM)
	assert.Equal(t, []models.Specification{{Name: "Вес", Value: "5кг"}}, product.Specifications)
}

func TestImportRows_ReferenceHierarchy(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	importer := NewImporter(mem, logger.Discard())

	result := importer.ImportRows(ctx, []Row{
		productRow(2, map[string]string{
			"name": "Pad", "category": "Brakes", "article": "A-1",
			"subcategory": "Pads", "thirdsubcategory": "Front",
			"brand": "Toyota|Lexus", "model": "Camry", "modification": "2.5 AT",
		}),
	}, models.ImportOptions{})
	require.True(t, result.Success)
	assert.Empty(t, result.Warnings)

	product := loadProduct(t, mem, "A-1")
	require.Len(t, product.Brand, 2)

	model, err := store.FindByID(ctx, mem, models.CollectionModels, product.Model)
	require.NoError(t, err)
	assert.Equal(t, product.Brand[0], model.String("brand"))

	modification, err := store.FindByID(ctx, mem, models.CollectionModifications, product.Modification)
	require.NoError(t, err)
	assert.Equal(t, product.Model, modification.String("model"))

	third, err := store.FindByID(ctx, mem, models.CollectionThirdSubcategories, product.ThirdSubcategory)
	require.NoError(t, err)
	assert.Equal(t, product.Subcategory, third.String("subcategory"))

	for _, brandID := range product.Brand {
		brand, err := store.FindByID(ctx, mem, models.CollectionBrands, brandID)
		require.NoError(t, err)
		assert.Equal(t, []string{product.ThirdSubcategory}, brand.Strings("thirdsubcategories"))
	}
}

func TestImportRows_ThirdSubcategoryWithoutParent(t *testing.T) {
	mem := store.NewMemoryStore()
	importer := NewImporter(mem, logger.Discard())

	result := importer.ImportRows(context.Background(), []Row{
		productRow(2, map[string]string{"name": "Pad", "category": "Brakes", "article": "A-1", "thirdsubcategory": "Front"}),
	}, models.ImportOptions{})

	require.True(t, result.Success)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, CodeParentMissing, result.Warnings[0].Code)
	assert.Equal(t, 0, mem.Count(models.CollectionThirdSubcategories))
}

func TestImportRows_ImagesAndLogos(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	front := seedMedia(t, mem, "front.jpg", "Front")
	side := seedMedia(t, mem, "side.jpg", "")
	logo := seedMedia(t, mem, "avito.png", "")
	importer := NewImporter(mem, logger.Discard())

	result := importer.ImportRows(ctx, []Row{
		productRow(2, map[string]string{
			"name": "Pad", "category": "Brakes", "article": "A-1",
			"image": "front", "images": "side.jpg,front.jpg,ghost.jpg",
			"marketplaceLinks_others": "Авито:avito.ru/1:avito.png",
		}),
	}, models.ImportOptions{})
	require.True(t, result.Success)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, CodeMediaNotFound, result.Warnings[0].Code)

	product := loadProduct(t, mem, "A-1")
	assert.Equal(t, []models.ProductImage{{Image: front, Alt: "Front"}, {Image: side}}, product.Images)
	assert.Equal(t, []models.MarketplaceLink{{Name: "Авито", URL: "https://avito.ru/1", Logo: logo}}, product.MarketplaceLinks.Others)
}

func TestImportRows_ValidateOnlyWritesNothing(t *testing.T) {
	mem := store.NewMemoryStore()
	var statuses []string
	importer := NewImporter(mem, logger.Discard()).WithObserver(func(status string) {
		statuses = append(statuses, status)
	})

	result := importer.ImportRows(context.Background(), []Row{
		productRow(2, map[string]string{"name": "Pad", "category": "Brakes", "article": "A-1"}),
		productRow(3, map[string]string{"category": "Brakes", "article": "A-2"}),
	}, models.ImportOptions{ValidateOnly: true})

	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.Zero(t, result.CreatedCount)
	assert.Empty(t, mem.Collections())
	assert.Equal(t, []string{"valid", "failed"}, statuses)
}

func TestImportRows_CancelledContext(t *testing.T) {
	mem := store.NewMemoryStore()
	importer := NewImporter(mem, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := importer.ImportRows(ctx, []Row{
		productRow(2, map[string]string{"name": "Pad", "category": "Brakes", "article": "A-1"}),
		productRow(3, map[string]string{"name": "Disc", "category": "Brakes", "article": "A-2"}),
	}, models.ImportOptions{})

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.FailedCount)
	for _, rowErr := range result.Errors {
		assert.Equal(t, CodeCancelled, rowErr.Code)
	}
	assert.Empty(t, mem.Collections())
}

func TestImportFile_UnreadableFile(t *testing.T) {
	importer := NewImporter(store.NewMemoryStore(), logger.Discard())

	result, err := importer.ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), models.ImportOptions{})
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Zero(t, result.SuccessCount)
	assert.Zero(t, result.TotalRows)
}

func TestImportRows_CategoryRequired(t *testing.T) {
	tests := []struct {
		name  string
		cells map[string]string
	}{
		{"absent", map[string]string{"name": "Pad", "article": "A-1"}},
		{"blank", map[string]string{"name": "Pad", "article": "A-1", "category": "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := store.NewMemoryStore()
			importer := NewImporter(mem, logger.Discard())

			result := importer.ImportRows(context.Background(), []Row{productRow(2, tt.cells)}, models.ImportOptions{})

			assert.Equal(t, 0, result.SuccessCount)
			assert.Equal(t, 1, result.FailedCount)
			require.Len(t, result.Errors, 1)
			assert.Equal(t, models.ColCategory, result.Errors[0].Column)
			assert.Equal(t, CodeRequiredField, result.Errors[0].Code)
			assert.Equal(t, 0, mem.Count(models.CollectionProducts))
			assert.Equal(t, 0, mem.Count(models.CollectionCategories))
		})
	}
}

var errTxAborted = errors.New("current transaction is aborted, commands ignored until end of transaction block")

// abortingStore behaves like a SQL backend: once a statement fails, every
// later statement in the same transaction fails until it, or the savepoint
// it ran in, is rolled back.
type abortingStore struct {
	*store.MemoryStore
	aborted bool
}

func (s *abortingStore) check(err error) error {
	if err != nil {
		s.aborted = true
	}
	return err
}

func (s *abortingStore) Find(ctx context.Context, collection string, filter store.Filter, limit int) ([]store.Document, error) {
	if s.aborted {
		return nil, errTxAborted
	}
	docs, err := s.MemoryStore.Find(ctx, collection, filter, limit)
	return docs, s.check(err)
}

func (s *abortingStore) Create(ctx context.Context, collection string, data store.Document) (store.Document, error) {
	if s.aborted {
		return nil, errTxAborted
	}
	doc, err := s.MemoryStore.Create(ctx, collection, data)
	return doc, s.check(err)
}

func (s *abortingStore) Update(ctx context.Context, collection, id string, data store.Document) (store.Document, error) {
	if s.aborted {
		return nil, errTxAborted
	}
	doc, err := s.MemoryStore.Update(ctx, collection, id, data)
	return doc, s.check(err)
}

func (s *abortingStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.MemoryStore.WithTransaction(ctx, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil && s.aborted {
			err = errTxAborted
		}
		if err != nil {
			s.aborted = false
		}
		return err
	})
}

func TestImportRows_OptionalLookupFailureKeepsRowTransaction(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	failed := false
	mem.FailOn = func(op, collection string, data store.Document) error {
		if op == "find" && collection == models.CollectionBrands && data["name"] == "Toyota" && !failed {
			failed = true
			return errors.New("brands lookup timed out")
		}
		return nil
	}
	s := &abortingStore{MemoryStore: mem}
	importer := NewImporter(s, logger.Discard())

	result := importer.ImportRows(ctx, []Row{
		productRow(2, map[string]string{
			"name": "Pad", "category": "Brakes", "article": "A-1",
			"brand": "Toyota|Lexus", "model": "Camry", "images": "missing.jpg",
		}),
	}, models.ImportOptions{})

	require.True(t, result.Success, "errors: %v", result.Errors)
	assert.Equal(t, 1, result.CreatedCount)
	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, models.ColBrand, result.Warnings[0].Column)
	assert.Equal(t, CodeReferenceFailed, result.Warnings[0].Code)

	product := loadProduct(t, mem, "A-1")
	require.Len(t, product.Brand, 1)
	lexus, err := store.FindByID(ctx, mem, models.CollectionBrands, product.Brand[0])
	require.NoError(t, err)
	assert.Equal(t, "Lexus", lexus.String("name"))

	model, err := store.FindByID(ctx, mem, models.CollectionModels, product.Model)
	require.NoError(t, err)
	assert.Equal(t, product.Brand[0], model.String("brand"))
	assert.False(t, s.aborted)
}

func TestImportRows_FailureOutsideSavepointFailsRow(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.FailOn = func(op, collection string, data store.Document) error {
		if op == "create" && collection == models.CollectionProducts {
			return errors.New("unique violation")
		}
		return nil
	}
	s := &abortingStore{MemoryStore: mem}

	result := NewImporter(s, logger.Discard()).ImportRows(context.Background(), []Row{
		productRow(2, map[string]string{"name": "Pad", "category": "Brakes", "article": "A-1", "brand": "Toyota"}),
	}, models.ImportOptions{})

	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, CodeWriteFailed, result.Errors[0].Code)
	assert.Equal(t, 0, mem.Count(models.CollectionCategories))
	assert.Equal(t, 0, mem.Count(models.CollectionBrands))
}
