package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/store"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const catalogSheet = "Catalog"

// ExportFilename returns catalog-export-YYYY-MM-DD.<ext>.
func ExportFilename(format models.ImportFormat, now time.Time) string {
	return fmt.Sprintf("catalog-export-%s.%s", now.Format("2006-01-02"), format)
}

// Exporter writes products back out in the import layout so an export can
// be re-imported unchanged.
type Exporter struct {
	store  store.DocumentStore
	logger *logrus.Entry
}

func NewExporter(s store.DocumentStore, logger *logrus.Logger) *Exporter {
	return &Exporter{
		store:  s,
		logger: logger.WithField("component", "catalog_exporter"),
	}
}

// Rows renders every product as a record ordered like CatalogColumns.
func (e *Exporter) Rows(ctx context.Context) ([][]string, error) {
	docs, err := e.store.Find(ctx, models.CollectionProducts, store.Filter{}, 0)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	names := newLabelCache(e.store)
	records := make([][]string, 0, len(docs))
	for _, doc := range docs {
		var product models.Product
		if err := models.DecodeDocument(doc, &product); err != nil {
			e.logger.WithError(err).WithField("id", doc.ID()).Warn("Skipping undecodable product")
			continue
		}
		record, err := e.record(ctx, product, names)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (e *Exporter) record(ctx context.Context, p models.Product, labels *labelCache) ([]string, error) {
	ref := func(kind RefKind, id string) (string, error) {
		return labels.name(ctx, kind.Collection(), id)
	}

	category, err := ref(RefCategory, p.Category)
	if err != nil {
		return nil, err
	}
	subcategory, err := ref(RefSubcategory, p.Subcategory)
	if err != nil {
		return nil, err
	}
	third, err := ref(RefThirdSubcategory, p.ThirdSubcategory)
	if err != nil {
		return nil, err
	}
	model, err := ref(RefModel, p.Model)
	if err != nil {
		return nil, err
	}
	modification, err := ref(RefModification, p.Modification)
	if err != nil {
		return nil, err
	}

	brands := make([]string, 0, len(p.Brand))
	for _, id := range p.Brand {
		name, err := ref(RefBrand, id)
		if err != nil {
			return nil, err
		}
		if name != "" {
			brands = append(brands, name)
		}
	}

	images := make([]string, 0, len(p.Images))
	for _, img := range p.Images {
		label, err := labels.media(ctx, img.Image)
		if err != nil {
			return nil, err
		}
		if label != "" {
			images = append(images, label)
		}
	}
	var primary string
	if len(images) > 0 {
		primary = images[0]
	}

	var logoErr error
	others := FormatMarketplaceLinks(p.MarketplaceLinks.Others, func(mediaID string) string {
		label, err := labels.media(ctx, mediaID)
		if err != nil && logoErr == nil {
			logoErr = err
		}
		return label
	})
	if logoErr != nil {
		return nil, logoErr
	}

	values := map[string]string{
		models.ColName:             p.Name,
		models.ColCategory:         category,
		models.ColSlug:             p.Slug,
		models.ColDescription:      p.Description.PlainText(),
		models.ColShortDescription: p.ShortDescription,
		models.ColOEM:              p.OEM,
		models.ColArticle:          p.Article,
		models.ColFeatured:         FormatBool(p.Featured),
		models.ColInStock:          FormatBool(p.InStock),
		models.ColSubcategory:      subcategory,
		models.ColThirdSubcategory: third,
		models.ColBrand:            strings.Join(brands, valueSeparator),
		models.ColModel:            model,
		models.ColModification:     modification,
		models.ColImage:            primary,
		models.ColImages:           strings.Join(images, itemSeparator),
		models.ColMetaTitle:        p.MetaTitle,
		models.ColMetaDescription:  p.MetaDescription,
		models.ColSpecifications:   FormatSpecifications(p.Specifications),
		models.ColOzon:             p.MarketplaceLinks.Ozon,
		models.ColWildberries:      p.MarketplaceLinks.Wildberries,
		models.ColOtherMarketplace: others,
		models.ColDistributors:     FormatDistributors(p.Distributors),
	}

	columns := models.CatalogColumns()
	record := make([]string, len(columns))
	for idx, column := range columns {
		record[idx] = values[column]
	}
	return record, nil
}

// WriteCSV writes the header and every product using the given delimiter.
func (e *Exporter) WriteCSV(ctx context.Context, w io.Writer, delimiter string) (int, error) {
	records, err := e.Rows(ctx)
	if err != nil {
		return 0, err
	}

	sep := []rune(delimiter)
	if len(sep) != 1 {
		return 0, ErrBadDelimiter
	}

	writer := csv.NewWriter(w)
	writer.Comma = sep[0]
	if err := writer.Write(models.CatalogColumns()); err != nil {
		return 0, err
	}
	if err := writer.WriteAll(records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// WriteXLSX writes the export as a single-sheet workbook.
func (e *Exporter) WriteXLSX(ctx context.Context, w io.Writer) (int, error) {
	records, err := e.Rows(ctx)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", catalogSheet)
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	columns := models.CatalogColumns()
	for i, column := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(catalogSheet, cell, column)
		f.SetCellStyle(catalogSheet, cell, cell, headerStyle)
	}
	for r, record := range records {
		for c, value := range record {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			f.SetCellStr(catalogSheet, cell, value)
		}
	}

	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	return len(records), nil
}

// labelCache memoises id -> name lookups for the duration of one export.
type labelCache struct {
	store  store.DocumentStore
	labels map[string]string
}

func newLabelCache(s store.DocumentStore) *labelCache {
	return &labelCache{store: s, labels: make(map[string]string)}
}

func (c *labelCache) name(ctx context.Context, collection, id string) (string, error) {
	return c.lookup(ctx, collection, id, func(doc store.Document) string {
		return doc.String("name")
	})
}

func (c *labelCache) media(ctx context.Context, id string) (string, error) {
	return c.lookup(ctx, models.CollectionMedia, id, func(doc store.Document) string {
		media, err := decodeMedia(doc)
		if err != nil {
			return ""
		}
		return media.Label()
	})
}

func (c *labelCache) lookup(ctx context.Context, collection, id string, label func(store.Document) string) (string, error) {
	if id == "" {
		return "", nil
	}
	key := collection + "/" + id
	if cached, ok := c.labels[key]; ok {
		return cached, nil
	}

	doc, err := store.FindByID(ctx, c.store, collection, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("load %s: %w", key, err)
	}

	var value string
	if doc != nil {
		value = label(doc)
	}
	c.labels[key] = value
	return value, nil
}
