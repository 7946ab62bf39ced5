package catalog

import (
	"fmt"
	"strings"

	"catalog-import-service/internal/models"
)

// Row error and warning codes
const (
	CodeRequiredField        = "REQUIRED_FIELD"
	CodeCategoryUnresolved   = "CATEGORY_UNRESOLVED"
	CodeWriteFailed          = "WRITE_FAILED"
	CodeCancelled            = "CANCELLED"
	CodeInvalidSpecification = "INVALID_SPECIFICATION"
	CodeInvalidLink          = "INVALID_MARKETPLACE_LINK"
	CodeInvalidDistributor   = "INVALID_DISTRIBUTOR"
	CodeMediaNotFound        = "MEDIA_NOT_FOUND"
	CodeReferenceFailed      = "REFERENCE_UNRESOLVED"
	CodeParentMissing        = "PARENT_MISSING"
	CodeBackfillFailed       = "BRAND_LINK_FAILED"
)

// ParsedRow holds the typed fields of one row before references are resolved.
type ParsedRow struct {
	Number int

	Name             string
	Slug             string
	Article          string
	Description      models.Description
	ShortDescription string
	OEM              string
	Featured         bool
	InStock          bool
	MetaTitle        string
	MetaDescription  string
	Specifications   []models.Specification
	Ozon             string
	Wildberries      string
	OtherLinks       []LinkItem // Extra holds the logo identifier
	Distributors     []models.Distributor
	Images           []string // primary image first

	Category         string
	Subcategory      string
	ThirdSubcategory string
	Brands           []string
	Model            string
	Modification     string

	Warnings []models.ImportRowError
}

func (p *ParsedRow) warn(column, code, message string) {
	p.Warnings = append(p.Warnings, models.ImportRowError{
		Row:     p.Number,
		Column:  column,
		Code:    code,
		Message: message,
	})
}

// ValidateRow reports missing hard-required cells: name, category and the
// unique key. A slug key falls back to the slug generated from the name.
func ValidateRow(row Row, key models.UniqueKey) []models.ImportRowError {
	var errs []models.ImportRowError
	required := func(column string) {
		if row.Get(column) == "" {
			errs = append(errs, models.ImportRowError{
				Row:     row.Number,
				Column:  column,
				Code:    CodeRequiredField,
				Message: fmt.Sprintf("%s is required", column),
			})
		}
	}

	required(models.ColName)
	required(models.ColCategory)

	switch key {
	case models.UniqueKeySlug:
		if row.Get(models.ColSlug) == "" && row.Get(models.ColName) != "" && Slugify(row.Get(models.ColName)) == "" {
			errs = append(errs, models.ImportRowError{
				Row:     row.Number,
				Column:  models.ColSlug,
				Code:    CodeRequiredField,
				Message: "slug is required when it cannot be generated from name",
			})
		}
	default:
		required(models.ColArticle)
	}
	return errs
}

// ParseRow turns raw cells into typed fields. Malformed micro-format items
// are dropped and reported as warnings.
func ParseRow(row Row) ParsedRow {
	p := ParsedRow{
		Number:           row.Number,
		Name:             row.Get(models.ColName),
		Article:          row.Get(models.ColArticle),
		Description:      models.PlainDescription(row.Get(models.ColDescription)),
		ShortDescription: row.Get(models.ColShortDescription),
		OEM:              row.Get(models.ColOEM),
		Featured:         ParseBool(row.Get(models.ColFeatured), false),
		InStock:          ParseBool(row.Get(models.ColInStock), true),
		MetaTitle:        row.Get(models.ColMetaTitle),
		MetaDescription:  row.Get(models.ColMetaDescription),
		Ozon:             NormalizeURL(row.Get(models.ColOzon)),
		Wildberries:      NormalizeURL(row.Get(models.ColWildberries)),
		Category:         row.Get(models.ColCategory),
		Subcategory:      row.Get(models.ColSubcategory),
		ThirdSubcategory: row.Get(models.ColThirdSubcategory),
		Brands:           ParseNames(row.Get(models.ColBrand)),
		Model:            row.Get(models.ColModel),
		Modification:     row.Get(models.ColModification),
	}

	p.Slug = row.Get(models.ColSlug)
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}

	specs, badSpecs := ParseSpecifications(row.Get(models.ColSpecifications))
	p.Specifications = specs
	for _, item := range badSpecs {
		p.warn(models.ColSpecifications, CodeInvalidSpecification, fmt.Sprintf("expected Name:Value, got %q", item))
	}

	links, badLinks := ParseLinkItems(row.Get(models.ColOtherMarketplace))
	p.OtherLinks = links
	for _, item := range badLinks {
		p.warn(models.ColOtherMarketplace, CodeInvalidLink, fmt.Sprintf("expected Name:URL[:Logo], got %q", item))
	}

	distributors, badDistributors := ParseDistributors(row.Get(models.ColDistributors))
	p.Distributors = distributors
	for _, item := range badDistributors {
		p.warn(models.ColDistributors, CodeInvalidDistributor, fmt.Sprintf("expected Name:URL[:Location], got %q", item))
	}

	var images []string
	if primary := row.Get(models.ColImage); primary != "" {
		images = append(images, primary)
	}
	for _, identifier := range ParseList(row.Get(models.ColImages)) {
		if !containsFold(images, identifier) {
			images = append(images, identifier)
		}
	}
	p.Images = images

	return p
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
