package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ImportFormat represents the file format for import
type ImportFormat string

const (
	ImportFormatCSV  ImportFormat = "csv"
	ImportFormatXLSX ImportFormat = "xlsx"
)

// ImportStatus represents the status of an import job
type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "PENDING"
	ImportStatusProcessing ImportStatus = "PROCESSING"
	ImportStatusCompleted  ImportStatus = "COMPLETED"
	ImportStatusFailed     ImportStatus = "FAILED"
)

// UniqueKey names the product field used to match rows against existing products.
type UniqueKey string

const (
	UniqueKeyArticle UniqueKey = "article"
	UniqueKeySlug    UniqueKey = "slug"
)

// Supported input encodings
const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1251 = "windows-1251"
)

// ImportOptions configures a single batch.
type ImportOptions struct {
	Delimiter    string    `json:"delimiter" yaml:"delimiter" validate:"omitempty,len=1"`
	Key          UniqueKey `json:"key" yaml:"key" validate:"omitempty,oneof=article slug"`
	Encoding     string    `json:"encoding" yaml:"encoding" validate:"omitempty,oneof=utf-8 windows-1251"`
	Sheet        string    `json:"sheet,omitempty" yaml:"sheet"`
	ValidateOnly bool      `json:"validateOnly" yaml:"validateOnly"`
}

// WithDefaults fills unset options.
func (o ImportOptions) WithDefaults() ImportOptions {
	if o.Delimiter == "" {
		o.Delimiter = ";"
	}
	if o.Key == "" {
		o.Key = UniqueKeyArticle
	}
	if o.Encoding == "" {
		o.Encoding = EncodingUTF8
	}
	return o
}

// ImportTemplateColumn defines a column in the import template
type ImportTemplateColumn struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // string, boolean, list, reference
	Example     string `json:"example"`
}

// ImportTemplate defines the structure of an import template
type ImportTemplate struct {
	Entity     string                 `json:"entity"`
	Version    string                 `json:"version"`
	Columns    []ImportTemplateColumn `json:"columns"`
	SampleData []map[string]string    `json:"sampleData,omitempty"`
}

// ImportRowError represents an error for a specific row
type ImportRowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	// CreatedRefs lists "collection/id" references persisted by the row before
	// it failed, when the store could not roll them back.
	CreatedRefs []string `json:"createdRefs,omitempty"`
}

// ImportResult represents the result of an import operation
type ImportResult struct {
	Success      bool             `json:"success"`
	TotalRows    int              `json:"totalRows"`
	SuccessCount int              `json:"successCount"`
	CreatedCount int              `json:"createdCount"`
	UpdatedCount int              `json:"updatedCount"`
	FailedCount  int              `json:"failedCount"`
	Errors       []ImportRowError `json:"errors,omitempty"`
	Warnings     []ImportRowError `json:"warnings,omitempty"`
	CreatedIDs   []string         `json:"createdIds,omitempty"`
	UpdatedIDs   []string         `json:"updatedIds,omitempty"`
	ProcessingMs int64            `json:"processingMs"`
}

// ImportJob is the persisted summary of one batch.
type ImportJob struct {
	ID           uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Filename     string         `json:"filename" gorm:"not null"`
	Status       ImportStatus   `json:"status" gorm:"type:varchar(20);not null;default:'PENDING';index"`
	Options      datatypes.JSON `json:"options" gorm:"type:jsonb"`
	TotalRows    int            `json:"totalRows"`
	SuccessCount int            `json:"successCount"`
	FailedCount  int            `json:"failedCount"`
	CreatedCount int            `json:"createdCount"`
	UpdatedCount int            `json:"updatedCount"`
	Errors       datatypes.JSON `json:"errors" gorm:"type:jsonb"`
	ErrorMessage *string        `json:"errorMessage,omitempty"`
	RequestedBy  *string        `json:"requestedBy,omitempty"`
	StartedAt    *time.Time     `json:"startedAt,omitempty"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func (ImportJob) TableName() string {
	return "import_jobs"
}

// ApplyResult copies batch counters and row errors onto the job.
func (j *ImportJob) ApplyResult(result *ImportResult) error {
	if result == nil {
		return nil
	}
	j.TotalRows = result.TotalRows
	j.SuccessCount = result.SuccessCount
	j.FailedCount = result.FailedCount
	j.CreatedCount = result.CreatedCount
	j.UpdatedCount = result.UpdatedCount

	data, err := json.Marshal(result.Errors)
	if err != nil {
		return err
	}
	j.Errors = datatypes.JSON(data)
	return nil
}

// RowErrors decodes the persisted row error list.
func (j *ImportJob) RowErrors() []ImportRowError {
	var rowErrors []ImportRowError
	if len(j.Errors) == 0 {
		return rowErrors
	}
	_ = json.Unmarshal(j.Errors, &rowErrors)
	return rowErrors
}

type ImportJobResponse struct {
	Success bool       `json:"success"`
	Data    *ImportJob `json:"data"`
}

type ImportJobListResponse struct {
	Success    bool            `json:"success"`
	Data       []ImportJob     `json:"data"`
	Pagination *PaginationInfo `json:"pagination"`
}

// Catalog column names, matched case-insensitively against the header row.
const (
	ColName             = "name"
	ColCategory         = "category"
	ColSlug             = "slug"
	ColDescription      = "description"
	ColShortDescription = "shortDescription"
	ColOEM              = "oem"
	ColArticle          = "article"
	ColFeatured         = "featured"
	ColInStock          = "inStock"
	ColSubcategory      = "subcategory"
	ColThirdSubcategory = "thirdsubcategory"
	ColBrand            = "brand"
	ColModel            = "model"
	ColModification     = "modification"
	ColImage            = "image"
	ColImages           = "images"
	ColMetaTitle        = "metaTitle"
	ColMetaDescription  = "metaDescription"
	ColSpecifications   = "specifications"
	ColOzon             = "marketplaceLinks_ozon"
	ColWildberries      = "marketplaceLinks_wildberries"
	ColOtherMarketplace = "marketplaceLinks_others"
	ColDistributors     = "distributors"
)

// CatalogColumns is the column order used by exports and templates.
func CatalogColumns() []string {
	return []string{
		ColName, ColCategory, ColSlug, ColDescription, ColShortDescription, ColOEM, ColArticle,
		ColFeatured, ColInStock, ColSubcategory, ColThirdSubcategory, ColBrand, ColModel,
		ColModification, ColImage, ColImages, ColMetaTitle, ColMetaDescription, ColSpecifications,
		ColOzon, ColWildberries, ColOtherMarketplace, ColDistributors,
	}
}

// CatalogImportColumns returns the column definitions for catalog import
func CatalogImportColumns() []ImportTemplateColumn {
	return []ImportTemplateColumn{
		{Name: ColName, Description: "Product name", Required: true, Type: "string", Example: "Тормозной суппорт передний"},
		{Name: ColCategory, Description: "Category name - auto-creates if not exists", Required: true, Type: "reference", Example: "Тормозная система"},
		{Name: ColSlug, Description: "URL slug - generated from name when empty", Required: false, Type: "string", Example: ""},
		{Name: ColDescription, Description: "Product description (plain text)", Required: false, Type: "string", Example: "Оригинальный суппорт"},
		{Name: ColShortDescription, Description: "Short description", Required: false, Type: "string", Example: ""},
		{Name: ColOEM, Description: "OEM code", Required: false, Type: "string", Example: "47730-33450"},
		{Name: ColArticle, Description: "Unique article (SKU)", Required: true, Type: "string", Example: "BRK-001"},
		{Name: ColFeatured, Description: "Featured flag: true/1/yes", Required: false, Type: "boolean", Example: "false"},
		{Name: ColInStock, Description: "In stock flag: true/1/yes, defaults to true", Required: false, Type: "boolean", Example: "true"},
		{Name: ColSubcategory, Description: "Subcategory name within the category", Required: false, Type: "reference", Example: "Суппорты"},
		{Name: ColThirdSubcategory, Description: "Third-level subcategory within the subcategory", Required: false, Type: "reference", Example: "Передние суппорты"},
		{Name: ColBrand, Description: "Brand names separated by |", Required: false, Type: "list", Example: "Toyota|Lexus"},
		{Name: ColModel, Description: "Model name within the first brand", Required: false, Type: "reference", Example: "Camry"},
		{Name: ColModification, Description: "Modification name within the model", Required: false, Type: "reference", Example: "2.5 AT"},
		{Name: ColImage, Description: "Primary image filename or alt text", Required: false, Type: "string", Example: "caliper.jpg"},
		{Name: ColImages, Description: "Image filenames or alt texts separated by commas", Required: false, Type: "list", Example: "caliper-2.jpg,caliper-3.jpg"},
		{Name: ColMetaTitle, Description: "SEO title", Required: false, Type: "string", Example: ""},
		{Name: ColMetaDescription, Description: "SEO description", Required: false, Type: "string", Example: ""},
		{Name: ColSpecifications, Description: "Name:Value pairs separated by commas", Required: false, Type: "list", Example: "Вес:5кг,Сторона:передняя"},
		{Name: ColOzon, Description: "Ozon product URL", Required: false, Type: "string", Example: "ozon.ru/product/123"},
		{Name: ColWildberries, Description: "Wildberries product URL", Required: false, Type: "string", Example: "wildberries.ru/catalog/123"},
		{Name: ColOtherMarketplace, Description: "Name:URL[:LogoFilename] items separated by commas", Required: false, Type: "list", Example: "Авито:avito.ru/item/1:avito.png"},
		{Name: ColDistributors, Description: "Name:URL[:Location] items separated by commas", Required: false, Type: "list", Example: "Автодок:autodoc.ru:Москва"},
	}
}

// CatalogImportTemplate returns the template definition for the catalog
func CatalogImportTemplate() ImportTemplate {
	return ImportTemplate{
		Entity:  "products",
		Version: "2.0",
		Columns: CatalogImportColumns(),
	}
}
