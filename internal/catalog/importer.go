package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/store"

	"github.com/sirupsen/logrus"
)

// Importer drives a batch: rows are validated, parsed, resolved and
// reconciled one after another. A failing row is recorded and skipped.
type Importer struct {
	store    store.DocumentStore
	refs     *ReferenceResolver
	media    *MediaResolver
	logger   *logrus.Entry
	rawLog   *logrus.Logger
	observer RowObserver
}

// RowObserver is notified after every row; status is "created", "updated",
// "failed" or "valid" for validate-only runs.
type RowObserver func(status string)

func NewImporter(s store.DocumentStore, logger *logrus.Logger) *Importer {
	return &Importer{
		store:  s,
		refs:   NewReferenceResolver(s, logger),
		media:  NewMediaResolver(s, logger),
		logger: logger.WithField("component", "catalog_importer"),
		rawLog: logger,
	}
}

// WithObserver registers a per-row callback.
func (i *Importer) WithObserver(observer RowObserver) *Importer {
	i.observer = observer
	return i
}

// ImportFile reads the file and imports its rows. An unreadable file aborts
// the batch with an error and a result with zero successes.
func (i *Importer) ImportFile(ctx context.Context, path string, opts models.ImportOptions) (*models.ImportResult, error) {
	opts = opts.WithDefaults()

	rows, err := ReadFile(path, opts)
	if err != nil {
		i.logger.WithError(err).WithField("path", path).Error("Import file could not be read")
		return &models.ImportResult{Success: false}, err
	}
	return i.ImportRows(ctx, rows, opts), nil
}

// ImportRows processes rows sequentially.
func (i *Importer) ImportRows(ctx context.Context, rows []Row, opts models.ImportOptions) *models.ImportResult {
	opts = opts.WithDefaults()
	start := time.Now()

	result := &models.ImportResult{TotalRows: len(rows)}
	reconciler := NewRowReconciler(i.store, opts.Key, i.rawLog)

	i.logger.WithFields(logrus.Fields{
		"rows":         len(rows),
		"key":          opts.Key,
		"validateOnly": opts.ValidateOnly,
	}).Info("Import batch started")

	for idx, row := range rows {
		if err := ctx.Err(); err != nil {
			for _, rest := range rows[idx:] {
				result.FailedCount++
				result.Errors = append(result.Errors, models.ImportRowError{
					Row: rest.Number, Code: CodeCancelled, Message: "import cancelled before row was processed",
				})
			}
			i.logger.WithError(err).Warn("Import batch cancelled")
			break
		}

		outcome, warnings, rowErr := i.processRow(ctx, row, opts, reconciler)
		result.Warnings = append(result.Warnings, warnings...)
		for _, w := range warnings {
			i.logger.WithFields(logrus.Fields{"row": w.Row, "column": w.Column, "code": w.Code}).Warn(w.Message)
		}

		if rowErr != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, *rowErr)
			i.logger.WithFields(logrus.Fields{
				"row":    rowErr.Row,
				"column": rowErr.Column,
				"code":   rowErr.Code,
				"name":   row.Get(models.ColName),
				"key":    row.Get(string(opts.Key)),
			}).Error(rowErr.Message)
			i.notify("failed")
			continue
		}

		result.SuccessCount++
		switch {
		case opts.ValidateOnly:
			i.notify("valid")
		case outcome.Created:
			result.CreatedCount++
			result.CreatedIDs = append(result.CreatedIDs, outcome.ID)
			i.notify("created")
		default:
			result.UpdatedCount++
			result.UpdatedIDs = append(result.UpdatedIDs, outcome.ID)
			i.notify("updated")
		}
	}

	result.Success = result.FailedCount == 0
	result.ProcessingMs = time.Since(start).Milliseconds()

	i.logger.WithFields(logrus.Fields{
		"total":   result.TotalRows,
		"success": result.SuccessCount,
		"failed":  result.FailedCount,
		"created": result.CreatedCount,
		"updated": result.UpdatedCount,
		"ms":      result.ProcessingMs,
	}).Info("Import batch finished")

	return result
}

func (i *Importer) notify(status string) {
	if i.observer != nil {
		i.observer(status)
	}
}

// processRow runs one row through validate, parse, resolve and reconcile.
// With a transactional store every write of the row commits or rolls back
// together; otherwise the references created before a failure are listed on
// the returned error.
func (i *Importer) processRow(ctx context.Context, row Row, opts models.ImportOptions, reconciler *RowReconciler) (Outcome, []models.ImportRowError, *models.ImportRowError) {
	if errs := ValidateRow(row, opts.Key); len(errs) > 0 {
		first := errs[0]
		if len(errs) > 1 {
			first.Message = fmt.Sprintf("%s (and %d more)", first.Message, len(errs)-1)
		}
		return Outcome{}, nil, &first
	}

	parsed := ParseRow(row)
	if opts.ValidateOnly {
		return Outcome{}, parsed.Warnings, nil
	}

	var (
		outcome  Outcome
		warnings []models.ImportRowError
		created  []string
	)
	transactional, err := store.RunInTransaction(ctx, i.store, func(ctx context.Context) error {
		// a retried transaction starts from scratch
		warnings = append([]models.ImportRowError(nil), parsed.Warnings...)
		created = created[:0]

		refs, err := i.resolve(ctx, &parsed, &warnings, &created)
		if err != nil {
			return err
		}

		payload, err := BuildPayload(parsed, refs)
		if err != nil {
			return err
		}

		outcome, err = reconciler.Reconcile(ctx, payload)
		if err != nil {
			return err
		}

		if refs.ThirdSubcategory != "" && len(refs.Brands) > 0 {
			err := i.savepoint(ctx, func(ctx context.Context) error {
				return i.refs.LinkBrandsToThirdSubcategory(ctx, refs.Brands, refs.ThirdSubcategory)
			})
			if err != nil {
				warnings = append(warnings, models.ImportRowError{
					Row: row.Number, Column: models.ColBrand, Code: CodeBackfillFailed, Message: err.Error(),
				})
			}
		}
		return nil
	})
	if err != nil {
		rowErr := &models.ImportRowError{Row: row.Number, Code: CodeWriteFailed, Message: err.Error()}
		switch {
		case errors.Is(err, ErrCategoryUnresolved):
			rowErr.Code = CodeCategoryUnresolved
			rowErr.Column = models.ColCategory
		case errors.Is(err, ErrRequiredField):
			rowErr.Code = CodeRequiredField
		}
		if !transactional && len(created) > 0 {
			rowErr.CreatedRefs = append([]string(nil), created...)
		}
		return Outcome{}, warnings, rowErr
	}
	return outcome, warnings, nil
}

// savepoint isolates a lookup whose failure only degrades the row. On SQL
// backends a failed statement otherwise aborts the whole row transaction.
func (i *Importer) savepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := store.RunInTransaction(ctx, i.store, fn)
	return err
}

// resolve finds or creates every reference of the row. Only the category is
// mandatory; other failures become warnings.
func (i *Importer) resolve(ctx context.Context, row *ParsedRow, warnings *[]models.ImportRowError, created *[]string) (ResolvedRefs, error) {
	var refs ResolvedRefs

	warn := func(column, code, message string) {
		*warnings = append(*warnings, models.ImportRowError{Row: row.Number, Column: column, Code: code, Message: message})
	}
	track := func(kind RefKind, res Resolution) string {
		if res.Created {
			*created = append(*created, res.Ref(kind))
		}
		return res.ID
	}
	optional := func(kind RefKind, column, name, parentID string) string {
		var res Resolution
		err := i.savepoint(ctx, func(ctx context.Context) error {
			var err error
			res, err = i.refs.Resolve(ctx, kind, name, parentID)
			return err
		})
		if err != nil {
			warn(column, CodeReferenceFailed, err.Error())
			return ""
		}
		return track(kind, res)
	}

	category, err := i.refs.Resolve(ctx, RefCategory, row.Category, "")
	if err != nil {
		return refs, fmt.Errorf("%w: %v", ErrCategoryUnresolved, err)
	}
	if category.ID == "" {
		return refs, fmt.Errorf("%w: empty name", ErrCategoryUnresolved)
	}
	refs.Category = track(RefCategory, category)

	refs.Subcategory = optional(RefSubcategory, models.ColSubcategory, row.Subcategory, refs.Category)

	if row.ThirdSubcategory != "" {
		if refs.Subcategory == "" {
			warn(models.ColThirdSubcategory, CodeParentMissing, "third-level subcategory needs a subcategory")
		} else {
			refs.ThirdSubcategory = optional(RefThirdSubcategory, models.ColThirdSubcategory, row.ThirdSubcategory, refs.Subcategory)
		}
	}

	for _, name := range row.Brands {
		if id := optional(RefBrand, models.ColBrand, name, ""); id != "" {
			refs.Brands = append(refs.Brands, id)
		}
	}

	var brandID string
	if len(refs.Brands) > 0 {
		brandID = refs.Brands[0]
	}
	refs.Model = optional(RefModel, models.ColModel, row.Model, brandID)

	refs.Modification = optional(RefModification, models.ColModification, row.Modification, refs.Model)

	var (
		images     []models.ProductImage
		unresolved []string
	)
	err = i.savepoint(ctx, func(ctx context.Context) error {
		var err error
		images, unresolved, err = i.media.ResolveImages(ctx, row.Images)
		return err
	})
	if err != nil {
		warn(models.ColImages, CodeMediaNotFound, err.Error())
	}
	refs.Images = images
	for _, identifier := range unresolved {
		warn(models.ColImages, CodeMediaNotFound, fmt.Sprintf("media %q not found", identifier))
	}

	for _, link := range row.OtherLinks {
		other := models.MarketplaceLink{Name: link.Name, URL: link.URL}
		if link.Extra != "" {
			var (
				media models.Media
				ok    bool
			)
			err := i.savepoint(ctx, func(ctx context.Context) error {
				var err error
				media, ok, err = i.media.Resolve(ctx, link.Extra)
				return err
			})
			switch {
			case err != nil:
				warn(models.ColOtherMarketplace, CodeMediaNotFound, err.Error())
			case !ok:
				warn(models.ColOtherMarketplace, CodeMediaNotFound, fmt.Sprintf("logo %q not found", link.Extra))
			default:
				other.Logo = media.ID
			}
		}
		refs.OtherLinks = append(refs.OtherLinks, other)
	}

	return refs, nil
}
