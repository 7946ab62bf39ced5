package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"catalog-import-service/internal/catalog"
	"catalog-import-service/internal/middleware"
	"catalog-import-service/internal/models"
	"catalog-import-service/internal/repository"
	"catalog-import-service/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ImportJobService is the part of services.ImportService used over HTTP.
type ImportJobService interface {
	Submit(ctx context.Context, filename string, file io.Reader, opts models.ImportOptions, requestedBy string) (*models.ImportJob, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error)
	ListJobs(ctx context.Context, page, limit int) ([]models.ImportJob, *models.PaginationInfo, error)
}

type CatalogExporter interface {
	WriteCSV(ctx context.Context, w io.Writer, delimiter string) (int, error)
	WriteXLSX(ctx context.Context, w io.Writer) (int, error)
}

type ImportHandler struct {
	imports        ImportJobService
	exporter       CatalogExporter
	delimiter      string
	maxUploadBytes int64
	logger         *logrus.Entry
}

func NewImportHandler(imports ImportJobService, exporter CatalogExporter, delimiter string, maxUploadMB int64, logger *logrus.Logger) *ImportHandler {
	if delimiter == "" {
		delimiter = ";"
	}
	return &ImportHandler{
		imports:        imports,
		exporter:       exporter,
		delimiter:      delimiter,
		maxUploadBytes: maxUploadMB << 20,
		logger:         logger.WithField("component", "import_handler"),
	}
}

// ImportCatalog schedules a catalog batch
// @Summary Import catalog
// @Description Upload a CSV or XLSX catalog file. The batch runs in the background.
// @Tags Catalog
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Catalog file"
// @Param delimiter formData string false "CSV delimiter" default(;)
// @Param key formData string false "Unique key: article or slug" default(article)
// @Param encoding formData string false "utf-8 or windows-1251" default(utf-8)
// @Param validateOnly formData bool false "Only validate rows"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /catalog/import [post]
func (h *ImportHandler) ImportCatalog(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "The uploaded file is too large")
			return
		}
		respondError(c, http.StatusBadRequest, "FILE_REQUIRED", "Please upload a CSV or Excel file")
		return
	}
	defer file.Close()

	opts := models.ImportOptions{
		Delimiter: c.PostForm("delimiter"),
		Key:       models.UniqueKey(c.PostForm("key")),
		Encoding:  c.PostForm("encoding"),
		Sheet:     c.PostForm("sheet"),
	}
	if raw := c.PostForm("validateOnly"); raw != "" {
		validateOnly, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_OPTIONS", "validateOnly must be a boolean")
			return
		}
		opts.ValidateOnly = validateOnly
	}

	job, err := h.imports.Submit(c.Request.Context(), header.Filename, file, opts, c.GetString(middleware.ActorKey))
	switch {
	case err == nil:
	case errors.Is(err, services.ErrInvalidFormat):
		respondError(c, http.StatusBadRequest, "INVALID_FORMAT", "Only CSV and XLSX files are supported")
		return
	case errors.Is(err, services.ErrInvalidOptions):
		respondError(c, http.StatusBadRequest, "INVALID_OPTIONS", err.Error())
		return
	case errors.Is(err, services.ErrQueueFull), errors.Is(err, services.ErrServiceStopped):
		respondError(c, http.StatusServiceUnavailable, "IMPORT_UNAVAILABLE", err.Error())
		return
	default:
		h.logger.WithError(err).WithField("filename", header.Filename).Error("Failed to schedule import")
		respondError(c, http.StatusInternalServerError, "IMPORT_FAILED", "Failed to schedule import")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Import started",
		"jobId":   job.ID,
		"status":  job.Status,
	})
}

// ListImportJobs returns recent batches
// @Summary List import jobs
// @Tags Catalog
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Success 200 {object} models.ImportJobListResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /catalog/import/jobs [get]
func (h *ImportHandler) ListImportJobs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	jobs, pagination, err := h.imports.ListJobs(c.Request.Context(), page, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list import jobs")
		respondError(c, http.StatusInternalServerError, "FETCH_FAILED", "Failed to fetch import jobs")
		return
	}

	c.JSON(http.StatusOK, models.ImportJobListResponse{
		Success:    true,
		Data:       jobs,
		Pagination: pagination,
	})
}

// GetImportJob returns one batch with its row errors
// @Summary Get import job
// @Tags Catalog
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} models.ImportJobResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /catalog/import/jobs/{id} [get]
func (h *ImportHandler) GetImportJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid job ID")
		return
	}

	job, err := h.imports.GetJob(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "Import job not found")
			return
		}
		h.logger.WithError(err).WithField("jobID", id).Error("Failed to fetch import job")
		respondError(c, http.StatusInternalServerError, "FETCH_FAILED", "Failed to fetch import job")
		return
	}

	c.JSON(http.StatusOK, models.ImportJobResponse{Success: true, Data: job})
}

// GetImportTemplate returns the import template definition or file
// @Summary Import template
// @Tags Catalog
// @Param format query string false "json, csv or xlsx" default(json)
// @Success 200 {file} file
// @Router /catalog/import/template [get]
func (h *ImportHandler) GetImportTemplate(c *gin.Context) {
	format := c.DefaultQuery("format", "json")

	var buf bytes.Buffer
	switch format {
	case "csv":
		if err := catalog.WriteTemplateCSV(&buf, h.delimiter); err != nil {
			respondError(c, http.StatusInternalServerError, "TEMPLATE_FAILED", err.Error())
			return
		}
		h.attachment(c, "catalog_import_template.csv", "text/csv; charset=utf-8", buf.Bytes())
	case "xlsx":
		if err := catalog.WriteTemplateXLSX(&buf); err != nil {
			respondError(c, http.StatusInternalServerError, "TEMPLATE_FAILED", err.Error())
			return
		}
		h.attachment(c, "catalog_import_template.xlsx", xlsxContentType, buf.Bytes())
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"template": models.CatalogImportTemplate(),
		})
	}
}

// ExportCatalog downloads the whole catalog in the import column layout
// @Summary Export catalog
// @Tags Catalog
// @Param format query string false "csv or xlsx" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /catalog/export [get]
func (h *ImportHandler) ExportCatalog(c *gin.Context) {
	format := models.ImportFormat(c.DefaultQuery("format", string(models.ImportFormatCSV)))

	var (
		buf         bytes.Buffer
		count       int
		err         error
		contentType string
	)
	switch format {
	case models.ImportFormatCSV:
		count, err = h.exporter.WriteCSV(c.Request.Context(), &buf, h.delimiter)
		contentType = "text/csv; charset=utf-8"
	case models.ImportFormatXLSX:
		count, err = h.exporter.WriteXLSX(c.Request.Context(), &buf)
		contentType = xlsxContentType
	default:
		respondError(c, http.StatusBadRequest, "INVALID_FORMAT", "Only csv and xlsx exports are supported")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Catalog export failed")
		respondError(c, http.StatusInternalServerError, "EXPORT_FAILED", "Failed to export catalog")
		return
	}

	h.logger.WithFields(logrus.Fields{"format": format, "products": count}).Info("Catalog exported")
	h.attachment(c, catalog.ExportFilename(format, time.Now()), contentType, buf.Bytes())
}

func (h *ImportHandler) attachment(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, contentType, data)
}
