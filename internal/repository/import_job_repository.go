package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"catalog-import-service/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Finished jobs never change, running ones are re-cached after every update.
const ImportJobCacheTTL = 5 * time.Minute

var ErrJobNotFound = errors.New("import job not found")

type ImportJobRepositoryInterface interface {
	Create(ctx context.Context, job *models.ImportJob) error
	Update(ctx context.Context, job *models.ImportJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ImportJob, error)
	List(ctx context.Context, page, limit int) ([]models.ImportJob, int64, error)
}

type ImportJobRepository struct {
	db    *gorm.DB
	redis redis.Cmdable
}

// NewImportJobRepository creates the repository; client may be nil.
func NewImportJobRepository(db *gorm.DB, client *redis.Client) *ImportJobRepository {
	r := &ImportJobRepository{db: db}
	if client != nil {
		r.redis = client
	}
	return r
}

func importJobCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("catalog:import_job:%s", id.String())
}

func (r *ImportJobRepository) Create(ctx context.Context, job *models.ImportJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.ImportStatusPending
	}
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *ImportJobRepository) Update(ctx context.Context, job *models.ImportJob) error {
	job.UpdatedAt = time.Now()
	if err := r.db.WithContext(ctx).Save(job).Error; err != nil {
		return err
	}
	r.cache(ctx, job)
	return nil
}

// GetByID reads through the redis cache when one is configured.
func (r *ImportJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	if r.redis != nil {
		val, err := r.redis.Get(ctx, importJobCacheKey(id)).Result()
		if err == nil {
			var job models.ImportJob
			if err := json.Unmarshal([]byte(val), &job); err == nil {
				return &job, nil
			}
		}
	}

	var job models.ImportJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	r.cache(ctx, &job)
	return &job, nil
}

// List returns jobs newest first.
func (r *ImportJobRepository) List(ctx context.Context, page, limit int) ([]models.ImportJob, int64, error) {
	var (
		jobs  []models.ImportJob
		total int64
	)
	query := r.db.WithContext(ctx).Model(&models.ImportJob{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&jobs).Error; err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (r *ImportJobRepository) cache(ctx context.Context, job *models.ImportJob) {
	if r.redis == nil {
		return
	}
	data, err := json.Marshal(job)
	if err == nil {
		r.redis.Set(ctx, importJobCacheKey(job.ID), data, ImportJobCacheTTL)
	}
}

var _ ImportJobRepositoryInterface = (*ImportJobRepository)(nil)
