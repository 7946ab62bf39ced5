package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"catalog-import-service/internal/metrics"
	"catalog-import-service/internal/models"
	"catalog-import-service/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrImportRunning  = errors.New("another import is running")
	ErrQueueFull      = errors.New("import queue is full")
	ErrInvalidOptions = errors.New("invalid import options")
	ErrInvalidFormat  = errors.New("unsupported file format")
	ErrServiceStopped = errors.New("import service stopped")
)

const importLockKey = "catalog:import:lock"

// ImportRunner runs one batch; satisfied by *catalog.Importer.
type ImportRunner interface {
	ImportFile(ctx context.Context, path string, opts models.ImportOptions) (*models.ImportResult, error)
}

type EventPublisher interface {
	PublishImportCompleted(ctx context.Context, job *models.ImportJob) error
}

type ReportSender interface {
	SendImportReport(ctx context.Context, job *models.ImportJob) error
}

type ImportServiceConfig struct {
	TmpDir       string
	Defaults     models.ImportOptions
	LockTTL      time.Duration
	LockWait     time.Duration // how long a job waits for another replica's batch
	LockPoll     time.Duration
	QueueSize    int
	DefaultLimit int
	MaxLimit     int
}

func (c ImportServiceConfig) withDefaults() ImportServiceConfig {
	if c.TmpDir == "" {
		c.TmpDir = os.TempDir()
	}
	if c.LockTTL <= 0 {
		c.LockTTL = time.Hour
	}
	if c.LockWait <= 0 {
		c.LockWait = c.LockTTL
	}
	if c.LockPoll <= 0 {
		c.LockPoll = 5 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 20
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = 100
	}
	c.Defaults = c.Defaults.WithDefaults()
	return c
}

type importTask struct {
	jobID uuid.UUID
	path  string
	opts  models.ImportOptions
}

// ImportService accepts uploads, records them as jobs and runs them one at a
// time on a background worker.
type ImportService struct {
	repo      repository.ImportJobRepositoryInterface
	runner    ImportRunner
	locker    Locker
	publisher EventPublisher
	reporter  ReportSender
	validate  *validator.Validate
	cfg       ImportServiceConfig
	logger    *logrus.Entry

	queue   chan importTask
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func NewImportService(repo repository.ImportJobRepositoryInterface, runner ImportRunner, cfg ImportServiceConfig, logger *logrus.Logger) *ImportService {
	cfg = cfg.withDefaults()
	return &ImportService{
		repo:     repo,
		runner:   runner,
		locker:   NewLocalLocker(),
		validate: validator.New(),
		cfg:      cfg,
		logger:   logger.WithField("component", "import_service"),
		queue:    make(chan importTask, cfg.QueueSize),
	}
}

// WithLocker replaces the in-process lock, typically with a RedisLocker.
func (s *ImportService) WithLocker(locker Locker) *ImportService {
	if locker != nil {
		s.locker = locker
	}
	return s
}

func (s *ImportService) WithPublisher(publisher EventPublisher) *ImportService {
	s.publisher = publisher
	return s
}

func (s *ImportService) WithReporter(reporter ReportSender) *ImportService {
	s.reporter = reporter
	return s
}

// Start launches the worker. Batches run under ctx, not the request context.
func (s *ImportService) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for task := range s.queue {
			s.run(ctx, task)
		}
	}()
}

// Stop refuses new jobs and waits for queued ones to finish.
func (s *ImportService) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// ResolveOptions fills unset options from the service defaults and validates them.
func (s *ImportService) ResolveOptions(opts models.ImportOptions) (models.ImportOptions, error) {
	if opts.Delimiter == "" {
		opts.Delimiter = s.cfg.Defaults.Delimiter
	}
	if opts.Key == "" {
		opts.Key = s.cfg.Defaults.Key
	}
	if opts.Encoding == "" {
		opts.Encoding = s.cfg.Defaults.Encoding
	}
	opts.Encoding = strings.ToLower(opts.Encoding)
	if err := s.validate.Struct(opts); err != nil {
		return opts, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return opts, nil
}

// Submit stores the upload in the temp dir and queues a PENDING job.
func (s *ImportService) Submit(ctx context.Context, filename string, file io.Reader, opts models.ImportOptions, requestedBy string) (*models.ImportJob, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".csv" && ext != ".xlsx" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, ext)
	}

	opts, err := s.ResolveOptions(opts)
	if err != nil {
		return nil, err
	}

	path, err := s.saveUpload(file, ext)
	if err != nil {
		return nil, err
	}

	optionsJSON, _ := json.Marshal(opts)
	job := &models.ImportJob{
		ID:       uuid.New(),
		Filename: filepath.Base(filename),
		Status:   models.ImportStatusPending,
		Options:  optionsJSON,
	}
	if requestedBy != "" {
		job.RequestedBy = &requestedBy
	}
	if err := s.repo.Create(ctx, job); err != nil {
		s.removeUpload(path)
		return nil, fmt.Errorf("failed to create import job: %w", err)
	}

	if err := s.enqueue(importTask{jobID: job.ID, path: path, opts: opts}); err != nil {
		s.removeUpload(path)
		s.finish(ctx, job, nil, err, time.Now())
		return job, err
	}

	s.logger.WithFields(logrus.Fields{
		"jobID":    job.ID,
		"filename": job.Filename,
		"key":      opts.Key,
	}).Info("Import job queued")
	return job, nil
}

func (s *ImportService) enqueue(task importTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrServiceStopped
	}
	select {
	case s.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *ImportService) GetJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	return s.repo.GetByID(ctx, id)
}

// ListJobs clamps paging to the configured limits.
func (s *ImportService) ListJobs(ctx context.Context, page, limit int) ([]models.ImportJob, *models.PaginationInfo, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	jobs, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, nil, err
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return jobs, &models.PaginationInfo{
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}, nil
}

func (s *ImportService) run(ctx context.Context, task importTask) {
	defer s.removeUpload(task.path)
	start := time.Now()
	log := s.logger.WithField("jobID", task.jobID)

	job, err := s.repo.GetByID(context.WithoutCancel(ctx), task.jobID)
	if err != nil {
		log.WithError(err).Error("Failed to load import job")
		return
	}
	if err := ctx.Err(); err != nil {
		s.finish(ctx, job, nil, err, start)
		return
	}

	release, err := s.waitForLock(ctx)
	if err != nil {
		s.finish(ctx, job, nil, err, start)
		return
	}
	defer release()

	job.Status = models.ImportStatusProcessing
	job.StartedAt = &start
	if err := s.repo.Update(ctx, job); err != nil {
		log.WithError(err).Warn("Failed to mark import job as processing")
	}

	result, err := s.runner.ImportFile(ctx, task.path, task.opts)
	s.finish(ctx, job, result, err, start)
}

func (s *ImportService) waitForLock(ctx context.Context) (func(), error) {
	deadline := time.Now().Add(s.cfg.LockWait)
	for {
		release, err := s.locker.Acquire(ctx, importLockKey, s.cfg.LockTTL)
		if err != nil {
			return nil, err
		}
		if release != nil {
			return release, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrImportRunning
		}

		s.logger.Debug("Import lock held elsewhere, waiting")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.LockPoll):
		}
	}
}

// finish records the outcome and fans it out to metrics, events and e-mail.
func (s *ImportService) finish(ctx context.Context, job *models.ImportJob, result *models.ImportResult, runErr error, start time.Time) {
	completed := time.Now()
	job.CompletedAt = &completed
	job.Status = models.ImportStatusCompleted

	if err := job.ApplyResult(result); err != nil {
		s.logger.WithError(err).Warn("Failed to encode row errors")
	}
	if runErr != nil {
		msg := runErr.Error()
		job.Status = models.ImportStatusFailed
		job.ErrorMessage = &msg
	}

	// the worker context may already be cancelled on shutdown
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.repo.Update(saveCtx, job); err != nil {
		s.logger.WithError(err).WithField("jobID", job.ID).Error("Failed to save import job")
	}

	metrics.RecordBatch(string(job.Status), completed.Sub(start))

	s.logger.WithFields(logrus.Fields{
		"jobID":   job.ID,
		"status":  job.Status,
		"total":   job.TotalRows,
		"success": job.SuccessCount,
		"failed":  job.FailedCount,
	}).Info("Import job finished")

	if s.publisher != nil {
		if err := s.publisher.PublishImportCompleted(saveCtx, job); err != nil {
			s.logger.WithError(err).Warn("Failed to publish import event")
		}
	}
	if s.reporter != nil {
		if err := s.reporter.SendImportReport(saveCtx, job); err != nil {
			s.logger.WithError(err).Warn("Failed to send import report")
		}
	}
}

func (s *ImportService) saveUpload(file io.Reader, ext string) (string, error) {
	if err := os.MkdirAll(s.cfg.TmpDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	path := filepath.Join(s.cfg.TmpDir, uuid.NewString()+ext)

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return path, nil
}

func (s *ImportService) removeUpload(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.WithError(err).WithField("path", path).Warn("Failed to remove temp file")
	}
}
