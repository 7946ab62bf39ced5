package services

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"catalog-import-service/internal/catalog"
	"catalog-import-service/internal/logger"
	"catalog-import-service/internal/models"
	"catalog-import-service/internal/repository"
	"catalog-import-service/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// MockImportJobRepository is a mock implementation of ImportJobRepositoryInterface
type MockImportJobRepository struct {
	mock.Mock
}

var _ repository.ImportJobRepositoryInterface = (*MockImportJobRepository)(nil)

func (m *MockImportJobRepository) Create(ctx context.Context, job *models.ImportJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockImportJobRepository) Update(ctx context.Context, job *models.ImportJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockImportJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	args := m.Called(ctx, id)
	if fn, ok := args.Get(0).(func(context.Context, uuid.UUID) *models.ImportJob); ok {
		return fn(ctx, id), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportJob), args.Error(1)
}

func (m *MockImportJobRepository) List(ctx context.Context, page, limit int) ([]models.ImportJob, int64, error) {
	args := m.Called(ctx, page, limit)
	return args.Get(0).([]models.ImportJob), args.Get(1).(int64), args.Error(2)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishImportCompleted(ctx context.Context, job *models.ImportJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

type runnerFunc func(ctx context.Context, path string, opts models.ImportOptions) (*models.ImportResult, error)

func (f runnerFunc) ImportFile(ctx context.Context, path string, opts models.ImportOptions) (*models.ImportResult, error) {
	return f(ctx, path, opts)
}

type busyLocker struct{}

func (busyLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return nil, nil
}

type ImportServiceSuite struct {
	suite.Suite
	repo  *MockImportJobRepository
	store *store.MemoryStore
	tmp   string

	mu  sync.Mutex
	job *models.ImportJob
}

func TestImportServiceSuite(t *testing.T) {
	suite.Run(t, new(ImportServiceSuite))
}

func (s *ImportServiceSuite) SetupTest() {
	s.repo = new(MockImportJobRepository)
	s.store = store.NewMemoryStore()
	s.tmp = s.T().TempDir()
	s.job = nil

	s.repo.On("Create", mock.Anything, mock.AnythingOfType("*models.ImportJob")).Run(func(args mock.Arguments) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.job = args.Get(1).(*models.ImportJob)
	}).Return(nil).Maybe()
	s.repo.On("GetByID", mock.Anything, mock.AnythingOfType("uuid.UUID")).Return(func(ctx context.Context, id uuid.UUID) *models.ImportJob {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.job
	}, nil).Maybe()
	s.repo.On("Update", mock.Anything, mock.AnythingOfType("*models.ImportJob")).Return(nil).Maybe()
}

func (s *ImportServiceSuite) newService(runner ImportRunner) *ImportService {
	return NewImportService(s.repo, runner, ImportServiceConfig{
		TmpDir:   s.tmp,
		LockWait: 50 * time.Millisecond,
		LockPoll: 10 * time.Millisecond,
	}, logger.Discard())
}

func (s *ImportServiceSuite) tmpFiles() []os.DirEntry {
	entries, err := os.ReadDir(s.tmp)
	s.Require().NoError(err)
	return entries
}

func (s *ImportServiceSuite) TestSubmit_RunsBatchAndCleansUp() {
	publisher := new(MockPublisher)
	publisher.On("PublishImportCompleted", mock.Anything, mock.AnythingOfType("*models.ImportJob")).Return(nil).Once()

	svc := s.newService(catalog.NewImporter(s.store, logger.Discard())).WithPublisher(publisher)
	svc.Start(context.Background())

	csv := "name;category;article\nPad;Brakes;A-1\nDisc;Brakes;A-2\n;Brakes;A-3\n"
	job, err := svc.Submit(context.Background(), "catalog.csv", strings.NewReader(csv), models.ImportOptions{}, "admin")
	s.Require().NoError(err)
	s.Equal(models.ImportStatusPending, job.Status)
	s.Equal("catalog.csv", job.Filename)

	svc.Stop()

	s.Equal(models.ImportStatusCompleted, job.Status)
	s.Equal(3, job.TotalRows)
	s.Equal(2, job.SuccessCount)
	s.Equal(2, job.CreatedCount)
	s.Equal(1, job.FailedCount)
	s.Require().Len(job.RowErrors(), 1)
	s.Equal(4, job.RowErrors()[0].Row)
	s.NotNil(job.StartedAt)
	s.NotNil(job.CompletedAt)
	s.Equal(2, s.store.Count(models.CollectionProducts))
	s.Empty(s.tmpFiles())
	publisher.AssertExpectations(s.T())
}

func (s *ImportServiceSuite) TestSubmit_RejectsUnknownExtension() {
	svc := s.newService(catalog.NewImporter(s.store, logger.Discard()))

	_, err := svc.Submit(context.Background(), "catalog.pdf", strings.NewReader("x"), models.ImportOptions{}, "")
	s.ErrorIs(err, ErrInvalidFormat)
	s.repo.AssertNotCalled(s.T(), "Create", mock.Anything, mock.Anything)
	s.Empty(s.tmpFiles())
}

func (s *ImportServiceSuite) TestSubmit_RejectsInvalidOptions() {
	svc := s.newService(catalog.NewImporter(s.store, logger.Discard()))

	_, err := svc.Submit(context.Background(), "catalog.csv", strings.NewReader("x"), models.ImportOptions{Key: "sku"}, "")
	s.ErrorIs(err, ErrInvalidOptions)
	s.repo.AssertNotCalled(s.T(), "Create", mock.Anything, mock.Anything)
}

func (s *ImportServiceSuite) TestRunnerError_MarksJobFailed() {
	svc := s.newService(runnerFunc(func(ctx context.Context, path string, opts models.ImportOptions) (*models.ImportResult, error) {
		return &models.ImportResult{}, catalog.ErrEmptyFile
	}))
	svc.Start(context.Background())

	job, err := svc.Submit(context.Background(), "catalog.xlsx", strings.NewReader("not a workbook"), models.ImportOptions{}, "")
	s.Require().NoError(err)
	svc.Stop()

	s.Equal(models.ImportStatusFailed, job.Status)
	s.Require().NotNil(job.ErrorMessage)
	s.Equal(catalog.ErrEmptyFile.Error(), *job.ErrorMessage)
	s.Empty(s.tmpFiles())
}

func (s *ImportServiceSuite) TestLockHeldElsewhere() {
	called := false
	svc := s.newService(runnerFunc(func(ctx context.Context, path string, opts models.ImportOptions) (*models.ImportResult, error) {
		called = true
		return &models.ImportResult{}, nil
	})).WithLocker(busyLocker{})
	svc.Start(context.Background())

	job, err := svc.Submit(context.Background(), "catalog.csv", strings.NewReader("name\nx\n"), models.ImportOptions{}, "")
	s.Require().NoError(err)
	svc.Stop()

	s.False(called)
	s.Equal(models.ImportStatusFailed, job.Status)
	s.Equal(ErrImportRunning.Error(), *job.ErrorMessage)
}

func (s *ImportServiceSuite) TestSubmit_AfterStop() {
	svc := s.newService(catalog.NewImporter(s.store, logger.Discard()))
	svc.Start(context.Background())
	svc.Stop()

	job, err := svc.Submit(context.Background(), "catalog.csv", strings.NewReader("name\nx\n"), models.ImportOptions{}, "")
	s.ErrorIs(err, ErrServiceStopped)
	s.Equal(models.ImportStatusFailed, job.Status)
	s.Empty(s.tmpFiles())
}

func (s *ImportServiceSuite) TestCancelledWorker_FailsQueuedJob() {
	called := false
	svc := s.newService(runnerFunc(func(ctx context.Context, path string, opts models.ImportOptions) (*models.ImportResult, error) {
		called = true
		return &models.ImportResult{}, nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Start(ctx)

	job, err := svc.Submit(context.Background(), "catalog.csv", strings.NewReader("name\nx\n"), models.ImportOptions{}, "")
	s.Require().NoError(err)
	svc.Stop()

	s.False(called)
	s.Equal(models.ImportStatusFailed, job.Status)
	s.Equal(context.Canceled.Error(), *job.ErrorMessage)
	s.Empty(s.tmpFiles())
}

func TestResolveOptions_AppliesDefaults(t *testing.T) {
	svc := NewImportService(new(MockImportJobRepository), nil, ImportServiceConfig{
		Defaults: models.ImportOptions{Delimiter: ",", Key: models.UniqueKeySlug},
	}, logger.Discard())

	opts, err := svc.ResolveOptions(models.ImportOptions{Encoding: "Windows-1251"})
	require.NoError(t, err)
	assert.Equal(t, ",", opts.Delimiter)
	assert.Equal(t, models.UniqueKeySlug, opts.Key)
	assert.Equal(t, models.EncodingWindows1251, opts.Encoding)

	_, err = svc.ResolveOptions(models.ImportOptions{Delimiter: ";;"})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestListJobs_ClampsPaging(t *testing.T) {
	repo := new(MockImportJobRepository)
	repo.On("List", mock.Anything, 1, 100).Return([]models.ImportJob{{Filename: "a.csv"}}, int64(250), nil)

	svc := NewImportService(repo, nil, ImportServiceConfig{MaxLimit: 100}, logger.Discard())
	jobs, pagination, err := svc.ListJobs(context.Background(), 0, 500)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
	assert.Equal(t, 3, pagination.TotalPages)
	assert.True(t, pagination.HasNext)
	assert.False(t, pagination.HasPrevious)
	repo.AssertExpectations(t)
}

func TestListJobs_RepositoryError(t *testing.T) {
	repo := new(MockImportJobRepository)
	repo.On("List", mock.Anything, 2, 20).Return([]models.ImportJob(nil), int64(0), errors.New("db down"))

	svc := NewImportService(repo, nil, ImportServiceConfig{}, logger.Discard())
	_, _, err := svc.ListJobs(context.Background(), 2, 0)
	assert.EqualError(t, err, "db down")
}

func TestLocalLocker(t *testing.T) {
	locker := NewLocalLocker()

	release, err := locker.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, release)

	second, err := locker.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, second)

	release()
	third, err := locker.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, third)
}
