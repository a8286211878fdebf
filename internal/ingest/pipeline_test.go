package ingest

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"catalog-ingestion-service/internal/models"
	"catalog-ingestion-service/internal/validation"
)

type mockCatalogStore struct {
	mock.Mock
}

func (m *mockCatalogStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockCatalogStore) CategoryExists(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *mockCatalogStore) UpsertCategory(ctx context.Context, draft models.CategoryDraft) (*CategoryUpsert, error) {
	args := m.Called(ctx, draft)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CategoryUpsert), args.Error(1)
}

func (m *mockCatalogStore) UpsertProduct(ctx context.Context, categoryID uuid.UUID, draft models.ProductDraft) (*ProductUpsert, error) {
	args := m.Called(ctx, categoryID, draft)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ProductUpsert), args.Error(1)
}

type mockJobStore struct {
	mock.Mock
}

func (m *mockJobStore) Claim(ctx context.Context, id uuid.UUID) (*models.BulkUpload, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BulkUpload), args.Error(1)
}

func (m *mockJobStore) Save(ctx context.Context, job *models.BulkUpload) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func newTestPipeline(store CatalogStore, jobs JobStore) *Pipeline {
	v := validation.New(validation.DefaultPolicy())
	return NewPipeline(
		NewExtractor(v, nil),
		NewInterpreter(v, NewMetadataParser(v, nil), NewImageProcessor(v, nil), nil),
		store,
		jobs,
		nil,
	)
}

// fakeCatalogStore keeps upserted entities in memory so repeated runs see
// the state the previous run left behind.
type fakeCatalogStore struct {
	categories map[string]uuid.UUID
	products   map[string]uuid.UUID
}

func newFakeCatalogStore() *fakeCatalogStore {
	return &fakeCatalogStore{
		categories: make(map[string]uuid.UUID),
		products:   make(map[string]uuid.UUID),
	}
}

func (f *fakeCatalogStore) Ping(ctx context.Context) error {
	return nil
}

func (f *fakeCatalogStore) CategoryExists(ctx context.Context, name string) (bool, error) {
	_, ok := f.categories[name]
	return ok, nil
}

func (f *fakeCatalogStore) UpsertCategory(ctx context.Context, draft models.CategoryDraft) (*CategoryUpsert, error) {
	id, existed := f.categories[draft.Name]
	if !existed {
		id = uuid.New()
		f.categories[draft.Name] = id
	}
	stored := 0
	if draft.PrimaryImage != nil {
		stored++
	}
	if draft.SecondaryImage != nil {
		stored++
	}
	return &CategoryUpsert{ID: id, Created: !existed, ImagesStored: stored}, nil
}

func (f *fakeCatalogStore) UpsertProduct(ctx context.Context, categoryID uuid.UUID, draft models.ProductDraft) (*ProductUpsert, error) {
	id, existed := f.products[draft.Name]
	if !existed {
		id = uuid.New()
		f.products[draft.Name] = id
	}
	return &ProductUpsert{ID: id, Created: !existed, ImagesStored: len(draft.Images)}, nil
}

type fakeJobStore struct {
	job *models.BulkUpload
}

func (f *fakeJobStore) Claim(ctx context.Context, id uuid.UUID) (*models.BulkUpload, error) {
	return f.job, nil
}

func (f *fakeJobStore) Save(ctx context.Context, job *models.BulkUpload) error {
	return nil
}

func testJPEGBytes(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(16, 16, color.NRGBA{R: 90, G: 45, B: 10, A: 255}), imaging.JPEG))
	return buf.String()
}

func TestPipelineRunCompletes(t *testing.T) {
	archive := writeTestZip(t, map[string]string{
		"1_SPH_Spices/main.jpg":                               testJPEGBytes(t),
		"1_SPH_Spices/sph_products/SPH_turmeric/SPH_turmeric.txt": `{"Description": "Golden. Pure.", "Ingredients": "Turmeric"}`,
		"1_SPH_Spices/sph_products/XXX_bad/data.txt":          "whatever",
	})

	job := &models.BulkUpload{ID: uuid.New(), ArchivePath: archive, Status: models.UploadStatusProcessing}
	catID := uuid.New()

	store := new(mockCatalogStore)
	jobs := new(mockJobStore)
	jobs.On("Claim", mock.Anything, job.ID).Return(job, nil)
	store.On("Ping", mock.Anything).Return(nil)
	store.On("UpsertCategory", mock.Anything, mock.Anything).Return(&CategoryUpsert{ID: catID, Created: true, ImagesStored: 1}, nil)
	store.On("UpsertProduct", mock.Anything, catID, mock.Anything).Return(&ProductUpsert{ID: uuid.New(), Created: true, ImagesStored: 1}, nil)
	jobs.On("Save", mock.Anything, job).Return(nil)

	err := newTestPipeline(store, jobs).Run(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, models.UploadStatusCompleted, job.Status)
	assert.NotNil(t, job.ProcessedAt)
	assert.Equal(t, 1, job.CategoriesCreated)
	assert.Equal(t, 1, job.ProductsCreated)
	assert.Equal(t, 2, job.ImagesProcessed)

	stat, ok := job.CategoryStats["Spices"]
	require.True(t, ok)
	assert.Equal(t, 2, stat.Expected)
	assert.Equal(t, 1, stat.Uploaded)
	require.Len(t, stat.Errors, 1)
	assert.Equal(t, "Invalid directory name", stat.Errors[0].ErrorType)

	require.Len(t, job.DetailedErrors, 1)
	assert.Equal(t, "XXX_bad", job.DetailedErrors[0].Given)

	store.AssertExpectations(t)
	jobs.AssertExpectations(t)
}

func TestPipelineRunIsIdempotent(t *testing.T) {
	files := map[string]string{
		"1_SPH_Spices/main.jpg":                                   testJPEGBytes(t),
		"1_SPH_Spices/sph_products/SPH_turmeric/SPH_turmeric.txt": `{"Description": "Golden. Pure.", "Ingredients": "Turmeric"}`,
		"1_SPH_Spices/sph_products/SPH_turmeric/turmeric.jpg":     testJPEGBytes(t),
	}

	store := newFakeCatalogStore()

	first := &models.BulkUpload{ID: uuid.New(), ArchivePath: writeTestZip(t, files), Status: models.UploadStatusProcessing}
	require.NoError(t, newTestPipeline(store, &fakeJobStore{job: first}).Run(context.Background(), first.ID))

	assert.Equal(t, models.UploadStatusCompleted, first.Status)
	assert.Equal(t, 1, first.CategoriesCreated)
	assert.Equal(t, 1, first.ProductsCreated)

	// Re-ingesting the identical archive must converge on the existing
	// entities instead of duplicating them.
	second := &models.BulkUpload{ID: uuid.New(), ArchivePath: writeTestZip(t, files), Status: models.UploadStatusProcessing}
	require.NoError(t, newTestPipeline(store, &fakeJobStore{job: second}).Run(context.Background(), second.ID))

	assert.Equal(t, models.UploadStatusCompleted, second.Status)
	assert.Equal(t, 0, second.CategoriesCreated)
	assert.Equal(t, 1, second.CategoriesUpdated)
	assert.Equal(t, 0, second.ProductsCreated)
	assert.Equal(t, 1, second.ProductsUpdated)
	assert.Empty(t, second.DetailedErrors)

	assert.Len(t, store.categories, 1)
	assert.Len(t, store.products, 1)
}

func TestPipelineRunClaimRejected(t *testing.T) {
	store := new(mockCatalogStore)
	jobs := new(mockJobStore)
	id := uuid.New()
	jobs.On("Claim", mock.Anything, id).Return(nil, errors.New("bulk upload is not pending"))

	err := newTestPipeline(store, jobs).Run(context.Background(), id)
	assert.Error(t, err)
	store.AssertNotCalled(t, "Ping", mock.Anything)
	jobs.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestPipelineRunBadArchiveFails(t *testing.T) {
	job := &models.BulkUpload{ID: uuid.New(), ArchivePath: "/nonexistent/archive.zip", Status: models.UploadStatusProcessing}

	store := new(mockCatalogStore)
	jobs := new(mockJobStore)
	jobs.On("Claim", mock.Anything, job.ID).Return(job, nil)
	store.On("Ping", mock.Anything).Return(nil)
	jobs.On("Save", mock.Anything, job).Return(nil)

	err := newTestPipeline(store, jobs).Run(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, models.UploadStatusFailed, job.Status)
	assert.Contains(t, job.ErrorLog, "File Error:")
	store.AssertNotCalled(t, "UpsertCategory", mock.Anything, mock.Anything)
}

func TestPipelineRunStoreUnreachable(t *testing.T) {
	job := &models.BulkUpload{ID: uuid.New(), ArchivePath: "irrelevant.zip", Status: models.UploadStatusProcessing}

	store := new(mockCatalogStore)
	jobs := new(mockJobStore)
	jobs.On("Claim", mock.Anything, job.ID).Return(job, nil)
	store.On("Ping", mock.Anything).Return(errors.New("connection refused"))
	jobs.On("Save", mock.Anything, job).Return(nil)

	err := newTestPipeline(store, jobs).Run(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, models.UploadStatusFailed, job.Status)
	assert.Contains(t, job.ErrorLog, "Database unavailable")
}

func TestPipelineRunMissingPrimaryImageFailsNewCategory(t *testing.T) {
	archive := writeTestZip(t, map[string]string{
		"1_SPH_Spices/notes.txt": "slug: spices",
	})

	job := &models.BulkUpload{ID: uuid.New(), ArchivePath: archive, Status: models.UploadStatusProcessing}

	store := new(mockCatalogStore)
	jobs := new(mockJobStore)
	jobs.On("Claim", mock.Anything, job.ID).Return(job, nil)
	store.On("Ping", mock.Anything).Return(nil)
	store.On("CategoryExists", mock.Anything, "Spices").Return(false, nil)
	jobs.On("Save", mock.Anything, job).Return(nil)

	err := newTestPipeline(store, jobs).Run(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, models.UploadStatusFailed, job.Status)
	assert.Contains(t, job.ErrorLog, "missing a primary image")
	store.AssertNotCalled(t, "UpsertCategory", mock.Anything, mock.Anything)
}

func TestPipelineRunImagelessUpdateOfExistingCategory(t *testing.T) {
	archive := writeTestZip(t, map[string]string{
		"1_SPH_Spices/notes.txt": "description: refreshed copy",
	})

	job := &models.BulkUpload{ID: uuid.New(), ArchivePath: archive, Status: models.UploadStatusProcessing}

	store := new(mockCatalogStore)
	jobs := new(mockJobStore)
	jobs.On("Claim", mock.Anything, job.ID).Return(job, nil)
	store.On("Ping", mock.Anything).Return(nil)
	store.On("CategoryExists", mock.Anything, "Spices").Return(true, nil)
	store.On("UpsertCategory", mock.Anything, mock.Anything).Return(&CategoryUpsert{ID: uuid.New(), Created: false}, nil)
	jobs.On("Save", mock.Anything, job).Return(nil)

	err := newTestPipeline(store, jobs).Run(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, models.UploadStatusCompleted, job.Status)
	assert.Equal(t, 1, job.CategoriesUpdated)
	assert.Contains(t, job.EmptyCategories, "Spices")
}

func TestPipelineRunCategoryUpsertFailureFailsRun(t *testing.T) {
	archive := writeTestZip(t, map[string]string{
		"1_SPH_Spices/main.jpg": testJPEGBytes(t),
	})

	job := &models.BulkUpload{ID: uuid.New(), ArchivePath: archive, Status: models.UploadStatusProcessing}

	store := new(mockCatalogStore)
	jobs := new(mockJobStore)
	jobs.On("Claim", mock.Anything, job.ID).Return(job, nil)
	store.On("Ping", mock.Anything).Return(nil)
	store.On("UpsertCategory", mock.Anything, mock.Anything).Return(nil, errors.New("constraint violation"))
	jobs.On("Save", mock.Anything, job).Return(nil)

	err := newTestPipeline(store, jobs).Run(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, models.UploadStatusFailed, job.Status)
	assert.Contains(t, job.ErrorLog, "Failed to process category 'Spices'")
}
