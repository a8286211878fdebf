package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"catalog-ingestion-service/internal/models"
)

// CategoryUpsert reports the outcome of a category upsert.
type CategoryUpsert struct {
	ID           uuid.UUID
	Created      bool
	ImagesStored int
}

// ProductUpsert reports the outcome of a product upsert.
type ProductUpsert struct {
	ID           uuid.UUID
	Created      bool
	ImagesStored int
}

// CatalogStore persists the interpreted catalog. Upserts are idempotent:
// matching is by exact name and repeated runs of the same archive converge
// to the same state.
type CatalogStore interface {
	Ping(ctx context.Context) error
	CategoryExists(ctx context.Context, name string) (bool, error)
	UpsertCategory(ctx context.Context, draft models.CategoryDraft) (*CategoryUpsert, error)
	UpsertProduct(ctx context.Context, categoryID uuid.UUID, draft models.ProductDraft) (*ProductUpsert, error)
}

// JobStore persists bulk upload jobs. Claim atomically moves a pending job
// into processing; a job already claimed elsewhere is not returned.
type JobStore interface {
	Claim(ctx context.Context, id uuid.UUID) (*models.BulkUpload, error)
	Save(ctx context.Context, job *models.BulkUpload) error
}

// Pipeline runs one catalog ingestion end to end: claim the job, extract
// the archive, interpret the tree, upsert everything, then finalize the job
// exactly once. Per-item failures are recorded and skipped; run-level
// failures let the remaining work finish and fail the job at the end; fatal
// failures abort immediately.
type Pipeline struct {
	extractor   *Extractor
	interpreter *Interpreter
	store       CatalogStore
	jobs        JobStore
	log         *logrus.Logger
}

func NewPipeline(extractor *Extractor, interpreter *Interpreter, store CatalogStore, jobs JobStore, log *logrus.Logger) *Pipeline {
	if log == nil {
		log = logrus.New()
	}
	return &Pipeline{
		extractor:   extractor,
		interpreter: interpreter,
		store:       store,
		jobs:        jobs,
		log:         log,
	}
}

// Run processes the job with the given ID. It returns an error only when
// the job could not be claimed or its final state could not be saved;
// ingestion problems are recorded on the job itself.
func (p *Pipeline) Run(ctx context.Context, jobID uuid.UUID) error {
	job, err := p.jobs.Claim(ctx, jobID)
	if err != nil {
		p.log.Warnf("Could not claim bulk upload %s: %v", jobID, err)
		return err
	}

	log := p.log.WithFields(logrus.Fields{"upload_id": job.ID, "archive": job.ArchiveName})
	log.Info("Starting catalog ingestion")

	tracker := NewTracker()

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Panic during catalog ingestion: %v", r)
			p.finalize(ctx, job, tracker, fmt.Sprintf("System Error: %v", r))
		}
	}()

	if err := p.store.Ping(ctx); err != nil {
		p.finalize(ctx, job, tracker, fmt.Sprintf("Database unavailable: %v", err))
		return nil
	}

	extracted, err := p.extractor.Extract(job.ArchivePath)
	if err != nil {
		p.finalize(ctx, job, tracker, fmt.Sprintf("File Error: %v", err))
		return nil
	}
	defer os.RemoveAll(extracted.Dir)
	tracker.AddNotes(extracted.Warnings)

	candidates, notes, err := p.interpreter.InterpretCatalog(extracted.Dir)
	if err != nil {
		p.finalize(ctx, job, tracker, fmt.Sprintf("Directory Structure Error: %v", err))
		return nil
	}
	tracker.AddNotes(notes)

	if len(candidates) == 0 {
		p.finalize(ctx, job, tracker, "Directory Structure Error: no valid category directories found")
		return nil
	}

	for _, candidate := range candidates {
		p.processCategory(ctx, candidate, tracker, log)
	}

	if tracker.ProcessedCategories() == 0 {
		errorLog := "Directory Structure Error: no valid category directories were processed successfully"
		if tracker.HasRunErrors() {
			errorLog = tracker.ErrorLog()
		}
		p.finalize(ctx, job, tracker, errorLog)
		return nil
	}

	tracker.ApplyTo(job)
	job.ProcessingNotes = tracker.Notes()
	if tracker.HasRunErrors() {
		job.MarkAsFailed(tracker.ErrorLog())
		log.Warnf("Catalog ingestion finished with errors: %s", tracker.LastError())
	} else {
		job.MarkAsCompleted(tracker.Notes())
		log.Info("Catalog ingestion completed")
	}
	return p.jobs.Save(ctx, job)
}

func (p *Pipeline) processCategory(ctx context.Context, candidate CategoryCandidate, tracker *Tracker, log *logrus.Entry) {
	name := candidate.Draft.Name
	tracker.AddNotes(candidate.Notes)

	// A category can only be created with a primary image; updates of an
	// existing category may omit it.
	if candidate.Draft.PrimaryImage == nil {
		exists, err := p.store.CategoryExists(ctx, name)
		if err != nil {
			tracker.RunError("Failed to process category '%s': %v", name, err)
			return
		}
		if !exists {
			tracker.RunError("Category '%s' is missing a primary image (filename containing 'main')", name)
			return
		}
	}

	upsert, err := p.store.UpsertCategory(ctx, candidate.Draft)
	if err != nil {
		tracker.RunError("Failed to process category '%s': %v", name, err)
		return
	}
	if upsert.Created {
		tracker.CategoryCreated(name)
	} else {
		tracker.CategoryUpdated(name)
	}
	tracker.ImagesProcessed(upsert.ImagesStored)

	if !candidate.HasProductsDir || candidate.ProductsExpected == 0 {
		tracker.SetExpected(name, 0)
		tracker.MarkEmpty(name)
		return
	}
	tracker.SetExpected(name, candidate.ProductsExpected)

	for _, product := range candidate.Products {
		if product.Err != nil {
			log.Warnf("Skipping product %s: %s", product.DirName, product.Err.Message)
			tracker.ProductError(*product.Err)
			continue
		}

		result, err := p.store.UpsertProduct(ctx, upsert.ID, *product.Draft)
		if err != nil {
			tracker.ProductError(models.ErrorRecord{
				Category:  name,
				Product:   product.DirName,
				ErrorType: "Product processing failed",
				Expected:  "Successful product upsert",
				Given:     "Database error",
				Message:   fmt.Sprintf("Error processing product directory %s: %v", product.DirName, err),
			})
			continue
		}
		if result.Created {
			tracker.ProductCreated(name, product.Draft.Name)
		} else {
			tracker.ProductUpdated(name, product.Draft.Name)
		}
		tracker.ImagesProcessed(result.ImagesStored)
	}
}

// finalize fails the job for a fatal error, preserving whatever the tracker
// accumulated before the abort.
func (p *Pipeline) finalize(ctx context.Context, job *models.BulkUpload, tracker *Tracker, errorLog string) {
	tracker.ApplyTo(job)
	job.ProcessingNotes = tracker.Notes()
	job.MarkAsFailed(errorLog)
	if err := p.jobs.Save(ctx, job); err != nil {
		p.log.Errorf("Failed to persist terminal state for upload %s: %v", job.ID, err)
	}
}
