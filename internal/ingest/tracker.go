package ingest

import (
	"fmt"
	"strings"

	"catalog-ingestion-service/internal/models"
)

// Tracker accumulates the outcome of one ingestion run: counters, per
// category statistics, structured error records and free-form notes. All
// records are append-only; the pipeline flushes the tracker onto the job
// exactly once at the end of the run.
type Tracker struct {
	categoriesCreated int
	categoriesUpdated int
	productsCreated   int
	productsUpdated   int
	imagesProcessed   int

	stats           models.CategoryStatsMap
	detailedErrors  models.ErrorRecordList
	emptyCategories models.StringList
	notes           []string
	runErrors       []string
}

func NewTracker() *Tracker {
	return &Tracker{stats: make(models.CategoryStatsMap)}
}

// Note records a free-form processing note.
func (t *Tracker) Note(format string, args ...interface{}) {
	t.notes = append(t.notes, fmt.Sprintf(format, args...))
}

// RunError records a run-level error. Any run-level error fails the job
// once the run finishes; processing continues so the remaining categories
// still land.
func (t *Tracker) RunError(format string, args ...interface{}) {
	t.runErrors = append(t.runErrors, fmt.Sprintf(format, args...))
}

// HasRunErrors reports whether any run-level error was recorded.
func (t *Tracker) HasRunErrors() bool {
	return len(t.runErrors) > 0
}

// ErrorLog joins the run-level errors into the persisted error log.
func (t *Tracker) ErrorLog() string {
	return strings.Join(t.runErrors, "\n")
}

// LastError returns the most recent run-level error message.
func (t *Tracker) LastError() string {
	if len(t.runErrors) == 0 {
		return ""
	}
	return t.runErrors[len(t.runErrors)-1]
}

func (t *Tracker) categoryStat(category string) *models.CategoryStat {
	stat, ok := t.stats[category]
	if !ok {
		stat = &models.CategoryStat{Errors: []models.ErrorRecord{}}
		t.stats[category] = stat
	}
	return stat
}

// SetExpected records how many products a category directory contains.
func (t *Tracker) SetExpected(category string, expected int) {
	t.categoryStat(category).Expected = expected
}

// CategoryCreated counts a newly created category.
func (t *Tracker) CategoryCreated(name string) {
	t.categoriesCreated++
	t.Note("Created category: %s", name)
}

// CategoryUpdated counts an updated category.
func (t *Tracker) CategoryUpdated(name string) {
	t.categoriesUpdated++
	t.Note("Updated category: %s", name)
}

// ProductCreated counts a newly created product under its category.
func (t *Tracker) ProductCreated(category, name string) {
	t.productsCreated++
	t.categoryStat(category).Uploaded++
	t.Note("Created product: %s", name)
}

// ProductUpdated counts an updated product under its category.
func (t *Tracker) ProductUpdated(category, name string) {
	t.productsUpdated++
	t.categoryStat(category).Uploaded++
	t.Note("Updated product: %s", name)
}

// ImagesProcessed counts stored images.
func (t *Tracker) ImagesProcessed(n int) {
	t.imagesProcessed += n
}

// ProductError records a structured per-product error in both the category
// stats and the flat detailed error list.
func (t *Tracker) ProductError(record models.ErrorRecord) {
	t.categoryStat(record.Category).Errors = append(t.categoryStat(record.Category).Errors, record)
	t.detailedErrors = append(t.detailedErrors, record)
}

// MarkEmpty records a category whose products directory held no products.
func (t *Tracker) MarkEmpty(category string) {
	t.emptyCategories = append(t.emptyCategories, category)
}

// ProcessedCategories reports how many categories landed in the store.
func (t *Tracker) ProcessedCategories() int {
	return t.categoriesCreated + t.categoriesUpdated
}

// Notes joins the processing notes into the persisted form.
func (t *Tracker) Notes() string {
	return strings.Join(t.notes, "\n")
}

// AddNotes appends pre-existing notes, skipping empties.
func (t *Tracker) AddNotes(notes []string) {
	for _, note := range notes {
		if note != "" {
			t.notes = append(t.notes, note)
		}
	}
}

// ApplyTo flushes every counter and record onto the job.
func (t *Tracker) ApplyTo(job *models.BulkUpload) {
	job.CategoriesCreated = t.categoriesCreated
	job.CategoriesUpdated = t.categoriesUpdated
	job.ProductsCreated = t.productsCreated
	job.ProductsUpdated = t.productsUpdated
	job.ImagesProcessed = t.imagesProcessed
	job.CategoryStats = t.stats
	job.DetailedErrors = t.detailedErrors
	job.EmptyCategories = t.emptyCategories
	if job.DetailedErrors == nil {
		job.DetailedErrors = make(models.ErrorRecordList, 0)
	}
	if job.EmptyCategories == nil {
		job.EmptyCategories = make(models.StringList, 0)
	}
}
