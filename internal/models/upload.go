package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UploadStatus represents the status of a bulk upload job
type UploadStatus string

const (
	UploadStatusPending    UploadStatus = "pending"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusFailed     UploadStatus = "failed"
)

// ErrorRecord is a structured diagnostic entry for a single failed item.
// Records are append-only; Expected/Given always carry a human-diagnosable
// expectation/actual pair.
type ErrorRecord struct {
	Category  string `json:"category"`
	Product   string `json:"product,omitempty"`
	ErrorType string `json:"errorType"`
	Expected  string `json:"expected"`
	Given     string `json:"given"`
	Message   string `json:"message"`
}

// CategoryStat tracks per-category upload progress
type CategoryStat struct {
	Expected int           `json:"expected"`
	Uploaded int           `json:"uploaded"`
	Errors   []ErrorRecord `json:"errors"`
}

// CategoryStatsMap stores per-category statistics as JSONB
type CategoryStatsMap map[string]*CategoryStat

func (m CategoryStatsMap) Value() (driver.Value, error) {
	if m == nil {
		m = make(CategoryStatsMap)
	}
	return json.Marshal(m)
}

func (m *CategoryStatsMap) Scan(value interface{}) error {
	if value == nil {
		*m = make(CategoryStatsMap)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// ErrorRecordList stores detailed error records as JSONB
type ErrorRecordList []ErrorRecord

func (l ErrorRecordList) Value() (driver.Value, error) {
	if l == nil {
		l = make(ErrorRecordList, 0)
	}
	return json.Marshal(l)
}

func (l *ErrorRecordList) Scan(value interface{}) error {
	if value == nil {
		*l = make(ErrorRecordList, 0)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// StringList stores a list of strings as JSONB
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = make(StringList, 0)
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = make(StringList, 0)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// BulkUpload represents one catalog ingestion run. Status moves
// pending -> processing -> completed|failed; terminal states are set exactly
// once by the pipeline, and only a requeue resets a failed job to pending.
type BulkUpload struct {
	ID          uuid.UUID    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ArchivePath string       `json:"-" gorm:"not null"`
	ArchiveName string       `json:"archiveName"`
	UploadedBy  string       `json:"uploadedBy,omitempty"`
	Status      UploadStatus `json:"status" gorm:"not null;default:'pending';index"`
	UploadedAt  time.Time    `json:"uploadedAt"`
	ProcessedAt *time.Time   `json:"processedAt,omitempty"`

	CategoriesCreated int `json:"categoriesCreated"`
	CategoriesUpdated int `json:"categoriesUpdated"`
	ProductsCreated   int `json:"productsCreated"`
	ProductsUpdated   int `json:"productsUpdated"`
	ImagesProcessed   int `json:"imagesProcessed"`

	ErrorLog        string           `json:"errorLog,omitempty"`
	ProcessingNotes string           `json:"processingNotes,omitempty"`
	CategoryStats   CategoryStatsMap `json:"categoryStats" gorm:"type:jsonb"`
	DetailedErrors  ErrorRecordList  `json:"detailedErrors" gorm:"type:jsonb"`
	EmptyCategories StringList       `json:"emptyCategories" gorm:"type:jsonb"`
}

// TableName returns the table name for the BulkUpload model
func (BulkUpload) TableName() string {
	return "bulk_uploads"
}

// MarkAsProcessing moves the job into the processing state.
func (b *BulkUpload) MarkAsProcessing() {
	b.Status = UploadStatusProcessing
}

// MarkAsCompleted moves the job into its terminal completed state.
func (b *BulkUpload) MarkAsCompleted(notes string) {
	now := time.Now()
	b.Status = UploadStatusCompleted
	b.ProcessedAt = &now
	b.ProcessingNotes = notes
}

// MarkAsFailed moves the job into its terminal failed state.
func (b *BulkUpload) MarkAsFailed(errorLog string) {
	now := time.Now()
	b.Status = UploadStatusFailed
	b.ProcessedAt = &now
	b.ErrorLog = errorLog
}

// ResetForRequeue returns a failed job to pending with its tracking data
// cleared so it can be claimed again.
func (b *BulkUpload) ResetForRequeue() {
	b.Status = UploadStatusPending
	b.ProcessedAt = nil
	b.ErrorLog = ""
	b.ProcessingNotes = ""
	b.CategoriesCreated = 0
	b.CategoriesUpdated = 0
	b.ProductsCreated = 0
	b.ProductsUpdated = 0
	b.ImagesProcessed = 0
	b.CategoryStats = make(CategoryStatsMap)
	b.DetailedErrors = make(ErrorRecordList, 0)
	b.EmptyCategories = make(StringList, 0)
}
