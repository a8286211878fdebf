package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"catalog-ingestion-service/internal/models"
)

var (
	ErrUploadNotFound   = errors.New("bulk upload not found")
	ErrUploadNotPending = errors.New("bulk upload is not pending")
	ErrUploadNotFailed  = errors.New("bulk upload is not failed")
)

// UploadRepository persists bulk upload jobs and their state transitions.
type UploadRepository struct {
	db *gorm.DB
}

func NewUploadRepository(db *gorm.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Create inserts a new pending job.
func (r *UploadRepository) Create(ctx context.Context, job *models.BulkUpload) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by ID.
func (r *UploadRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BulkUpload, error) {
	var job models.BulkUpload
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUploadNotFound
		}
		return nil, err
	}
	return &job, nil
}

// List retrieves jobs newest first, optionally filtered by status.
func (r *UploadRepository) List(ctx context.Context, status models.UploadStatus, limit, offset int) ([]models.BulkUpload, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.BulkUpload{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []models.BulkUpload
	err := query.Order("uploaded_at DESC").Limit(limit).Offset(offset).Find(&jobs).Error
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// Claim atomically moves a pending job into processing. Exactly one caller
// wins; everyone else gets ErrUploadNotPending.
func (r *UploadRepository) Claim(ctx context.Context, id uuid.UUID) (*models.BulkUpload, error) {
	result := r.db.WithContext(ctx).
		Model(&models.BulkUpload{}).
		Where("id = ? AND status = ?", id, models.UploadStatusPending).
		Update("status", models.UploadStatusProcessing)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		job, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: status is %s", ErrUploadNotPending, job.Status)
	}

	job, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Save persists the full job state, including the JSONB tracking columns.
func (r *UploadRepository) Save(ctx context.Context, job *models.BulkUpload) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// Delete removes a job row entirely.
func (r *UploadRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.BulkUpload{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUploadNotFound
	}
	return nil
}

// Requeue resets a failed job to pending so it can be claimed again.
func (r *UploadRepository) Requeue(ctx context.Context, id uuid.UUID) (*models.BulkUpload, error) {
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.UploadStatusFailed {
		return nil, fmt.Errorf("%w: status is %s", ErrUploadNotFailed, job.Status)
	}

	job.ResetForRequeue()
	if err := r.Save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}
