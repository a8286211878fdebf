package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"catalog-ingestion-service/internal/ingest"
	"catalog-ingestion-service/internal/models"
	"catalog-ingestion-service/internal/repository"
	"catalog-ingestion-service/internal/validation"
	"catalog-ingestion-service/internal/worker"
)

// UploadHandler exposes the bulk upload API: submit an archive, watch its
// job, requeue a failed one.
type UploadHandler struct {
	uploads   *repository.UploadRepository
	pipeline  *ingest.Pipeline
	pool      *worker.Pool
	validator *validation.Validator
	uploadDir string
	log       *logrus.Logger
}

func NewUploadHandler(uploads *repository.UploadRepository, pipeline *ingest.Pipeline, pool *worker.Pool, validator *validation.Validator, uploadDir string, log *logrus.Logger) *UploadHandler {
	if log == nil {
		log = logrus.New()
	}
	return &UploadHandler{
		uploads:   uploads,
		pipeline:  pipeline,
		pool:      pool,
		validator: validator,
		uploadDir: uploadDir,
		log:       log,
	}
}

// RegisterRoutes wires the bulk upload endpoints.
func (h *UploadHandler) RegisterRoutes(router *gin.Engine) {
	uploads := router.Group("/api/v1/catalog/bulk-uploads")
	{
		uploads.POST("", h.Upload)
		uploads.GET("", h.List)
		uploads.GET("/:id", h.GetStatus)
		uploads.POST("/:id/requeue", h.Requeue)
	}
}

// Upload accepts a catalog ZIP archive and schedules its ingestion.
// POST /api/v1/catalog/bulk-uploads
func (h *UploadHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "MISSING_FILE", "No file provided in 'file' form field")
		return
	}

	policy := h.validator.Policy()

	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".zip") {
		respondError(c, http.StatusBadRequest, "INVALID_FILE_TYPE", "Only ZIP archives are accepted")
		return
	}
	if fileHeader.Size < policy.MinArchiveSize {
		respondError(c, http.StatusBadRequest, "FILE_TOO_SMALL", fmt.Sprintf("Archive must be at least %d bytes", policy.MinArchiveSize))
		return
	}
	if fileHeader.Size > policy.MaxArchiveSize {
		respondError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", fmt.Sprintf("Archive exceeds the %d byte limit", policy.MaxArchiveSize))
		return
	}

	if ok, err := h.sniffArchive(fileHeader); err != nil {
		respondError(c, http.StatusInternalServerError, "UPLOAD_FAILED", "Failed to read uploaded file")
		return
	} else if !ok {
		respondError(c, http.StatusBadRequest, "INVALID_FILE_TYPE", "Uploaded file is not a ZIP archive")
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		h.log.Errorf("Cannot create upload directory: %v", err)
		respondError(c, http.StatusInternalServerError, "UPLOAD_FAILED", "Failed to store uploaded file")
		return
	}
	archivePath := filepath.Join(h.uploadDir, uuid.New().String()+".zip")
	if err := c.SaveUploadedFile(fileHeader, archivePath); err != nil {
		h.log.Errorf("Cannot save uploaded archive: %v", err)
		respondError(c, http.StatusInternalServerError, "UPLOAD_FAILED", "Failed to store uploaded file")
		return
	}

	job := &models.BulkUpload{
		ArchivePath:     archivePath,
		ArchiveName:     fileHeader.Filename,
		UploadedBy:      c.PostForm("uploaded_by"),
		Status:          models.UploadStatusPending,
		UploadedAt:      time.Now(),
		CategoryStats:   make(models.CategoryStatsMap),
		DetailedErrors:  make(models.ErrorRecordList, 0),
		EmptyCategories: make(models.StringList, 0),
	}
	if err := h.uploads.Create(c.Request.Context(), job); err != nil {
		h.log.Errorf("Cannot create bulk upload record: %v", err)
		os.Remove(archivePath)
		respondError(c, http.StatusInternalServerError, "UPLOAD_FAILED", "Failed to create upload record")
		return
	}

	if err := h.schedule(job.ID); err != nil {
		h.log.Warnf("Worker queue full, rejecting upload %s", job.ID)
		if delErr := h.uploads.Delete(c.Request.Context(), job.ID); delErr != nil {
			h.log.Errorf("Cannot delete unscheduled upload %s: %v", job.ID, delErr)
		}
		os.Remove(archivePath)
		respondError(c, http.StatusServiceUnavailable, "QUEUE_FULL", "Too many uploads in progress, try again later")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"success": true, "data": job})
}

// GetStatus returns one upload job with its full tracking data.
// GET /api/v1/catalog/bulk-uploads/:id
func (h *UploadHandler) GetStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Upload ID must be a UUID")
		return
	}

	job, err := h.uploads.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrUploadNotFound) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "Bulk upload not found")
			return
		}
		h.log.Errorf("Cannot load bulk upload %s: %v", id, err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load bulk upload")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": job})
}

// List returns upload jobs newest first.
// GET /api/v1/catalog/bulk-uploads?status=&limit=&offset=
func (h *UploadHandler) List(c *gin.Context) {
	status := models.UploadStatus(c.Query("status"))
	switch status {
	case "", models.UploadStatusPending, models.UploadStatusProcessing, models.UploadStatusCompleted, models.UploadStatusFailed:
	default:
		respondError(c, http.StatusBadRequest, "INVALID_STATUS", "Unknown status filter")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	jobs, total, err := h.uploads.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		h.log.Errorf("Cannot list bulk uploads: %v", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list bulk uploads")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    jobs,
		"meta":    gin.H{"total": total, "limit": limit, "offset": offset},
	})
}

// Requeue returns a failed job to pending and schedules it again.
// POST /api/v1/catalog/bulk-uploads/:id/requeue
func (h *UploadHandler) Requeue(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Upload ID must be a UUID")
		return
	}

	job, err := h.uploads.Requeue(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUploadNotFound):
			respondError(c, http.StatusNotFound, "NOT_FOUND", "Bulk upload not found")
		case errors.Is(err, repository.ErrUploadNotFailed):
			respondError(c, http.StatusConflict, "NOT_FAILED", "Only failed uploads can be requeued")
		default:
			h.log.Errorf("Cannot requeue bulk upload %s: %v", id, err)
			respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to requeue bulk upload")
		}
		return
	}

	if err := h.schedule(job.ID); err != nil {
		job.MarkAsFailed("Worker queue full, requeue again later")
		if saveErr := h.uploads.Save(c.Request.Context(), job); saveErr != nil {
			h.log.Errorf("Cannot persist requeue rollback for %s: %v", job.ID, saveErr)
		}
		respondError(c, http.StatusServiceUnavailable, "QUEUE_FULL", "Too many uploads in progress, try again later")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"success": true, "data": job})
}

func (h *UploadHandler) schedule(jobID uuid.UUID) error {
	return h.pool.Submit(func(ctx context.Context) {
		if err := h.pipeline.Run(ctx, jobID); err != nil {
			h.log.Errorf("Ingestion run for %s did not start: %v", jobID, err)
		}
	})
}

// sniffArchive checks the leading bytes of the upload against the accepted
// archive MIME types.
func (h *UploadHandler) sniffArchive(fileHeader *multipart.FileHeader) (bool, error) {
	f, err := fileHeader.Open()
	if err != nil {
		return false, err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return false, err
	}

	contentType := http.DetectContentType(buf[:n])
	for _, allowed := range h.validator.Policy().AllowedArchiveMIMETypes {
		if contentType == allowed {
			return true, nil
		}
	}
	return false, nil
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Success: false,
		Error:   models.Error{Code: code, Message: message},
	})
}
