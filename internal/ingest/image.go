package ingest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"catalog-ingestion-service/internal/models"
	"catalog-ingestion-service/internal/validation"
)

const (
	maxImageDimension = 1920
	jpegQuality       = 85
)

var nonSlugCharsRE = regexp.MustCompile(`[^a-z0-9-]+`)

// ImageProcessor normalizes catalog images for storage: everything becomes
// an opaque JPEG bounded to maxImageDimension on its longer side. The same
// input always yields the same output bytes.
type ImageProcessor struct {
	validator *validation.Validator
	log       *logrus.Logger
}

func NewImageProcessor(validator *validation.Validator, log *logrus.Logger) *ImageProcessor {
	if log == nil {
		log = logrus.New()
	}
	return &ImageProcessor{validator: validator, log: log}
}

// Process reads the image at path and returns the normalized JPEG payload.
func (p *ImageProcessor) Process(path string) (*models.ProcessedImage, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", filepath.Base(path), err)
	}

	// Transparency is composited over white before the JPEG encode; JPEG has
	// no alpha channel.
	img = flattenOverWhite(img)

	bounds := img.Bounds()
	if bounds.Dx() > maxImageDimension || bounds.Dy() > maxImageDimension {
		img = imaging.Fit(img, maxImageDimension, maxImageDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode image %s: %w", filepath.Base(path), err)
	}

	if int64(buf.Len()) > p.validator.Policy().MaxImageFileSize {
		return nil, fmt.Errorf("image %s still exceeds size limit after processing", filepath.Base(path))
	}

	final := img.Bounds()
	return &models.ProcessedImage{
		Filename: jpegFilename(path),
		Data:     buf.Bytes(),
		Width:    final.Dx(),
		Height:   final.Dy(),
	}, nil
}

func flattenOverWhite(img image.Image) image.Image {
	bounds := img.Bounds()
	canvas := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}

// jpegFilename derives a stable slugified .jpg name from the source path.
func jpegFilename(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	slug := strings.ToLower(base)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")
	slug = nonSlugCharsRE.ReplaceAllString(slug, "")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "image"
	}
	return slug + ".jpg"
}
