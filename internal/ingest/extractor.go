package ingest

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"catalog-ingestion-service/internal/validation"
)

var (
	// ErrBadArchive marks a corrupt or unreadable archive; always fatal.
	ErrBadArchive = errors.New("invalid or corrupted archive")
)

// ExtractResult describes a successful extraction.
type ExtractResult struct {
	// Dir is the scratch directory the archive was extracted into. The
	// caller owns it and must remove it when done.
	Dir       string
	FileCount int
	// Warnings are recoverable per-entry problems (skipped paths, removed
	// files); they never abort the run.
	Warnings []string
}

// Extractor unpacks an uploaded catalog archive into a scratch directory
// while enforcing the zip-bomb and path-traversal limits.
type Extractor struct {
	validator *validation.Validator
	log       *logrus.Logger
}

func NewExtractor(validator *validation.Validator, log *logrus.Logger) *Extractor {
	if log == nil {
		log = logrus.New()
	}
	return &Extractor{validator: validator, log: log}
}

// Extract unpacks archivePath into a fresh scratch directory. Entry names
// are validated before a single byte is written; entry-count and cumulative
// uncompressed-size ceilings abort extraction outright.
func (e *Extractor) Extract(archivePath string) (*ExtractResult, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	defer reader.Close()

	policy := e.validator.Policy()

	if len(reader.File) > policy.MaxEntryCount {
		return nil, fmt.Errorf("too many files in archive: %d (limit %d)", len(reader.File), policy.MaxEntryCount)
	}

	var totalUncompressed uint64
	skip := make(map[string]bool)
	result := &ExtractResult{}

	for _, entry := range reader.File {
		totalUncompressed += entry.UncompressedSize64
		if totalUncompressed > uint64(policy.MaxUncompressedSize) {
			return nil, fmt.Errorf("archive uncompressed size exceeds limit of %d bytes", policy.MaxUncompressedSize)
		}
		if err := e.validator.ValidatePath(entry.Name); err != nil {
			skip[entry.Name] = true
			result.Warnings = append(result.Warnings, fmt.Sprintf("skipped archive entry %q: %v", entry.Name, err))
			e.log.Warnf("Skipping archive entry %q: %v", entry.Name, err)
		}
	}

	scratchDir, err := os.MkdirTemp("", "catalog-ingest-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	for _, entry := range reader.File {
		if skip[entry.Name] {
			continue
		}
		if err := e.extractEntry(entry, scratchDir); err != nil {
			os.RemoveAll(scratchDir)
			return nil, err
		}
		if !entry.FileInfo().IsDir() {
			result.FileCount++
		}
	}

	// Re-validate what actually landed on disk; offending files are removed
	// rather than aborting the run.
	if err := e.sweepScratchDir(scratchDir, result); err != nil {
		os.RemoveAll(scratchDir)
		return nil, err
	}

	result.Dir = scratchDir
	e.log.Infof("Extracted archive %s: %d files, %d warnings", filepath.Base(archivePath), result.FileCount, len(result.Warnings))
	return result, nil
}

func (e *Extractor) extractEntry(entry *zip.File, scratchDir string) error {
	dest := filepath.Join(scratchDir, filepath.Clean(entry.Name))

	// Belt-and-suspenders: the destination must stay inside the scratch dir
	// even after joining and cleaning.
	if !strings.HasPrefix(dest, scratchDir+string(os.PathSeparator)) && dest != scratchDir {
		return fmt.Errorf("archive entry %q escapes scratch directory", entry.Name)
	}

	if entry.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %q: %w", entry.Name, err)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("%w: cannot read entry %q: %v", ErrBadArchive, entry.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", entry.Name, err)
	}
	defer dst.Close()

	// LimitReader guards against entries whose header lies about their size.
	limit := int64(entry.UncompressedSize64) + 1
	written, err := io.Copy(dst, io.LimitReader(src, limit))
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", entry.Name, err)
	}
	if written > int64(entry.UncompressedSize64) {
		return fmt.Errorf("archive entry %q larger than declared size", entry.Name)
	}
	return nil
}

func (e *Extractor) sweepScratchDir(scratchDir string, result *ExtractResult) error {
	return filepath.WalkDir(scratchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if err := e.validator.ValidateContent(path, info.Size()); err != nil {
			if removeErr := os.Remove(path); removeErr == nil {
				result.FileCount--
				result.Warnings = append(result.Warnings, fmt.Sprintf("removed invalid file: %s", d.Name()))
			}
		}
		return nil
	})
}
