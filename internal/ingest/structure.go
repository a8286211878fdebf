package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"catalog-ingestion-service/internal/models"
	"catalog-ingestion-service/internal/validation"
)

// ErrNoCatalogDirs marks an archive with no category directories at all;
// always fatal.
var ErrNoCatalogDirs = errors.New("no catalog directories found in archive")

// ProductCandidate is one product directory after interpretation. Exactly
// one of Draft and Err is set.
type ProductCandidate struct {
	DirName string
	Draft   *models.ProductDraft
	Err     *models.ErrorRecord
}

// CategoryCandidate is one valid category directory after interpretation.
type CategoryCandidate struct {
	DirName          string
	Path             string
	Draft            models.CategoryDraft
	Notes            []string
	HasProductsDir   bool
	ProductsExpected int
	Products         []ProductCandidate
}

// Interpreter walks an extracted catalog tree and turns the directory
// naming conventions into category and product drafts. It never touches the
// database; per-item failures become error records on the candidates.
type Interpreter struct {
	validator *validation.Validator
	parser    *MetadataParser
	images    *ImageProcessor
	log       *logrus.Logger
}

func NewInterpreter(validator *validation.Validator, parser *MetadataParser, images *ImageProcessor, log *logrus.Logger) *Interpreter {
	if log == nil {
		log = logrus.New()
	}
	return &Interpreter{validator: validator, parser: parser, images: images, log: log}
}

// InterpretCatalog reads the top level of scratchDir and interprets every
// directory matching the number_CODE_name pattern. Directory listings are
// sorted so repeated runs see the tree in the same order.
func (it *Interpreter) InterpretCatalog(scratchDir string) ([]CategoryCandidate, []string, error) {
	dirs, err := sortedSubdirs(scratchDir)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot read extracted catalog: %w", err)
	}
	if len(dirs) == 0 {
		return nil, nil, ErrNoCatalogDirs
	}

	var candidates []CategoryCandidate
	var notes []string

	for _, dirName := range dirs {
		if strings.HasPrefix(dirName, ".") {
			continue
		}
		if !isCategoryDirName(dirName) {
			it.log.Warnf("Skipping invalid category directory: %s", dirName)
			notes = append(notes, fmt.Sprintf("Skipped invalid directory: %s (expected format: number_CODE_name)", dirName))
			continue
		}

		name := extractCategoryName(dirName)
		if !it.validator.ValidateCategoryName(name) {
			it.log.Warnf("Skipping category with invalid name: %s", name)
			notes = append(notes, fmt.Sprintf("Skipped category with invalid name: %s", dirName))
			continue
		}

		candidate := it.interpretCategory(dirName, filepath.Join(scratchDir, dirName), name)
		candidates = append(candidates, candidate)
	}

	return candidates, notes, nil
}

func (it *Interpreter) interpretCategory(dirName, dirPath, name string) CategoryCandidate {
	code := extractCategoryCode(dirName)
	candidate := CategoryCandidate{
		DirName: dirName,
		Path:    dirPath,
		Draft: models.CategoryDraft{
			Name:         name,
			Code:         code,
			DisplayOrder: extractDisplayOrder(dirName),
		},
	}

	it.readCategoryFiles(&candidate)
	it.readCategoryImages(&candidate)

	productsDir := filepath.Join(dirPath, strings.ToLower(code)+"_products")
	if _, err := os.Stat(productsDir); err != nil {
		// The products directory carries the code exactly as it appears in
		// the category directory name; try that spelling too.
		productsDir = filepath.Join(dirPath, code+"_products")
	}
	if _, err := os.Stat(productsDir); err != nil {
		candidate.Notes = append(candidate.Notes, fmt.Sprintf("No products directory found for category: %s (expected: %s_products)", name, code))
		return candidate
	}
	candidate.HasProductsDir = true

	productDirs, err := sortedSubdirs(productsDir)
	if err != nil {
		candidate.Notes = append(candidate.Notes, fmt.Sprintf("Cannot read products directory for category: %s", name))
		return candidate
	}

	for _, productDirName := range productDirs {
		if strings.HasPrefix(productDirName, ".") {
			continue
		}
		candidate.ProductsExpected++
		candidate.Products = append(candidate.Products, it.interpretProduct(name, productDirName, filepath.Join(productsDir, productDirName)))
	}
	return candidate
}

// readCategoryFiles fills the draft descriptions. The legacy layout uses
// separate CODE_txt_short.txt and CODE_txt_long.txt files; newer archives
// carry a single .txt file with key-value metadata.
func (it *Interpreter) readCategoryFiles(candidate *CategoryCandidate) {
	dirPath := candidate.Path
	code := candidate.Draft.Code

	if raw, err := os.ReadFile(filepath.Join(dirPath, code+"_txt_short.txt")); err == nil {
		candidate.Draft.SecondaryDescription, _ = it.validator.SanitizeText(string(raw))
	}
	if raw, err := os.ReadFile(filepath.Join(dirPath, code+"_txt_long.txt")); err == nil {
		candidate.Draft.Description, _ = it.validator.SanitizeText(string(raw))
	}
	if candidate.Draft.Description != "" || candidate.Draft.SecondaryDescription != "" {
		return
	}

	txtFiles, err := sortedFilesWithSuffix(dirPath, ".txt")
	if err != nil || len(txtFiles) == 0 {
		return
	}
	raw, err := os.ReadFile(filepath.Join(dirPath, txtFiles[0]))
	if err != nil {
		candidate.Notes = append(candidate.Notes, fmt.Sprintf("Error reading metadata file %s for %s", txtFiles[0], code))
		return
	}
	fields, notes := it.parser.ParseCategoryMeta(raw)
	candidate.Draft.Slug = fields.Slug
	candidate.Draft.Description = fields.Description
	candidate.Notes = append(candidate.Notes, notes...)
}

// readCategoryImages picks the category images: a filename containing
// "main" is the primary image, any other image becomes the secondary.
func (it *Interpreter) readCategoryImages(candidate *CategoryCandidate) {
	entries, err := os.ReadDir(candidate.Path)
	if err != nil {
		return
	}

	var primaryFile, secondaryFile string
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && it.validator.IsImageFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.Contains(strings.ToLower(name), "main") {
			primaryFile = name
		} else {
			secondaryFile = name
		}
	}

	if primaryFile != "" {
		candidate.Draft.PrimaryImage = it.processCategoryImage(candidate, primaryFile)
	}
	if secondaryFile != "" {
		candidate.Draft.SecondaryImage = it.processCategoryImage(candidate, secondaryFile)
	}
}

func (it *Interpreter) processCategoryImage(candidate *CategoryCandidate, filename string) *models.ProcessedImage {
	img, err := it.images.Process(filepath.Join(candidate.Path, filename))
	if err != nil {
		it.log.Warnf("Failed to process category image %s: %v", filename, err)
		candidate.Notes = append(candidate.Notes, fmt.Sprintf("Failed to process category image %s for %s", filename, candidate.Draft.Name))
		return nil
	}
	return img
}

func (it *Interpreter) interpretProduct(categoryName, dirName, dirPath string) ProductCandidate {
	candidate := ProductCandidate{DirName: dirName}

	if !isProductDirName(dirName, it.validator) {
		candidate.Err = &models.ErrorRecord{
			Category:  categoryName,
			Product:   dirName,
			ErrorType: "Invalid directory name",
			Expected:  "PRODUCT_name format",
			Given:     dirName,
			Message:   fmt.Sprintf("Invalid product directory name: %s. Expected format: PRODUCT_name", dirName),
		}
		return candidate
	}

	name := extractProductName(dirName)
	if !it.validator.ValidateProductName(name) {
		candidate.Err = &models.ErrorRecord{
			Category:  categoryName,
			Product:   dirName,
			ErrorType: "Invalid product name",
			Expected:  "Valid product name",
			Given:     name,
			Message:   fmt.Sprintf("Invalid product name: %s", name),
		}
		return candidate
	}

	fields, err := it.readProductData(dirPath, dirName)
	if err != nil || fields == nil {
		message := fmt.Sprintf("No valid product data found for: %s", dirName)
		if err != nil {
			message = fmt.Sprintf("Invalid product data for %s: %v", dirName, err)
		}
		candidate.Err = &models.ErrorRecord{
			Category:  categoryName,
			Product:   dirName,
			ErrorType: "Product processing failed",
			Expected:  "Valid product data file",
			Given:     "Missing or invalid product data",
			Message:   message,
		}
		return candidate
	}

	draft := &models.ProductDraft{
		Name:                 name,
		Description:          fields.Description,
		SecondaryDescription: fields.SecondaryDescription,
		Tags:                 fields.Tags,
	}
	it.readProductImages(draft, dirPath)
	candidate.Draft = draft
	return candidate
}

// readProductData locates the product data file, trying the conventional
// names first and falling back to any .txt file in the directory.
func (it *Interpreter) readProductData(dirPath, dirName string) (*ProductFields, error) {
	filenames := []string{
		dirName + ".txt",
		strings.ReplaceAll(dirName, "_", "_ ") + ".txt",
		strings.ReplaceAll(dirName, "_", " ") + ".txt",
	}
	if txtFiles, err := sortedFilesWithSuffix(dirPath, ".txt"); err == nil {
		for _, f := range txtFiles {
			if !containsString(filenames, f) {
				filenames = append(filenames, f)
			}
		}
	}

	for _, filename := range filenames {
		raw, err := os.ReadFile(filepath.Join(dirPath, filename))
		if err != nil {
			continue
		}
		fields, notes, parseErr := it.parser.ParseProduct(raw)
		for _, note := range notes {
			it.log.Debugf("Product %s: %s", dirName, note)
		}
		return fields, parseErr
	}
	return nil, nil
}

func (it *Interpreter) readProductImages(draft *models.ProductDraft, dirPath string) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && it.validator.IsImageFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dirPath, name)
		info, err := os.Stat(path)
		if err != nil || it.validator.ValidateContent(path, info.Size()) != nil {
			continue
		}
		img, err := it.images.Process(path)
		if err != nil {
			it.log.Warnf("Failed to process product image %s: %v", name, err)
			continue
		}
		draft.Images = append(draft.Images, *img)
	}
}

// isCategoryDirName reports whether the directory follows the
// number_CODE_name pattern.
func isCategoryDirName(dirName string) bool {
	parts := strings.Split(dirName, "_")
	if len(parts) < 3 || len(parts[1]) == 0 {
		return false
	}
	_, err := strconv.Atoi(parts[0])
	return err == nil
}

func extractCategoryCode(dirName string) string {
	parts := strings.Split(dirName, "_")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}

func extractDisplayOrder(dirName string) *int {
	parts := strings.Split(dirName, "_")
	if len(parts) == 0 {
		return nil
	}
	order, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil
	}
	return &order
}

func extractCategoryName(dirName string) string {
	parts := strings.Split(dirName, "_")
	if len(parts) >= 3 {
		if name := strings.TrimSpace(strings.Join(parts[2:], " ")); name != "" {
			return name
		}
		return parts[1]
	}
	if len(parts) == 2 {
		return strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(dirName)
}

// isProductDirName reports whether the directory follows the CODE_name
// pattern with a whitelisted code.
func isProductDirName(dirName string, validator *validation.Validator) bool {
	code, _, found := strings.Cut(dirName, "_")
	if !found {
		return false
	}
	return validator.IsProductCode(code) && len(dirName) > len(code)+1
}

func extractProductName(dirName string) string {
	if _, name, found := strings.Cut(dirName, "_"); found {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			return trimmed
		}
	}
	return strings.TrimSpace(strings.ReplaceAll(dirName, "_", " "))
}

func sortedSubdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func sortedFilesWithSuffix(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(strings.ToLower(entry.Name()), suffix) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
