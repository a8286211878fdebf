package validation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	ErrUnsupportedFileType = errors.New("unsupported file type")

	htmlTagRE   = regexp.MustCompile(`<[^>]*>`)
	uriSchemeRE = regexp.MustCompile(`(?i)(javascript|data|vbscript):`)
)

// Validator performs security and structural checks over untrusted archive
// content. All methods are pure functions over the policy constants.
type Validator struct {
	policy Policy
}

func New(policy Policy) *Validator {
	return &Validator{policy: policy}
}

// Policy returns the limits this validator enforces.
func (v *Validator) Policy() Policy {
	return v.policy
}

// ValidatePath rejects paths that could escape the scratch directory or
// exceed the structural limits.
func (v *Validator) ValidatePath(path string) error {
	if path == "" {
		return errors.New("empty file path")
	}

	normalized := filepath.Clean(path)

	// Parent-directory segments anywhere in the path are a traversal attempt.
	for _, part := range strings.Split(normalized, string(os.PathSeparator)) {
		if part == ".." {
			return fmt.Errorf("suspicious file path: %s", path)
		}
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("suspicious file path: %s", path)
	}

	// Absolute paths are only acceptable inside the scratch namespace.
	if filepath.IsAbs(normalized) && !v.isScratchPath(normalized) {
		return fmt.Errorf("absolute path outside scratch directory: %s", path)
	}

	if name := filepath.Base(normalized); len(name) > v.policy.MaxFilenameLength {
		return fmt.Errorf("filename too long: %d characters (limit %d)", len(name), v.policy.MaxFilenameLength)
	}

	if depth := len(strings.Split(normalized, string(os.PathSeparator))); depth > v.policy.MaxDirectoryDepth {
		return fmt.Errorf("directory structure too deep: %s", path)
	}

	return nil
}

func (v *Validator) isScratchPath(path string) bool {
	for _, prefix := range []string{os.TempDir(), "/tmp", "/var/folders"} {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// ValidateContent enforces the per-file-type size ceilings. Unknown
// extensions return ErrUnsupportedFileType: not content we process, but not
// fatal either.
func (v *Validator) ValidateContent(path string, size int64) error {
	if v.IsImageFile(path) {
		if size > v.policy.MaxImageFileSize {
			return fmt.Errorf("image file too large: %s (%d bytes, limit %d)", filepath.Base(path), size, v.policy.MaxImageFileSize)
		}
		return nil
	}
	if v.IsTextFile(path) {
		if size > v.policy.MaxTextFileSize {
			return fmt.Errorf("text file too large: %s (%d bytes, limit %d)", filepath.Base(path), size, v.policy.MaxTextFileSize)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFileType, filepath.Base(path))
}

// SanitizeText strips HTML-like tags and script/data/vbscript URI schemes,
// then truncates to the maximum text length. The second return value reports
// whether truncation happened.
func (v *Validator) SanitizeText(text string) (string, bool) {
	if text == "" {
		return "", false
	}

	sanitized := htmlTagRE.ReplaceAllString(text, "")
	sanitized = uriSchemeRE.ReplaceAllString(sanitized, "")
	sanitized = strings.TrimSpace(sanitized)

	// Truncation counts runes, not bytes, so multi-byte text stays valid.
	truncated := false
	if runes := []rune(sanitized); len(runes) > v.policy.MaxTextLength {
		sanitized = strings.TrimSpace(string(runes[:v.policy.MaxTextLength]))
		truncated = true
	}
	return sanitized, truncated
}

// ValidateCategoryName checks length bounds and suspicious patterns.
func (v *Validator) ValidateCategoryName(name string) bool {
	return v.validateName(name, v.policy.MaxCategoryNameLength)
}

// ValidateProductName checks length bounds and suspicious patterns.
func (v *Validator) ValidateProductName(name string) bool {
	return v.validateName(name, v.policy.MaxProductNameLength)
}

func (v *Validator) validateName(name string, maxLength int) bool {
	stripped := strings.TrimSpace(name)
	if len(stripped) < v.policy.MinNameLength || len(stripped) > maxLength {
		return false
	}
	lower := strings.ToLower(name)
	for _, pattern := range v.policy.SuspiciousPatterns {
		if strings.Contains(lower, pattern) {
			return false
		}
	}
	return true
}

// ValidateCategoryFields reports whether every key belongs to the category
// field whitelist.
func (v *Validator) ValidateCategoryFields(keys []string) bool {
	return allowedKeys(keys, v.policy.AllowedCategoryFields)
}

// ValidateProductFields reports whether every key belongs to the product
// field whitelist. Unknown keys reject the whole record.
func (v *Validator) ValidateProductFields(keys []string) bool {
	return allowedKeys(keys, v.policy.AllowedProductFields)
}

func allowedKeys(keys, allowed []string) bool {
	for _, key := range keys {
		found := false
		for _, a := range allowed {
			if key == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// IsImageFile reports whether the filename carries an allowed image extension.
func (v *Validator) IsImageFile(name string) bool {
	return hasExtension(name, v.policy.AllowedImageExtensions)
}

// IsTextFile reports whether the filename carries an allowed text extension.
func (v *Validator) IsTextFile(name string) bool {
	return hasExtension(name, v.policy.AllowedTextExtensions)
}

func hasExtension(name string, extensions []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// IsProductCode reports whether code belongs to the product code whitelist.
func (v *Validator) IsProductCode(code string) bool {
	for _, c := range v.policy.ProductCodes {
		if code == c {
			return true
		}
	}
	return false
}
