package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"catalog-ingestion-service/internal/validation"
)

// ErrInvalidFields marks a parsed field map that contains keys outside the
// whitelist; the whole record is rejected as invalid data.
var ErrInvalidFields = errors.New("metadata contains unknown fields")

var (
	descriptionRE      = regexp.MustCompile(`"Description"\s*:\s*"([^"]+)"`)
	ingredientsRE      = regexp.MustCompile(`"Ingredients"\s*:\s*"([^"]+)"`)
	missingIngredients = regexp.MustCompile(`("Description"\s*:\s*"[^"]*")\s*:\s*("[^"]*")`)
	tagSplitRE         = regexp.MustCompile(`[,;\n]+`)
)

// ProductFields is the canonical field set parsed from a product data file.
type ProductFields struct {
	Description          string
	SecondaryDescription string
	Tags                 []string
}

// CategoryFields is the canonical field set parsed from a category
// description file.
type CategoryFields struct {
	Slug                 string
	Description          string
	SecondaryDescription string
}

// MetadataParser reads product and category description files. The input is
// vendor-authored and frequently malformed; the parser degrades through
// JSON, repaired JSON, manual field extraction and finally plain text, and
// never lets a failure escape its boundary.
type MetadataParser struct {
	validator *validation.Validator
	log       *logrus.Logger
}

func NewMetadataParser(validator *validation.Validator, log *logrus.Logger) *MetadataParser {
	if log == nil {
		log = logrus.New()
	}
	return &MetadataParser{validator: validator, log: log}
}

// ParseProduct parses a product data file into canonical fields. A nil
// result with nil error means the file was empty after sanitization. The
// returned notes record non-fatal degradations (truncation).
func (p *MetadataParser) ParseProduct(raw []byte) (*ProductFields, []string, error) {
	var notes []string

	content, truncated := p.validator.SanitizeText(string(raw))
	if truncated {
		notes = append(notes, "Text content truncated due to length limit")
	}
	if content == "" {
		return nil, notes, nil
	}

	if data, ok := p.parseJSONObject(content); ok {
		fields, err := p.mapProductFields(data)
		return fields, notes, err
	}

	// Manual extraction of the two known fields from broken JSON.
	if m := descriptionRE.FindStringSubmatch(content); m != nil {
		description, _ := p.validator.SanitizeText(m[1])
		fields := &ProductFields{
			Description: strings.ReplaceAll(description, ".", ","),
		}
		if im := ingredientsRE.FindStringSubmatch(content); im != nil {
			fields.SecondaryDescription, _ = p.validator.SanitizeText(im[1])
		}
		return fields, notes, nil
	}

	// Last resort: the whole sanitized content is the description.
	return &ProductFields{
		Description: strings.ReplaceAll(content, ".", ","),
	}, notes, nil
}

// parseJSONObject attempts strict JSON parsing first, then retries with the
// repair heuristics for the known vendor malformations. It returns the
// decoded object and whether JSON decoding succeeded at all.
func (p *MetadataParser) parseJSONObject(content string) (map[string]interface{}, bool) {
	candidates := []string{
		content,
		// Rule (a): escape bare backslashes; rule (c): insert the missing
		// comma and "Ingredients" key after a "Description" value.
		insertMissingIngredientsKey(escapeBareBackslashes(content)),
		// Rule (b): escape an unescaped quote that immediately precedes a
		// word character. Applied last; it can mangle well-formed keys.
		escapeQuotesBeforeWord(insertMissingIngredientsKey(escapeBareBackslashes(content))),
	}

	for _, candidate := range candidates {
		var value interface{}
		if err := json.Unmarshal([]byte(candidate), &value); err != nil {
			continue
		}
		switch v := value.(type) {
		case map[string]interface{}:
			return v, true
		case string:
			// Double-encoded JSON: a string whose content is itself JSON.
			inner := insertMissingIngredientsKey(v)
			var innerValue interface{}
			if err := json.Unmarshal([]byte(inner), &innerValue); err != nil {
				p.log.Warnf("Failed to parse double-encoded metadata JSON: %v", err)
				return nil, false
			}
			if obj, ok := innerValue.(map[string]interface{}); ok {
				return obj, true
			}
			return nil, false
		default:
			return nil, false
		}
	}
	return nil, false
}

func (p *MetadataParser) mapProductFields(data map[string]interface{}) (*ProductFields, error) {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	if !p.validator.ValidateProductFields(keys) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFields, strings.Join(keys, ", "))
	}

	description, _ := p.validator.SanitizeText(stringField(data, "Description"))
	secondary, _ := p.validator.SanitizeText(stringField(data, "Ingredients"))

	fields := &ProductFields{
		// Periods become commas so downstream sentence truncation never
		// cuts a description short.
		Description:          strings.ReplaceAll(description, ".", ","),
		SecondaryDescription: secondary,
	}
	fields.Tags = p.deriveTags(
		stringField(data, "Ingredients"),
		stringField(data, "Features & Benefits"),
		stringField(data, "Usage Recommendation"),
	)
	return fields, nil
}

// deriveTags tokenizes the given sources into at most MaxTags lowercase
// tags, preserving first-seen order.
func (p *MetadataParser) deriveTags(sources ...string) []string {
	policy := p.validator.Policy()
	seen := make(map[string]bool)
	var tags []string

	for _, source := range sources {
		if source == "" {
			continue
		}
		source = strings.ReplaceAll(source, ".", ",")
		for _, word := range tagSplitRE.Split(source, -1) {
			word = strings.ToLower(strings.TrimSpace(word))
			if len(word) <= 2 || seen[word] || isStopWord(word, policy.StopWords) {
				continue
			}
			seen[word] = true
			tags = append(tags, word)
			if len(tags) >= policy.MaxTags {
				return tags
			}
		}
	}
	return tags
}

func isStopWord(word string, stopWords []string) bool {
	for _, s := range stopWords {
		if word == s {
			return true
		}
	}
	return false
}

// ParseCategoryMeta parses a single fallback category description file.
// Lines shaped like "key: value" are interpreted for the known keys; all
// other lines accumulate into the description.
func (p *MetadataParser) ParseCategoryMeta(raw []byte) (*CategoryFields, []string) {
	var notes []string

	content, truncated := p.validator.SanitizeText(string(raw))
	if truncated {
		notes = append(notes, "Text content truncated due to length limit")
	}
	if content == "" {
		return &CategoryFields{}, notes
	}

	fields := &CategoryFields{}
	var descriptionLines []string

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			descriptionLines = append(descriptionLines, line)
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "slug", "short", "short_description":
			fields.Slug = strings.TrimSpace(value)
		case "description", "long", "long_description", "details":
			fields.Description = strings.TrimSpace(value)
		default:
			descriptionLines = append(descriptionLines, line)
		}
	}

	if fields.Description == "" && len(descriptionLines) > 0 {
		fields.Description = strings.Join(descriptionLines, "\n")
	}
	if fields.Slug == "" && len(descriptionLines) > 0 {
		first := descriptionLines[0]
		if len(first) > 50 {
			first = first[:50]
		}
		fields.Slug = first
	}
	return fields, notes
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// escapeBareBackslashes doubles any backslash that does not begin a
// recognized JSON escape sequence.
func escapeBareBackslashes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(s) && strings.IndexByte(`"\/nrtbf`, s[i+1]) >= 0 {
			b.WriteByte(c)
			b.WriteByte(s[i+1])
			i++
			continue
		}
		b.WriteString(`\\`)
	}
	return b.String()
}

// escapeQuotesBeforeWord escapes an unescaped quote that immediately
// precedes a word character.
func escapeQuotesBeforeWord(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' && i+1 < len(s) && isWordByte(s[i+1]) && (i == 0 || s[i-1] != '\\') {
			b.WriteString(`\"`)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isWordByte(c byte) bool {
	return c == '_' ||
		(c >= '0' && c <= '9') ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z')
}

// insertMissingIngredientsKey repairs the specific vendor defect where a
// "Description" value is immediately followed by a bare string value with no
// field name.
func insertMissingIngredientsKey(s string) string {
	return missingIngredients.ReplaceAllString(s, `$1, "Ingredients": $2`)
}
