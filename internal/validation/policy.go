package validation

// Policy holds the static limits applied to every bulk upload. It is an
// immutable value handed to each component's constructor; components never
// reach for shared globals.
type Policy struct {
	// Archive limits
	MaxArchiveSize      int64
	MinArchiveSize      int64
	MaxUncompressedSize int64
	MaxEntryCount       int

	// Path limits
	MaxFilenameLength int
	MaxDirectoryDepth int

	// Per-file-type size ceilings
	MaxTextFileSize  int64
	MaxImageFileSize int64

	// Text content limits
	MaxTextLength int

	// Name limits
	MinNameLength         int
	MaxCategoryNameLength int
	MaxProductNameLength  int

	// Allowed extensions (lowercase, with leading dot)
	AllowedImageExtensions []string
	AllowedTextExtensions  []string

	// Accepted MIME types for the uploaded archive
	AllowedArchiveMIMETypes []string

	// Substrings that disqualify a name outright
	SuspiciousPatterns []string

	// Whitelist of product directory code prefixes
	ProductCodes []string

	// Field whitelists for parsed metadata
	AllowedCategoryFields []string
	AllowedProductFields  []string

	// Tag derivation
	MaxTags   int
	StopWords []string
}

// DefaultPolicy returns the limits used in production.
func DefaultPolicy() Policy {
	return Policy{
		MaxArchiveSize:      100 * 1024 * 1024,
		MinArchiveSize:      1024,
		MaxUncompressedSize: 500 * 1024 * 1024,
		MaxEntryCount:       10000,

		MaxFilenameLength: 255,
		MaxDirectoryDepth: 15,

		MaxTextFileSize:  1024 * 1024,
		MaxImageFileSize: 10 * 1024 * 1024,

		MaxTextLength: 5000,

		MinNameLength:         2,
		MaxCategoryNameLength: 100,
		MaxProductNameLength:  200,

		AllowedImageExtensions: []string{".jpg", ".jpeg", ".png", ".webp"},
		AllowedTextExtensions:  []string{".txt", ".json"},

		AllowedArchiveMIMETypes: []string{"application/zip", "application/x-zip-compressed"},

		SuspiciousPatterns: []string{
			"<script", "javascript:", "data:", "vbscript:",
			"onload=", "onerror=", "onclick=", "onmouseover=",
		},

		ProductCodes: []string{"SPH", "BLS", "PKL", "MUK", "FRP", "IFP"},

		AllowedCategoryFields: []string{"slug", "description", "secondary_description"},
		AllowedProductFields: []string{
			"description", "secondary_description", "tags", "price", "weight",
			"Description", "Ingredients", "Features & Benefits", "Usage Recommendation",
		},

		MaxTags:   10,
		StopWords: []string{"and", "the", "for", "with", "helps", "aids"},
	}
}
