package models

// ProcessedImage is a normalized image payload ready for storage.
type ProcessedImage struct {
	Filename string
	Data     []byte
	Width    int
	Height   int
}

// CategoryDraft is the transient representation of a category parsed from a
// catalog archive. It is consumed by the catalog store upsert and discarded.
type CategoryDraft struct {
	Name                 string
	Code                 string
	DisplayOrder         *int
	Slug                 string
	Description          string
	SecondaryDescription string
	PrimaryImage         *ProcessedImage
	SecondaryImage       *ProcessedImage
}

// ProductDraft is the transient representation of a product parsed from a
// catalog archive.
type ProductDraft struct {
	Name                 string
	Description          string
	SecondaryDescription string
	Tags                 []string
	Images               []ProcessedImage
}
