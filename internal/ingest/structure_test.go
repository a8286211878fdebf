package ingest

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-ingestion-service/internal/validation"
)

func newTestInterpreter() *Interpreter {
	v := validation.New(validation.DefaultPolicy())
	return NewInterpreter(v, NewMetadataParser(v, nil), NewImageProcessor(v, nil), nil)
}

func writeImageAt(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, imaging.Save(imaging.New(32, 32, color.NRGBA{R: 120, G: 60, B: 30, A: 255}), path))
}

func writeFileAt(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func buildCatalogTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	spices := filepath.Join(root, "1_SPH_Spice Powders")
	writeImageAt(t, filepath.Join(spices, "main.jpg"))
	writeImageAt(t, filepath.Join(spices, "extra.jpg"))
	writeFileAt(t, filepath.Join(spices, "SPH_txt_short.txt"), "Short desc")
	writeFileAt(t, filepath.Join(spices, "SPH_txt_long.txt"), "Long desc")

	turmeric := filepath.Join(spices, "sph_products", "SPH_turmeric powder")
	writeFileAt(t, filepath.Join(turmeric, "SPH_turmeric powder.txt"),
		`{"Description": "Golden spice. Pure.", "Ingredients": "Turmeric"}`)
	writeImageAt(t, filepath.Join(turmeric, "photo.jpg"))

	require.NoError(t, os.MkdirAll(filepath.Join(spices, "sph_products", "BAD_dirname"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(spices, "sph_products", ".hidden"), 0o755))

	blends := filepath.Join(root, "2_BLS_Blends")
	writeFileAt(t, filepath.Join(blends, "cat.txt"), "slug: blends\ndescription: Blend things")

	require.NoError(t, os.MkdirAll(filepath.Join(root, "not_a_category"), 0o755))

	return root
}

func TestInterpretCatalog(t *testing.T) {
	it := newTestInterpreter()
	root := buildCatalogTree(t)

	candidates, notes, err := it.InterpretCatalog(root)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	var foundSkipNote bool
	for _, note := range notes {
		if note == "Skipped invalid directory: not_a_category (expected format: number_CODE_name)" {
			foundSkipNote = true
		}
	}
	assert.True(t, foundSkipNote)

	spices := candidates[0]
	assert.Equal(t, "Spice Powders", spices.Draft.Name)
	assert.Equal(t, "SPH", spices.Draft.Code)
	require.NotNil(t, spices.Draft.DisplayOrder)
	assert.Equal(t, 1, *spices.Draft.DisplayOrder)
	assert.Equal(t, "Short desc", spices.Draft.SecondaryDescription)
	assert.Equal(t, "Long desc", spices.Draft.Description)
	assert.NotNil(t, spices.Draft.PrimaryImage)
	assert.NotNil(t, spices.Draft.SecondaryImage)
	assert.True(t, spices.HasProductsDir)
	assert.Equal(t, 2, spices.ProductsExpected)
	require.Len(t, spices.Products, 2)

	// Sorted order puts BAD_dirname first.
	bad := spices.Products[0]
	require.NotNil(t, bad.Err)
	assert.Equal(t, "Invalid directory name", bad.Err.ErrorType)
	assert.Equal(t, "Spice Powders", bad.Err.Category)
	assert.Equal(t, "BAD_dirname", bad.Err.Given)

	turmeric := spices.Products[1]
	require.Nil(t, turmeric.Err)
	require.NotNil(t, turmeric.Draft)
	assert.Equal(t, "turmeric powder", turmeric.Draft.Name)
	assert.Equal(t, "Golden spice, Pure,", turmeric.Draft.Description)
	assert.Equal(t, "Turmeric", turmeric.Draft.SecondaryDescription)
	assert.Len(t, turmeric.Draft.Images, 1)

	blends := candidates[1]
	assert.Equal(t, "Blends", blends.Draft.Name)
	assert.Equal(t, "blends", blends.Draft.Slug)
	assert.Equal(t, "Blend things", blends.Draft.Description)
	assert.Nil(t, blends.Draft.PrimaryImage)
	assert.False(t, blends.HasProductsDir)

	var foundProductsDirNote bool
	for _, note := range blends.Notes {
		if note == "No products directory found for category: Blends (expected: BLS_products)" {
			foundProductsDirNote = true
		}
	}
	assert.True(t, foundProductsDirNote)
}

func TestInterpretCatalogEmptyRoot(t *testing.T) {
	it := newTestInterpreter()

	_, _, err := it.InterpretCatalog(t.TempDir())
	assert.ErrorIs(t, err, ErrNoCatalogDirs)
}

func TestCategoryDirNameParsing(t *testing.T) {
	assert.True(t, isCategoryDirName("1_SPH_spices and herbs"))
	assert.True(t, isCategoryDirName("12_BLS_blends"))
	assert.False(t, isCategoryDirName("SPH_spices"))
	assert.False(t, isCategoryDirName("one_SPH_spices"))
	assert.False(t, isCategoryDirName("plain"))

	assert.Equal(t, "spices and herbs", extractCategoryName("1_SPH_spices and herbs"))
	assert.Equal(t, "SPH", extractCategoryName("1_SPH_"))
	assert.Equal(t, "SPH", extractCategoryCode("1_SPH_spices"))

	order := extractDisplayOrder("7_PKL_pickles")
	require.NotNil(t, order)
	assert.Equal(t, 7, *order)
	assert.Nil(t, extractDisplayOrder("abc_PKL_pickles"))
}

func TestProductDirNameParsing(t *testing.T) {
	v := validation.New(validation.DefaultPolicy())

	assert.True(t, isProductDirName("SPH_turmeric", v))
	assert.True(t, isProductDirName("BLS_chai masala tea", v))
	assert.False(t, isProductDirName("XYZ_thing", v))
	assert.False(t, isProductDirName("SPH_", v))
	assert.False(t, isProductDirName("nopattern", v))

	assert.Equal(t, "turmeric", extractProductName("SPH_turmeric"))
	assert.Equal(t, "chai masala tea", extractProductName("BLS_chai masala tea"))
}
