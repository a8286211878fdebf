package validation

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestValidatePath(t *testing.T) {
	v := New(DefaultPolicy())

	t.Run("accepts normal relative paths", func(t *testing.T) {
		assert.NoError(t, v.ValidatePath("1_SPH_spices/main.jpg"))
		assert.NoError(t, v.ValidatePath("1_SPH_spices/sph_products/SPH_turmeric/data.txt"))
	})

	t.Run("rejects empty path", func(t *testing.T) {
		assert.Error(t, v.ValidatePath(""))
	})

	t.Run("rejects parent directory traversal", func(t *testing.T) {
		assert.Error(t, v.ValidatePath("../etc/passwd"))
		assert.Error(t, v.ValidatePath("category/../../escape.txt"))
		assert.Error(t, v.ValidatePath("category/..secret.txt"))
	})

	t.Run("rejects absolute path outside scratch space", func(t *testing.T) {
		assert.Error(t, v.ValidatePath("/etc/passwd"))
	})

	t.Run("rejects overlong filename", func(t *testing.T) {
		name := strings.Repeat("a", 256) + ".txt"
		assert.Error(t, v.ValidatePath("category/"+name))
	})

	t.Run("rejects excessive depth", func(t *testing.T) {
		deep := strings.Repeat("d/", 16) + "file.txt"
		assert.Error(t, v.ValidatePath(deep))
	})
}

func TestValidateContent(t *testing.T) {
	v := New(DefaultPolicy())

	assert.NoError(t, v.ValidateContent("photo.jpg", 1024))
	assert.Error(t, v.ValidateContent("photo.jpg", 11*1024*1024))

	assert.NoError(t, v.ValidateContent("data.txt", 1024))
	assert.Error(t, v.ValidateContent("data.txt", 2*1024*1024))

	err := v.ValidateContent("binary.exe", 10)
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
}

func TestSanitizeText(t *testing.T) {
	v := New(DefaultPolicy())

	t.Run("strips html tags", func(t *testing.T) {
		out, truncated := v.SanitizeText("hello <script>alert(1)</script>world")
		assert.False(t, truncated)
		assert.NotContains(t, out, "<script>")
		assert.Contains(t, out, "hello")
	})

	t.Run("strips dangerous uri schemes", func(t *testing.T) {
		out, _ := v.SanitizeText("click javascript:alert(1) here")
		assert.NotContains(t, out, "javascript:")
	})

	t.Run("truncates long text", func(t *testing.T) {
		out, truncated := v.SanitizeText(strings.Repeat("x", 6000))
		assert.True(t, truncated)
		assert.LessOrEqual(t, len(out), 5000)
	})

	t.Run("truncates on a rune boundary", func(t *testing.T) {
		out, truncated := v.SanitizeText(strings.Repeat("x", 4999) + "ééé")
		assert.True(t, truncated)
		assert.True(t, utf8.ValidString(out))
		assert.LessOrEqual(t, utf8.RuneCountInString(out), 5000)
	})

	t.Run("empty input", func(t *testing.T) {
		out, truncated := v.SanitizeText("")
		assert.Equal(t, "", out)
		assert.False(t, truncated)
	})
}

func TestValidateNames(t *testing.T) {
	v := New(DefaultPolicy())

	assert.True(t, v.ValidateCategoryName("Spices and Herbs"))
	assert.False(t, v.ValidateCategoryName("x"))
	assert.False(t, v.ValidateCategoryName(strings.Repeat("a", 101)))
	assert.False(t, v.ValidateCategoryName("bad <script> name"))
	assert.False(t, v.ValidateCategoryName("click onload=evil"))

	assert.True(t, v.ValidateProductName("turmeric powder"))
	assert.True(t, v.ValidateProductName(strings.Repeat("a", 200)))
	assert.False(t, v.ValidateProductName(strings.Repeat("a", 201)))
}

func TestFieldWhitelists(t *testing.T) {
	v := New(DefaultPolicy())

	assert.True(t, v.ValidateProductFields([]string{"Description", "Ingredients"}))
	assert.True(t, v.ValidateProductFields([]string{"Features & Benefits", "Usage Recommendation"}))
	assert.False(t, v.ValidateProductFields([]string{"Description", "Brand"}))

	assert.True(t, v.ValidateCategoryFields([]string{"slug", "description"}))
	assert.False(t, v.ValidateCategoryFields([]string{"slug", "seo_title"}))
}

func TestFileTypeChecks(t *testing.T) {
	v := New(DefaultPolicy())

	assert.True(t, v.IsImageFile("photo.JPG"))
	assert.True(t, v.IsImageFile("photo.webp"))
	assert.False(t, v.IsImageFile("photo.gif.exe"))

	assert.True(t, v.IsTextFile("data.txt"))
	assert.True(t, v.IsTextFile("data.json"))
	assert.False(t, v.IsTextFile("data.csv"))
}

func TestIsProductCode(t *testing.T) {
	v := New(DefaultPolicy())

	for _, code := range []string{"SPH", "BLS", "PKL", "MUK", "FRP", "IFP"} {
		assert.True(t, v.IsProductCode(code), code)
	}
	assert.False(t, v.IsProductCode("sph"))
	assert.False(t, v.IsProductCode("XYZ"))
}
