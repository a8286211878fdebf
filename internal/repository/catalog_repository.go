package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"catalog-ingestion-service/internal/ingest"
	"catalog-ingestion-service/internal/models"
)

const (
	categoryMediaDir = "category_images"
	productMediaDir  = "products"

	defaultProductPrice  = 2000.00
	defaultProductWeight = "100gms"
)

var (
	ErrCategoryNotFound = errors.New("category not found")

	slugCharsRE = regexp.MustCompile(`[^a-z0-9-]+`)
)

// CatalogRepository persists categories, products, variants and their media
// files. Upserts match by exact name so re-ingesting the same archive
// converges instead of duplicating.
type CatalogRepository struct {
	db       *gorm.DB
	redis    *redis.Client
	mediaDir string
}

func NewCatalogRepository(db *gorm.DB, redis *redis.Client, mediaDir string) *CatalogRepository {
	return &CatalogRepository{
		db:       db,
		redis:    redis,
		mediaDir: mediaDir,
	}
}

// invalidateCatalogCaches drops the read caches served to the storefront
// services after a bulk ingestion touches the catalog.
func (r *CatalogRepository) invalidateCatalogCaches(ctx context.Context) {
	if r.redis == nil {
		return
	}
	for _, pattern := range []string{"catalog:categories:*", "catalog:products:*"} {
		keys, _ := r.redis.Keys(ctx, pattern).Result()
		if len(keys) > 0 {
			r.redis.Del(ctx, keys...)
		}
	}
}

// Ping verifies the database connection is usable.
func (r *CatalogRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CategoryExists checks for a category by exact name.
func (r *CatalogRepository) CategoryExists(ctx context.Context, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Category{}).Where("name = ?", name).Count(&count).Error
	return count > 0, err
}

// GetCategoryByName retrieves a category by exact name.
func (r *CatalogRepository) GetCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	var category models.Category
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&category).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return &category, nil
}

// UpsertCategory creates the category or updates only the fields the draft
// actually carries. Image files are written before the row is committed.
func (r *CatalogRepository) UpsertCategory(ctx context.Context, draft models.CategoryDraft) (*ingest.CategoryUpsert, error) {
	result := &ingest.CategoryUpsert{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var category models.Category
		err := tx.Where("name = ?", draft.Name).First(&category).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			slug, err := r.uniqueCategorySlug(tx, draft)
			if err != nil {
				return err
			}
			category = models.Category{
				Name:                 draft.Name,
				Slug:                 slug,
				Description:          draft.Description,
				SecondaryDescription: draft.SecondaryDescription,
				DisplayOrder:         draft.DisplayOrder,
				IsActive:             true,
			}
			if draft.PrimaryImage != nil {
				path, err := r.writeMediaFile(categoryMediaDir, category.Slug, draft.PrimaryImage)
				if err != nil {
					return err
				}
				category.ImagePath = path
				result.ImagesStored++
			}
			if draft.SecondaryImage != nil {
				path, err := r.writeMediaFile(categoryMediaDir, category.Slug, draft.SecondaryImage)
				if err != nil {
					return err
				}
				category.SecondaryImagePath = path
				result.ImagesStored++
			}
			if err := tx.Create(&category).Error; err != nil {
				return err
			}
			result.Created = true

		case err != nil:
			return err

		default:
			updates := make(map[string]interface{})
			if draft.Description != "" && draft.Description != category.Description {
				updates["description"] = draft.Description
			}
			if draft.SecondaryDescription != "" && draft.SecondaryDescription != category.SecondaryDescription {
				updates["secondary_description"] = draft.SecondaryDescription
			}
			if draft.DisplayOrder != nil && (category.DisplayOrder == nil || *category.DisplayOrder != *draft.DisplayOrder) {
				updates["display_order"] = *draft.DisplayOrder
			}
			if draft.PrimaryImage != nil {
				path, err := r.writeMediaFile(categoryMediaDir, category.Slug, draft.PrimaryImage)
				if err != nil {
					return err
				}
				if path != category.ImagePath {
					updates["image_path"] = path
				}
				result.ImagesStored++
			}
			if draft.SecondaryImage != nil {
				path, err := r.writeMediaFile(categoryMediaDir, category.Slug, draft.SecondaryImage)
				if err != nil {
					return err
				}
				if path != category.SecondaryImagePath {
					updates["secondary_image_path"] = path
				}
				result.ImagesStored++
			}
			if len(updates) > 0 {
				if err := tx.Model(&category).Updates(updates).Error; err != nil {
					return err
				}
			}
		}

		result.ID = category.ID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("category upsert failed for %q: %w", draft.Name, err)
	}

	r.invalidateCatalogCaches(ctx)
	return result, nil
}

// UpsertProduct creates or updates a product together with its images and a
// default price-weight variant when none exist.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, categoryID uuid.UUID, draft models.ProductDraft) (*ingest.ProductUpsert, error) {
	result := &ingest.ProductUpsert{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		err := tx.Where("name = ?", draft.Name).First(&product).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			product = models.Product{
				CategoryID:           categoryID,
				Name:                 draft.Name,
				Description:          draft.Description,
				SecondaryDescription: draft.SecondaryDescription,
				Tags:                 models.StringTags(draft.Tags),
				IsActive:             true,
			}
			if err := tx.Create(&product).Error; err != nil {
				return err
			}
			result.Created = true

		case err != nil:
			return err

		default:
			updates := make(map[string]interface{})
			if draft.Description != "" && draft.Description != product.Description {
				updates["description"] = draft.Description
			}
			if draft.SecondaryDescription != "" && draft.SecondaryDescription != product.SecondaryDescription {
				updates["secondary_description"] = draft.SecondaryDescription
			}
			if tags := models.StringTags(draft.Tags); tags != nil && !tagsEqual(product.Tags, tags) {
				updates["tags"] = tags
			}
			if len(updates) > 0 {
				if err := tx.Model(&product).Updates(updates).Error; err != nil {
					return err
				}
			}
		}

		stored, err := r.storeProductImages(tx, &product, draft)
		if err != nil {
			return err
		}
		result.ImagesStored = stored
		result.ID = product.ID

		return r.ensureDefaultPriceWeight(tx, product.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("product upsert failed for %q: %w", draft.Name, err)
	}

	r.invalidateCatalogCaches(ctx)
	return result, nil
}

// storeProductImages writes new image files and rows, skipping paths the
// product already has. The first image a product ever receives becomes its
// primary image.
func (r *CatalogRepository) storeProductImages(tx *gorm.DB, product *models.Product, draft models.ProductDraft) (int, error) {
	if len(draft.Images) == 0 {
		return 0, nil
	}

	var existing []models.ProductImage
	if err := tx.Where("product_id = ?", product.ID).Find(&existing).Error; err != nil {
		return 0, err
	}
	havePrimary := false
	knownPaths := make(map[string]bool, len(existing))
	for _, img := range existing {
		knownPaths[img.ImagePath] = true
		if img.IsPrimary {
			havePrimary = true
		}
	}

	slug := generateSlug(product.Name)
	stored := 0
	for i := range draft.Images {
		img := &draft.Images[i]
		relPath := filepath.Join(productMediaDir, slug, img.Filename)
		if knownPaths[relPath] {
			continue
		}
		if _, err := r.writeMediaFile(productMediaDir, slug, img); err != nil {
			return stored, err
		}
		record := models.ProductImage{
			ProductID: product.ID,
			ImagePath: relPath,
			IsPrimary: !havePrimary,
		}
		if err := tx.Create(&record).Error; err != nil {
			return stored, err
		}
		havePrimary = true
		knownPaths[relPath] = true
		stored++
	}
	return stored, nil
}

func (r *CatalogRepository) ensureDefaultPriceWeight(tx *gorm.DB, productID uuid.UUID) error {
	var count int64
	if err := tx.Model(&models.PriceWeight{}).Where("product_id = ?", productID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return tx.Create(&models.PriceWeight{
		ProductID: productID,
		Price:     defaultProductPrice,
		Weight:    defaultProductWeight,
		Inventory: 0,
	}).Error
}

// writeMediaFile writes the processed image under mediaDir/kind/owner and
// returns the path relative to the media root.
func (r *CatalogRepository) writeMediaFile(kind, owner string, img *models.ProcessedImage) (string, error) {
	dir := filepath.Join(r.mediaDir, kind, owner)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}
	relPath := filepath.Join(kind, owner, img.Filename)
	if err := os.WriteFile(filepath.Join(r.mediaDir, relPath), img.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write media file %s: %w", img.Filename, err)
	}
	return relPath, nil
}

// uniqueCategorySlug derives a slug from the draft, falling back to the
// category name and suffixing a counter on collision.
func (r *CatalogRepository) uniqueCategorySlug(tx *gorm.DB, draft models.CategoryDraft) (string, error) {
	base := generateSlug(draft.Slug)
	if base == "" {
		base = generateSlug(draft.Name)
	}
	if base == "" {
		base = "category"
	}

	return resolveSlugCollision(base, func(slug string) (bool, error) {
		var count int64
		err := tx.Model(&models.Category{}).Where("slug = ? AND name <> ?", slug, draft.Name).Count(&count).Error
		if err != nil {
			return false, err
		}
		return count > 0, nil
	})
}

// resolveSlugCollision suffixes an incrementing counter onto base until
// taken reports the slug free. Lookup errors propagate to the caller.
func resolveSlugCollision(base string, taken func(string) (bool, error)) (string, error) {
	slug := base
	for i := 2; ; i++ {
		inUse, err := taken(slug)
		if err != nil {
			return "", err
		}
		if !inUse {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

// tagsEqual compares two stored tag arrays by their JSON form.
func tagsEqual(a, b *models.JSONArray) bool {
	if a == nil || b == nil {
		return a == b
	}
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}

func generateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")
	slug = slugCharsRE.ReplaceAllString(slug, "")
	return strings.Trim(slug, "-")
}
