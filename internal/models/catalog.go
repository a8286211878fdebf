package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JSON type for PostgreSQL JSONB (object/map)
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSON)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// JSONArray type for PostgreSQL JSONB (array)
type JSONArray []interface{}

func (j JSONArray) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONArray) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONArray, 0)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// StringTags converts a slice of tag strings into a JSONArray for storage.
func StringTags(tags []string) *JSONArray {
	if len(tags) == 0 {
		return nil
	}
	arr := make(JSONArray, 0, len(tags))
	for _, t := range tags {
		arr = append(arr, t)
	}
	return &arr
}

// Category represents a catalog category
type Category struct {
	ID                   uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name                 string    `json:"name" gorm:"not null;uniqueIndex"`
	Slug                 string    `json:"slug" gorm:"not null;uniqueIndex"`
	Description          string    `json:"description"`
	SecondaryDescription string    `json:"secondaryDescription,omitempty"`
	DisplayOrder         *int      `json:"displayOrder,omitempty"`
	ImagePath            string    `json:"imagePath,omitempty"`
	SecondaryImagePath   string    `json:"secondaryImagePath,omitempty"`
	IsActive             bool      `json:"isActive" gorm:"default:true"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`

	// Relationships
	Products []Product `json:"products,omitempty" gorm:"foreignKey:CategoryID"`
}

// Product represents a catalog product
type Product struct {
	ID                   uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CategoryID           uuid.UUID  `json:"categoryId" gorm:"type:uuid;not null;index"`
	Name                 string     `json:"name" gorm:"not null;uniqueIndex"`
	Description          string     `json:"description"`
	SecondaryDescription string     `json:"secondaryDescription,omitempty"`
	Tags                 *JSONArray `json:"tags,omitempty" gorm:"type:jsonb"`
	IsActive             bool       `json:"isActive" gorm:"default:true"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`

	// Relationships
	Category     *Category      `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Images       []ProductImage `json:"images,omitempty" gorm:"foreignKey:ProductID"`
	PriceWeights []PriceWeight  `json:"priceWeights,omitempty" gorm:"foreignKey:ProductID"`
}

// ProductImage represents an image attached to a product
type ProductImage struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ProductID   uuid.UUID `json:"productId" gorm:"type:uuid;not null;index"`
	ImagePath   string    `json:"imagePath" gorm:"not null"`
	Description string    `json:"description,omitempty"`
	IsPrimary   bool      `json:"isPrimary" gorm:"default:false"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PriceWeight represents a price/weight variant of a product
type PriceWeight struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ProductID uuid.UUID `json:"productId" gorm:"type:uuid;not null;index"`
	Price     float64   `json:"price" gorm:"type:numeric(10,2);not null"`
	Weight    string    `json:"weight" gorm:"not null"`
	Inventory int       `json:"inventory" gorm:"default:0"`
	CreatedAt time.Time `json:"createdAt"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool  `json:"success"`
	Error   Error `json:"error"`
}

// Error represents error details
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TableName returns the table name for the Category model
func (Category) TableName() string {
	return "categories"
}

// TableName returns the table name for the Product model
func (Product) TableName() string {
	return "products"
}

// TableName returns the table name for the ProductImage model
func (ProductImage) TableName() string {
	return "product_images"
}

// TableName returns the table name for the PriceWeight model
func (PriceWeight) TableName() string {
	return "price_weights"
}
