package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Product struct {
	ID            string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name          string    `gorm:"size:100;not null;index"     json:"name"`
	Description   string    `gorm:"type:text;not null"          json:"description"`
	Price         float64   `gorm:"not null"                    json:"price"`
	Images        []string  `gorm:"type:text;serializer:json"   json:"images"`
	CategoryID    *string   `gorm:"size:36;index"               json:"categoryId,omitempty"`
	InStock       bool      `gorm:"not null"                    json:"inStock"`
	StockQuantity int       `gorm:"not null"                    json:"stockQuantity"`
	Rating        float64   `gorm:"not null"                    json:"rating"`
	Reviews       int       `gorm:"not null"                    json:"reviews"`
	SalesCount    int       `gorm:"not null"                    json:"salesCount"`
	Featured      bool      `gorm:"not null;index"              json:"featured"`
	CreatedAt     time.Time `                                   json:"createdAt"`
	UpdatedAt     time.Time `                                   json:"updatedAt"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (p *Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{ID: p.ID, Name: p.Name, Price: p.Price}
}

type Category struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string    `gorm:"size:50;uniqueIndex;not null" json:"name"`
	Slug        string    `gorm:"size:64;uniqueIndex;not null" json:"slug"`
	Description string    `gorm:"size:500"                     json:"description,omitempty"`
	Image       string    `                                    json:"image,omitempty"`
	IsActive    bool      `gorm:"not null"                     json:"isActive"`
	ParentID    *string   `gorm:"size:36;index"                json:"parentId,omitempty"`
	CreatedAt   time.Time `                                    json:"createdAt"`
	UpdatedAt   time.Time `                                    json:"updatedAt"`
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
