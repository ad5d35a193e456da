package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProductSnapshot struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type LineItem struct {
	ID       string          `json:"id"`
	Product  ProductSnapshot `json:"product"`
	Quantity int             `json:"quantity"`
	AddedAt  time.Time       `json:"addedAt"`
}

// Cart is owned by an account (UserID set, stored in the database) or by a
// guest (UserID empty, stored in the guest cart store).
type Cart struct {
	ID        string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string     `gorm:"size:36;uniqueIndex"         json:"userId,omitempty"`
	Items     []LineItem `gorm:"type:text;serializer:json"   json:"items"`
	Subtotal  float64    `gorm:"not null"                    json:"subtotal"`
	Tax       float64    `gorm:"not null"                    json:"tax"`
	Shipping  float64    `gorm:"not null"                    json:"shipping"`
	Total     float64    `gorm:"not null"                    json:"total"`
	CreatedAt time.Time  `                                   json:"createdAt"`
	UpdatedAt time.Time  `                                   json:"updatedAt"`
}

func (c *Cart) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func (c *Cart) IsGuest() bool {
	return c.UserID == ""
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}
