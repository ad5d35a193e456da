package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderShipped    = "shipped"
	OrderDelivered  = "delivered"
	OrderCancelled  = "cancelled"

	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

func ValidOrderStatus(s string) bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type Order struct {
	ID              string     `gorm:"type:varchar(36);primaryKey"  json:"id"`
	OrderNumber     string     `gorm:"size:32;uniqueIndex;not null" json:"orderNumber"`
	UserID          string     `gorm:"size:36;index;not null"       json:"userId"`
	Items           []LineItem `gorm:"type:text;serializer:json"    json:"items"`
	Subtotal        float64    `gorm:"not null"                     json:"subtotal"`
	Tax             float64    `gorm:"not null"                     json:"tax"`
	Shipping        float64    `gorm:"not null"                     json:"shipping"`
	Total           float64    `gorm:"not null"                     json:"total"`
	Status          string     `gorm:"size:16;not null;index"       json:"status"`
	PaymentStatus   string     `gorm:"size:16;not null"             json:"paymentStatus"`
	PaymentMethod   string     `gorm:"size:32"                      json:"paymentMethod,omitempty"`
	ShippingAddress Address    `gorm:"type:text;serializer:json"    json:"shippingAddress"`
	BillingAddress  *Address   `gorm:"type:text;serializer:json"    json:"billingAddress,omitempty"`
	Notes           string     `gorm:"size:500"                     json:"notes,omitempty"`
	TrackingNumber  string     `gorm:"size:64"                      json:"trackingNumber,omitempty"`
	CreatedAt       time.Time  `                                    json:"createdAt"`
	UpdatedAt       time.Time  `                                    json:"updatedAt"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}
