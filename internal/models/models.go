package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	MaxRefreshTokens = 5
)

func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

type Address struct {
	Street  string `json:"street,omitempty"  validate:"omitempty,max=200"`
	City    string `json:"city,omitempty"    validate:"omitempty,max=100"`
	State   string `json:"state,omitempty"   validate:"omitempty,max=100"`
	ZipCode string `json:"zipCode,omitempty" validate:"omitempty,max=20"`
	Country string `json:"country,omitempty" validate:"omitempty,max=100"`
}

type Account struct {
	ID            string     `gorm:"type:varchar(36);primaryKey"   json:"id"`
	Name          string     `gorm:"size:50;not null"              json:"name"`
	Email         string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash  string     `gorm:"not null"                      json:"-"`
	Role          string     `gorm:"size:16;not null"              json:"role"`
	IsActive      bool       `gorm:"not null"                      json:"isActive"`
	LastLogin     *time.Time `                                     json:"lastLogin,omitempty"`
	RefreshTokens []string   `gorm:"type:text;serializer:json"     json:"-"`
	Phone         string     `gorm:"size:32"                       json:"phone,omitempty"`
	Address       *Address   `gorm:"type:text;serializer:json"     json:"address,omitempty"`
	CreatedAt     time.Time  `                                     json:"createdAt"`
	UpdatedAt     time.Time  `                                     json:"updatedAt"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// PushRefreshToken appends token and keeps only the newest MaxRefreshTokens.
func (a *Account) PushRefreshToken(token string) {
	a.RefreshTokens = append(slices.Clone(a.RefreshTokens), token)
	if n := len(a.RefreshTokens); n > MaxRefreshTokens {
		a.RefreshTokens = a.RefreshTokens[n-MaxRefreshTokens:]
	}
}

func (a *Account) HasRefreshToken(token string) bool {
	return slices.Contains(a.RefreshTokens, token)
}

// RemoveRefreshToken reports whether the token was present.
func (a *Account) RemoveRefreshToken(token string) bool {
	i := slices.Index(a.RefreshTokens, token)
	if i < 0 {
		return false
	}
	a.RefreshTokens = slices.Delete(slices.Clone(a.RefreshTokens), i, i+1)
	return true
}
