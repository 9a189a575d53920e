package domain

import (
	"strings"
	"time"
)

// ItemID is the stable identity assigned by the inventory layer.
type ItemID int64

// Category is a free-form inventory label.
type Category string

const (
	CategoryMeat    Category = "meat"
	CategoryDairy   Category = "dairy"
	CategorySeafood Category = "seafood"
)

// Normalize lowercases and trims the label so "Meat " matches "meat".
func (c Category) Normalize() Category {
	return Category(strings.ToLower(strings.TrimSpace(string(c))))
}

// InventoryItem is owned by the inventory layer. The pipeline only reads it and
// flips IsSpoiled to true; it never resets the flag, creates or deletes items.
type InventoryItem struct {
	ID        ItemID     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Category  Category   `json:"category" yaml:"category"`
	ExpiryAt  *time.Time `json:"expiry_date" yaml:"expiry_date"`
	IsSpoiled bool       `json:"is_spoiled" yaml:"is_spoiled"`
}
