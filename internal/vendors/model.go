package vendors

import (
	"errors"
	"time"
)

// Vendor is a supplier orders and receipts are raised against.
type Vendor struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilters represents vendor list filters.
type ListFilters struct {
	Page    int
	Limit   int
	Search  string
	SortBy  string
	SortDir string
}

var (
	ErrNotFound   = errors.New("vendors: not found")
	ErrDuplicate  = errors.New("vendors: duplicate code")
	ErrValidation = errors.New("vendors: validation failed")
)
