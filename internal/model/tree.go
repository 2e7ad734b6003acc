package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tree represents an adoptable tree in the catalogue.
type Tree struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Species     string          `json:"species" db:"species"`
	ImageURL    string          `json:"imageUrl" db:"image_url"`
	Price       decimal.Decimal `json:"price" db:"price"`
	OxygenYield decimal.Decimal `json:"oxygenYield" db:"oxygen_yield"` // kg per year
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
}
