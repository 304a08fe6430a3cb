package domain

import "github.com/shopspring/decimal"

type ProductID string

// Product is catalog data. The core never mutates price or stock; checkout
// validates against Stock but reserves quantity in the cart instead of
// decrementing here.
type Product struct {
	ID          ProductID
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	ImageURL    string
}
