package domain

import "errors"

// Error taxonomy of the core. Every operation reports failures as one of
// these (possibly wrapped); nothing panics past the service boundary.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProductNotFound   = errors.New("product not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInsufficientStock = errors.New("requested quantity exceeds available stock")
	ErrEmptyCart         = errors.New("cart is empty")
)
