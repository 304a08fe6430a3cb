// Package storage declares the persistence collaborators of the shop core.
// Each backend (file, mongo, postgres) implements the same contract; the core
// never assumes multi-record transactions are available.
package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/nazeru/shop-backend-go/internal/shop/domain"
)

// ErrNotFound is returned by lookups that match nothing. The service layer
// translates it into the domain taxonomy.
var ErrNotFound = errors.New("not found")

// ErrExists is returned when a create collides with an existing identifier.
var ErrExists = errors.New("already exists")

// Catalog is the product collection, read-mostly from the core's perspective.
type Catalog interface {
	FindProduct(ctx context.Context, id domain.ProductID) (domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	// InsertProduct assigns the next sequential id when p.ID is empty and
	// returns the stored product.
	InsertProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	DeleteProduct(ctx context.Context, id domain.ProductID) error
}

// CartStore holds pending cart lines, at most one per product.
type CartStore interface {
	// UpsertCartLine creates the line for productID or folds quantity and
	// quantity × unitPrice into the existing one.
	UpsertCartLine(ctx context.Context, productID domain.ProductID, quantity int, unitPrice decimal.Decimal) error
	ListCart(ctx context.Context) ([]domain.CartLine, error)
	ClearCart(ctx context.Context) error
}

// OrderStore is the order ledger.
type OrderStore interface {
	CreateOrder(ctx context.Context, o domain.Order) error
	FindOrder(ctx context.Context, id domain.OrderID) (domain.Order, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id domain.OrderID, status domain.OrderStatus) error
	DeleteOrder(ctx context.Context, id domain.OrderID) error
}

// OrderPlacer is implemented by backends that can persist an order and clear
// the cart as one durable step. The assembler prefers it over a separate
// CreateOrder + ClearCart pair so a crash between the two cannot leave the
// cart re-playable into a second order.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, o domain.Order) error
}

// Store is the full contract a backend provides.
type Store interface {
	Catalog
	CartStore
	OrderStore

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
