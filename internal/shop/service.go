// Package shop implements the cart-to-order workflow: checkout validates
// requested quantity against catalog stock and upserts the cart, the
// assembler freezes the cart into an immutable order, and the lifecycle
// manager drives order status.
package shop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nazeru/shop-backend-go/internal/shop/domain"
	"github.com/nazeru/shop-backend-go/internal/shop/storage"
	"github.com/nazeru/shop-backend-go/pkg/contracts"
	"github.com/nazeru/shop-backend-go/pkg/logging"
)

// EventPublisher is the sink for domain events. Publishing is best-effort:
// a failed publish is logged, never surfaced to the caller.
type EventPublisher interface {
	Publish(ctx context.Context, evt contracts.Event) error
}

type Deps struct {
	Catalog storage.Catalog
	Cart    storage.CartStore
	Orders  storage.OrderStore
	Events  EventPublisher
}

type Service struct {
	catalog storage.Catalog
	cart    storage.CartStore
	orders  storage.OrderStore
	placer  storage.OrderPlacer
	events  EventPublisher

	// cartMu serializes every read-modify-write touching the cart (checkout,
	// place-order); orderMu serializes order status mutation. Two concurrent
	// checkouts of the same product therefore cannot interleave their
	// read-then-write halves.
	cartMu  sync.Mutex
	orderMu sync.Mutex
}

func NewService(d Deps) *Service {
	s := &Service{
		catalog: d.Catalog,
		cart:    d.Cart,
		orders:  d.Orders,
		events:  d.Events,
	}
	if p, ok := d.Orders.(storage.OrderPlacer); ok {
		s.placer = p
	}
	return s
}

// ---- catalog ----

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Product{}, fmt.Errorf("product id is required: %w", domain.ErrInvalidInput)
	}
	p, err := s.catalog.FindProduct(ctx, domain.ProductID(id))
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, err
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.catalog.ListProducts(ctx)
}

func (s *Service) AddProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if p.Name == "" || p.Description == "" || p.ImageURL == "" || p.Price.IsZero() || p.Stock == 0 {
		return domain.Product{}, fmt.Errorf("name, description, price, stock, and imageUrl are required: %w", domain.ErrInvalidInput)
	}
	if p.Price.IsNegative() || p.Stock < 0 {
		return domain.Product{}, fmt.Errorf("price and stock must not be negative: %w", domain.ErrInvalidInput)
	}
	stored, err := s.catalog.InsertProduct(ctx, p)
	if errors.Is(err, storage.ErrExists) {
		return domain.Product{}, fmt.Errorf("product id %q already exists: %w", p.ID, domain.ErrInvalidInput)
	}
	if err != nil {
		return domain.Product{}, err
	}
	s.publish(ctx, contracts.Event{
		Type:      contracts.EventProductAdded,
		ProductID: string(stored.ID),
	})
	return stored, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("product id is required: %w", domain.ErrInvalidInput)
	}
	err := s.catalog.DeleteProduct(ctx, domain.ProductID(id))
	if errors.Is(err, storage.ErrNotFound) {
		return domain.ErrProductNotFound
	}
	if err != nil {
		return err
	}
	s.publish(ctx, contracts.Event{
		Type:      contracts.EventProductDeleted,
		ProductID: id,
	})
	return nil
}

// ---- cart / checkout ----

// Checkout validates quantity against available stock and folds the item
// into the cart. Available stock is catalog stock minus what the cart
// already reserves for the product, so repeated checkouts cannot
// cumulatively oversell.
func (s *Service) Checkout(ctx context.Context, productID string, quantity int) error {
	if strings.TrimSpace(productID) == "" || quantity <= 0 {
		return fmt.Errorf("product id and positive quantity are required: %w", domain.ErrInvalidInput)
	}

	start := time.Now()
	// Publish only after the lock is released so a slow broker cannot
	// serialize checkouts behind a network write.
	if err := func() error {
		s.cartMu.Lock()
		defer s.cartMu.Unlock()

		p, err := s.catalog.FindProduct(ctx, domain.ProductID(productID))
		if errors.Is(err, storage.ErrNotFound) {
			return domain.ErrProductNotFound
		}
		if err != nil {
			return err
		}

		lines, err := s.cart.ListCart(ctx)
		if err != nil {
			return err
		}
		reserved := domain.ReservedQuantity(lines, p.ID)
		if quantity > p.Stock-reserved {
			return fmt.Errorf("%w: requested %d, available %d", domain.ErrInsufficientStock, quantity, p.Stock-reserved)
		}
		return s.cart.UpsertCartLine(ctx, p.ID, quantity, p.Price)
	}(); err != nil {
		return err
	}

	logging.Log(logging.Fields{
		Service:    "shop",
		Op:         "checkout",
		ProductID:  productID,
		Status:     "ok",
		DurationMS: time.Since(start).Milliseconds(),
	})
	s.publish(ctx, contracts.Event{
		Type:      contracts.EventCartItemAdded,
		ProductID: productID,
		Payload:   map[string]any{"quantity": quantity},
	})
	return nil
}

func (s *Service) ListCart(ctx context.Context) ([]domain.CartLine, error) {
	return s.cart.ListCart(ctx)
}

// ---- order assembly ----

// PlaceOrder freezes the cart into a new order. The order is durably
// persisted and the cart cleared before success is reported; backends that
// implement storage.OrderPlacer do both as one step.
func (s *Service) PlaceOrder(ctx context.Context, id, date, address string) (domain.Order, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(date) == "" || strings.TrimSpace(address) == "" {
		return domain.Order{}, fmt.Errorf("id, date, and address are required: %w", domain.ErrInvalidInput)
	}

	start := time.Now()
	order, err := func() (domain.Order, error) {
		s.cartMu.Lock()
		defer s.cartMu.Unlock()

		lines, err := s.cart.ListCart(ctx)
		if err != nil {
			return domain.Order{}, err
		}
		order, err := domain.AssembleOrder(domain.OrderID(id), date, address, lines)
		if err != nil {
			return domain.Order{}, err
		}

		if s.placer != nil {
			err = s.placer.PlaceOrder(ctx, order)
		} else {
			if err = s.orders.CreateOrder(ctx, order); err == nil {
				err = s.cart.ClearCart(ctx)
			}
		}
		return order, err
	}()
	if errors.Is(err, storage.ErrExists) {
		return domain.Order{}, fmt.Errorf("order id %q already exists: %w", id, domain.ErrInvalidInput)
	}
	if err != nil {
		return domain.Order{}, err
	}

	logging.Log(logging.Fields{
		Service:    "shop",
		Op:         "place_order",
		OrderID:    id,
		Status:     string(order.Status),
		DurationMS: time.Since(start).Milliseconds(),
		Message:    "total " + order.TotalCost.String(),
	})
	s.publish(ctx, contracts.Event{
		Type:    contracts.EventOrderPlaced,
		OrderID: id,
		Payload: map[string]any{"total_cost": order.TotalCost.String(), "lines": len(order.Lines)},
	})
	return order, nil
}

// ---- order lifecycle ----

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Order{}, fmt.Errorf("order id is required: %w", domain.ErrInvalidInput)
	}
	o, err := s.orders.FindOrder(ctx, domain.OrderID(id))
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, err
}

func (s *Service) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.orders.ListOrders(ctx)
}

// UpdateOrderStatus moves an order along the declared lifecycle
// (Pending -> Shipped -> Delivered, Pending -> Cancelled). Unknown labels and
// illegal transitions are rejected as invalid input.
func (s *Service) UpdateOrderStatus(ctx context.Context, id, status string) (domain.Order, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(status) == "" {
		return domain.Order{}, fmt.Errorf("order id and status are required: %w", domain.ErrInvalidInput)
	}
	next, err := domain.ParseOrderStatus(status)
	if err != nil {
		return domain.Order{}, err
	}

	o, prev, err := func() (domain.Order, domain.OrderStatus, error) {
		s.orderMu.Lock()
		defer s.orderMu.Unlock()

		o, err := s.orders.FindOrder(ctx, domain.OrderID(id))
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Order{}, "", domain.ErrOrderNotFound
		}
		if err != nil {
			return domain.Order{}, "", err
		}
		if !o.Status.CanTransitionTo(next) {
			return domain.Order{}, "", fmt.Errorf("cannot transition order from %s to %s: %w", o.Status, next, domain.ErrInvalidInput)
		}
		if err := s.orders.UpdateOrderStatus(ctx, o.ID, next); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return domain.Order{}, "", domain.ErrOrderNotFound
			}
			return domain.Order{}, "", err
		}
		prev := o.Status
		o.Status = next
		return o, prev, nil
	}()
	if err != nil {
		return domain.Order{}, err
	}

	s.publish(ctx, contracts.Event{
		Type:    contracts.EventOrderStatusChanged,
		OrderID: id,
		Payload: map[string]any{"from": string(prev), "to": string(next)},
	})
	return o, nil
}

func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("order id is required: %w", domain.ErrInvalidInput)
	}
	err := s.orders.DeleteOrder(ctx, domain.OrderID(id))
	if errors.Is(err, storage.ErrNotFound) {
		return domain.ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	s.publish(ctx, contracts.Event{
		Type:    contracts.EventOrderDeleted,
		OrderID: id,
	})
	return nil
}

func (s *Service) publish(ctx context.Context, evt contracts.Event) {
	if s.events == nil {
		return
	}
	evt.EventID = uuid.NewString()
	evt.CreatedAt = time.Now().UTC()
	if err := s.events.Publish(ctx, evt); err != nil {
		logging.Log(logging.Fields{
			Service: "shop",
			Op:      "publish_event",
			OrderID: evt.OrderID,
			Status:  "error",
			Error:   err.Error(),
		})
	}
}
