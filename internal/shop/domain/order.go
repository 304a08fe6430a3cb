package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderID string

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusShipped   OrderStatus = "Shipped"
	OrderStatusDelivered OrderStatus = "Delivered"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// legalTransitions is the minimal linear lifecycle:
// Pending -> Shipped -> Delivered, Pending -> Cancelled.
var legalTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped: {OrderStatusDelivered},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return OrderStatus(s), nil
	}
	return "", fmt.Errorf("unknown order status %q: %w", s, ErrInvalidInput)
}

// CanTransitionTo reports whether next is reachable from s. Repeating the
// current status is treated as a no-op and allowed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order is the frozen result of assembling the cart. Lines is a snapshot of
// the consumed cart lines and TotalCost their exact sum; neither changes after
// assembly.
type Order struct {
	ID        OrderID
	Date      string
	Address   string
	Status    OrderStatus
	TotalCost decimal.Decimal
	Lines     []CartLine
	CreatedAt time.Time
}

// AssembleOrder freezes the given cart lines into a new Pending order.
// Returns ErrEmptyCart when there is nothing to consume.
func AssembleOrder(id OrderID, date, address string, lines []CartLine) (Order, error) {
	if len(lines) == 0 {
		return Order{}, ErrEmptyCart
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Price)
	}
	snapshot := make([]CartLine, len(lines))
	copy(snapshot, lines)
	return Order{
		ID:        id,
		Date:      date,
		Address:   address,
		Status:    OrderStatusPending,
		TotalCost: total,
		Lines:     snapshot,
		CreatedAt: time.Now().UTC(),
	}, nil
}
