package contracts

import "time"

type Event struct {
	EventID   string         `json:"event_id"`
	OrderID   string         `json:"order_id,omitempty"`
	ProductID string         `json:"product_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
}

const (
	EventCartItemAdded      = "cart.item_added"
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderDeleted       = "order.deleted"
	EventProductAdded       = "product.added"
	EventProductDeleted     = "product.deleted"
)
