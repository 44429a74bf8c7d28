package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderEventType string

const (
	OrderEventCreated OrderEventType = "order.created"
	OrderEventUpdated OrderEventType = "order.updated"
	OrderEventDeleted OrderEventType = "order.deleted"
)

// OrderEvent is published after an order write has been committed. Deleted
// events describe the order as it was before removal.
type OrderEvent struct {
	Type         OrderEventType  `json:"type"`
	OrderID      int64           `json:"order_id"`
	CustomerName string          `json:"customer_name,omitempty"`
	IsPaid       bool            `json:"is_paid"`
	ItemCount    int             `json:"item_count"`
	Total        decimal.Decimal `json:"total"`
	Timestamp    time.Time       `json:"timestamp"`
}

func NewOrderEvent(eventType OrderEventType, order *Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:         eventType,
		OrderID:      order.ID,
		CustomerName: order.CustomerName,
		IsPaid:       order.IsPaid,
		ItemCount:    len(order.Items),
		Total:        order.Total(),
		Timestamp:    at,
	}
}
