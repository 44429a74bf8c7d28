package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	ImageRef    string          `json:"image_ref,omitempty"`
}

// Subtotal is quantity times unit price.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID           int64       `json:"id"`
	OrderDate    time.Time   `json:"order_date"`
	CustomerName string      `json:"customer_name"`
	IsPaid       bool        `json:"is_paid"`
	Items        []OrderItem `json:"items"`
}

func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (o *Order) Status() string {
	if o.IsPaid {
		return "paid"
	}
	return "pending"
}
