package domain

import "time"

type RecentOrder struct {
	ID             int64     `json:"id"`
	OrderDate      time.Time `json:"order_date"`
	CustomerName   string    `json:"customer_name"`
	IsPaid         bool      `json:"is_paid"`
	ItemCount      int       `json:"item_count"`
	FirstItemImage string    `json:"first_item_image,omitempty"`
}

type DashboardSummary struct {
	TotalOrders   int           `json:"total_orders"`
	PaidOrders    int           `json:"paid_orders"`
	PendingOrders int           `json:"pending_orders"`
	RecentOrders  []RecentOrder `json:"recent_orders"`
}
