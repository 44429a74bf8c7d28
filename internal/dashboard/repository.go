package dashboard

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/joao-fontenele/order-management/internal/domain"
)

const DefaultRecentLimit = 5

// SummaryRepository reads aggregate views over the orders tables. It never
// writes.
type SummaryRepository struct {
	db *sql.DB
}

func NewSummaryRepository(db *sql.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// GetSummary counts orders by payment state and loads the most recent
// orders, newest first.
func (r *SummaryRepository) GetSummary(ctx context.Context, recentLimit int) (*domain.DashboardSummary, error) {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}

	summary := &domain.DashboardSummary{}

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_paid THEN 1 ELSE 0 END), 0)
		FROM orders
	`).Scan(&summary.TotalOrders, &summary.PaidOrders)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	summary.PendingOrders = summary.TotalOrders - summary.PaidOrders

	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id, o.order_date, o.customer_name, o.is_paid,
			(SELECT COUNT(*) FROM order_items i WHERE i.order_id = o.id),
			(SELECT i.image_ref FROM order_items i
				WHERE i.order_id = o.id
				ORDER BY i.position
				LIMIT 1)
		FROM orders o
		ORDER BY o.order_date DESC, o.id DESC
		LIMIT $1
	`, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("query recent orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summary.RecentOrders = []domain.RecentOrder{}
	for rows.Next() {
		var recent domain.RecentOrder
		var image sql.NullString
		if err := rows.Scan(&recent.ID, &recent.OrderDate, &recent.CustomerName, &recent.IsPaid, &recent.ItemCount, &image); err != nil {
			return nil, fmt.Errorf("scan recent order: %w", err)
		}
		recent.FirstItemImage = image.String
		summary.RecentOrders = append(summary.RecentOrders, recent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent orders: %w", err)
	}

	return summary, nil
}
