package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/joao-fontenele/order-management/internal/domain"
)

// OrderRepository persists orders and their items in the orders and
// order_items tables. Every write runs in a single transaction. The SQL
// sticks to what both PostgreSQL and SQLite accept.
type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order header and its items, then assigns order.ID and
// every item's ID and OrderID. On error the order is left untouched.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError("create", fmt.Errorf("begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	orderDate := order.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now().UTC()
	}
	now := time.Now().UTC()

	var orderID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (order_date, customer_name, is_paid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, orderDate, order.CustomerName, order.IsPaid, now, now).Scan(&orderID)
	if err != nil {
		return persistenceError("create", fmt.Errorf("insert order: %w", err))
	}

	itemIDs, err := insertItems(ctx, tx, orderID, order.Items, nil)
	if err != nil {
		return persistenceError("create", err)
	}

	if err := tx.Commit(); err != nil {
		return persistenceError("create", fmt.Errorf("commit: %w", err))
	}

	order.ID = orderID
	order.OrderDate = orderDate
	reparent(order, itemIDs)

	return nil
}

// Update overwrites the header of an existing order and replaces its whole
// item collection: every stored item is deleted and the submitted items are
// inserted again. A submitted item ID is kept only when it belonged to this
// order before the update; every other item gets a fresh ID.
//
// Update is a no-op when no order with order.ID exists. Callers that need to
// report a missing order must check with GetByID first.
func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError("update", fmt.Errorf("begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET order_date = $1, customer_name = $2, is_paid = $3, updated_at = $4
		WHERE id = $5
	`, order.OrderDate, order.CustomerName, order.IsPaid, time.Now().UTC(), order.ID)
	if err != nil {
		return persistenceError("update", fmt.Errorf("update order: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistenceError("update", fmt.Errorf("rows affected: %w", err))
	}

	if rowsAffected == 0 {
		return nil
	}

	previous, err := storedItemIDs(ctx, tx, order.ID)
	if err != nil {
		return persistenceError("update", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
		return persistenceError("update", fmt.Errorf("delete order items: %w", err))
	}

	itemIDs, err := insertItems(ctx, tx, order.ID, order.Items, previous)
	if err != nil {
		return persistenceError("update", err)
	}

	if err := tx.Commit(); err != nil {
		return persistenceError("update", fmt.Errorf("commit: %w", err))
	}

	reparent(order, itemIDs)

	return nil
}

// Delete removes the order and all of its items. Deleting a missing order
// is a no-op.
func (r *OrderRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError("delete", fmt.Errorf("begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
		return persistenceError("delete", fmt.Errorf("delete order items: %w", err))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
		return persistenceError("delete", fmt.Errorf("delete order: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return persistenceError("delete", fmt.Errorf("commit: %w", err))
	}

	return nil
}

// GetByID returns nil, nil when the order does not exist.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_date, customer_name, is_paid
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.OrderDate, &order.CustomerName, &order.IsPaid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, persistenceError("get", fmt.Errorf("query order: %w", err))
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_name, quantity, price, image_ref
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, persistenceError("get", fmt.Errorf("query order items: %w", err))
	}
	defer func() { _ = rows.Close() }()

	order.Items = []domain.OrderItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, persistenceError("get", err)
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, persistenceError("get", fmt.Errorf("iterate order items: %w", err))
	}

	return order, nil
}

// List returns every order, newest first, with items loaded.
func (r *OrderRepository) List(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_date, customer_name, is_paid
		FROM orders
		ORDER BY order_date DESC, id DESC
	`)
	if err != nil {
		return nil, persistenceError("list", fmt.Errorf("query orders: %w", err))
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[int64]*domain.Order)
	var orderIDs []int64

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.OrderDate, &order.CustomerName, &order.IsPaid); err != nil {
			return nil, persistenceError("list", fmt.Errorf("scan order: %w", err))
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, persistenceError("list", fmt.Errorf("iterate orders: %w", err))
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	// The listing has no pagination, so every item row is wanted.
	itemRows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_name, quantity, price, image_ref
		FROM order_items
		ORDER BY order_id, position
	`)
	if err != nil {
		return nil, persistenceError("list", fmt.Errorf("query order items: %w", err))
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		item, err := scanItem(itemRows)
		if err != nil {
			return nil, persistenceError("list", err)
		}
		// Orders created after the first query are skipped.
		if order, ok := orderMap[item.OrderID]; ok {
			order.Items = append(order.Items, item)
		}
	}

	if err := itemRows.Err(); err != nil {
		return nil, persistenceError("list", fmt.Errorf("iterate order items: %w", err))
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

func insertItems(ctx context.Context, tx *sql.Tx, orderID int64, items []domain.OrderItem, reusable map[int64]bool) ([]int64, error) {
	ids := make([]int64, len(items))

	for i, item := range items {
		imageRef := sql.NullString{String: item.ImageRef, Valid: item.ImageRef != ""}

		if item.ID > 0 && reusable[item.ID] {
			delete(reusable, item.ID)
			_, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (id, order_id, position, product_name, quantity, price, image_ref)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, item.ID, orderID, i, item.ProductName, item.Quantity, item.Price, imageRef)
			if err != nil {
				return nil, fmt.Errorf("insert order item %d: %w", i, err)
			}
			ids[i] = item.ID
			continue
		}

		err := tx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, position, product_name, quantity, price, image_ref)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, orderID, i, item.ProductName, item.Quantity, item.Price, imageRef).Scan(&ids[i])
		if err != nil {
			return nil, fmt.Errorf("insert order item %d: %w", i, err)
		}
	}

	return ids, nil
}

func storedItemIDs(ctx context.Context, tx *sql.Tx, orderID int64) (map[int64]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query stored item ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stored item id: %w", err)
		}
		ids[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stored item ids: %w", err)
	}

	return ids, nil
}

func scanItem(rows *sql.Rows) (domain.OrderItem, error) {
	var item domain.OrderItem
	var imageRef sql.NullString
	if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductName, &item.Quantity, &item.Price, &imageRef); err != nil {
		return domain.OrderItem{}, fmt.Errorf("scan order item: %w", err)
	}
	item.ImageRef = imageRef.String
	return item, nil
}

func reparent(order *domain.Order, itemIDs []int64) {
	for i := range order.Items {
		order.Items[i].ID = itemIDs[i]
		order.Items[i].OrderID = order.ID
	}
}
