package cache

import (
	"context"
	"errors"

	"github.com/joao-fontenele/order-management/internal/domain"
)

type OrderCache interface {
	Get(ctx context.Context, id int64) (*domain.Order, error)
	Set(ctx context.Context, order *domain.Order) error
	Delete(ctx context.Context, id int64) error
}

var ErrCacheMiss = errors.New("cache miss")
