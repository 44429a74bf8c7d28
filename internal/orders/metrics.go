package orders

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/order-management/internal/domain"
)

type serviceMetrics struct {
	writes     metric.Int64Counter
	itemsSaved metric.Int64Counter
}

func newServiceMetrics() (*serviceMetrics, error) {
	meter := otel.Meter("orders/service")

	writes, err := meter.Int64Counter("orders.writes",
		metric.WithDescription("Committed order writes by operation"),
	)
	if err != nil {
		return nil, err
	}

	itemsSaved, err := meter.Int64Counter("orders.items.saved",
		metric.WithDescription("Order items inserted by create and update"),
	)
	if err != nil {
		return nil, err
	}

	return &serviceMetrics{writes: writes, itemsSaved: itemsSaved}, nil
}

func (m *serviceMetrics) recordWrite(ctx context.Context, operation string, order *domain.Order) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	m.writes.Add(ctx, 1, attrs)
	if operation != "delete" {
		m.itemsSaved.Add(ctx, int64(len(order.Items)), attrs)
	}
}
