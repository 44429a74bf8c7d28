package orders

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/order-management/internal/cache"
	"github.com/joao-fontenele/order-management/internal/domain"
)

var tracer = otel.Tracer("orders/service")

// defaultInvalidationDelay is how long after a write the cached order is
// deleted a second time, evicting any value a concurrent read-through stored
// from a snapshot taken before the write.
const defaultInvalidationDelay = 500 * time.Millisecond

// Store is the persistence contract the service relies on.
// OrderRepository implements it.
type Store interface {
	List(ctx context.Context) ([]domain.Order, error)
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	Create(ctx context.Context, order *domain.Order) error
	Update(ctx context.Context, order *domain.Order) error
	Delete(ctx context.Context, id int64) error
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error
}

type ServiceOption func(*Service)

func WithCache(c cache.OrderCache) ServiceOption {
	return func(s *Service) {
		s.cache = c
	}
}

// WithInvalidationDelay sets the delay of the second cache delete after a
// write. Zero or less disables it.
func WithInvalidationDelay(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.invalidationDelay = d
	}
}

func WithEventPublisher(p EventPublisher) ServiceOption {
	return func(s *Service) {
		s.events = p
	}
}

// ListFilter narrows ListOrders. Search matches a case-insensitive
// substring of the customer name.
type ListFilter struct {
	Search string
	IsPaid *bool
}

func (f ListFilter) match(order *domain.Order) bool {
	if f.IsPaid != nil && order.IsPaid != *f.IsPaid {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(order.CustomerName), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// Service is the entry point for order use cases. Failures are one of
// *ValidationError, ErrNotFound, *assets.StorageWriteError or
// *PersistenceError.
type Service struct {
	store     Store
	assembler *Assembler
	cache     cache.OrderCache
	events    EventPublisher
	metrics   *serviceMetrics
	logger    *slog.Logger

	invalidationDelay time.Duration
}

func NewService(store Store, assembler *Assembler, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	m, err := newServiceMetrics()
	if err != nil {
		return nil, err
	}

	s := &Service{
		store:             store,
		assembler:         assembler,
		metrics:           m,
		logger:            logger,
		invalidationDelay: defaultInvalidationDelay,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Service) ListOrders(ctx context.Context, filter ListFilter) ([]domain.Order, error) {
	ctx, span := tracer.Start(ctx, "ListOrders")
	defer span.End()

	all, err := s.store.List(ctx)
	if err != nil {
		return nil, fail(span, err)
	}

	orders := make([]domain.Order, 0, len(all))
	for i := range all {
		if filter.match(&all[i]) {
			orders = append(orders, all[i])
		}
	}

	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return orders, nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "GetOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("order cache read failed", "error", err, "order_id", id)
		}
	}

	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fail(span, err)
	}
	if order == nil {
		return nil, fail(span, ErrNotFound)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, order); err != nil {
			s.logger.Warn("order cache write failed", "error", err, "order_id", id)
		}
	}

	return order, nil
}

func (s *Service) CreateOrder(ctx context.Context, sub Submission) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "CreateOrder")
	defer span.End()

	order, err := s.assembler.Assemble(ctx, sub)
	if err != nil {
		return nil, fail(span, err)
	}

	if err := s.store.Create(ctx, order); err != nil {
		return nil, fail(span, err)
	}

	span.SetAttributes(attribute.Int64("order.id", order.ID))
	s.metrics.recordWrite(ctx, "create", order)
	s.publish(ctx, domain.OrderEventCreated, order)

	s.logger.Info("order created", "order_id", order.ID, "items", len(order.Items))
	return order, nil
}

// UpdateOrder replaces the header and the whole item list of an existing
// order. A missing order is reported before the submission is validated,
// and again when it was deleted while the update was in flight.
func (s *Service) UpdateOrder(ctx context.Context, id int64, sub Submission) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "UpdateOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fail(span, err)
	}
	if existing == nil {
		return nil, fail(span, ErrNotFound)
	}

	order, err := s.assembler.Assemble(ctx, sub)
	if err != nil {
		return nil, fail(span, err)
	}
	order.ID = id

	if err := s.store.Update(ctx, order); err != nil {
		return nil, fail(span, err)
	}

	// Update is a no-op for a missing row, so a concurrent delete is only
	// visible by reading the order back.
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fail(span, err)
	}
	if current == nil {
		s.invalidate(ctx, id)
		return nil, fail(span, ErrNotFound)
	}

	s.invalidate(ctx, id)
	s.metrics.recordWrite(ctx, "update", order)
	s.publish(ctx, domain.OrderEventUpdated, order)

	s.logger.Info("order updated", "order_id", id, "items", len(order.Items), "previous_items", len(existing.Items))
	return order, nil
}

func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	ctx, span := tracer.Start(ctx, "DeleteOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return fail(span, err)
	}
	if existing == nil {
		return fail(span, ErrNotFound)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fail(span, err)
	}

	s.invalidate(ctx, id)
	s.metrics.recordWrite(ctx, "delete", existing)
	s.publish(ctx, domain.OrderEventDeleted, existing)

	s.logger.Info("order deleted", "order_id", id)
	return nil
}

// invalidate deletes the cached order now and, unless disabled, once more
// after invalidationDelay.
func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	s.evict(ctx, id)

	if s.invalidationDelay <= 0 {
		return
	}
	detached := context.WithoutCancel(ctx)
	time.AfterFunc(s.invalidationDelay, func() {
		ctx, cancel := context.WithTimeout(detached, 5*time.Second)
		defer cancel()
		s.evict(ctx, id)
	})
}

func (s *Service) evict(ctx context.Context, id int64) {
	if err := s.cache.Delete(ctx, id); err != nil {
		s.logger.Warn("order cache invalidation failed", "error", err, "order_id", id)
	}
}

func (s *Service) publish(ctx context.Context, eventType domain.OrderEventType, order *domain.Order) {
	if s.events == nil {
		return
	}
	event := domain.NewOrderEvent(eventType, order, time.Now().UTC())
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger.Error("failed to publish order event", "error", err, "order_id", order.ID, "type", eventType)
	}
}

func fail(span trace.Span, err error) error {
	if !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
