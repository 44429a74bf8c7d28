//go:build integration

package test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/order-management/internal/assets"
	"github.com/joao-fontenele/order-management/internal/dashboard"
	"github.com/joao-fontenele/order-management/internal/domain"
	"github.com/joao-fontenele/order-management/internal/messaging"
	"github.com/joao-fontenele/order-management/internal/orders"
	"github.com/joao-fontenele/order-management/internal/worker"
)

type ordersApp struct {
	repo    *orders.OrderRepository
	service *orders.Service
	mux     *http.ServeMux
}

func newOrdersApp(t *testing.T, pg *PostgresSetup, logger *slog.Logger, opts ...orders.ServiceOption) *ordersApp {
	t.Helper()

	sink, err := assets.NewFileSink(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create file sink: %v", err)
	}
	resolver := assets.NewResolver(sink)

	repo := orders.NewOrderRepository(pg.DB)
	service, err := orders.NewService(repo, orders.NewAssembler(resolver), logger, opts...)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	handler := orders.NewHandler(service, logger, 0)
	uploads := assets.NewHandler(resolver, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders", handler.HandleList)
	mux.HandleFunc("POST /orders", handler.HandleCreate)
	mux.HandleFunc("GET /orders/{id}", handler.HandleGet)
	mux.HandleFunc("PUT /orders/{id}", handler.HandleUpdate)
	mux.HandleFunc("DELETE /orders/{id}", handler.HandleDelete)
	mux.HandleFunc("GET /uploads/{name}", uploads.HandleGet)

	return &ordersApp{repo: repo, service: service, mux: mux}
}

func (a *ordersApp) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func TestOrderLifecycleOnPostgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	app := newOrdersApp(t, pg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := app.do(t, http.MethodPost, "/orders",
		`{"customer_name":"Alice","items":[{"product_name":"Widget","quantity":2,"price":"9.99"}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var created domain.Order
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode order: %v", err)
	}
	if created.ID <= 0 {
		t.Fatal("expected order id to be set")
	}
	if len(created.Items) != 1 || created.Items[0].OrderID != created.ID {
		t.Fatalf("expected one item owned by order %d, got %+v", created.ID, created.Items)
	}
	id := strconv.FormatInt(created.ID, 10)

	rec = app.do(t, http.MethodPut, "/orders/"+id, `{"customer_name":"Alice","items":[
		{"product_name":"Widget","quantity":3,"price":"9.99"},
		{"product_name":"Gadget","quantity":1,"price":"19.99"}
	]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	fetched, err := app.repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("failed to fetch order: %v", err)
	}
	if len(fetched.Items) != 2 {
		t.Fatalf("expected 2 items after update, got %d", len(fetched.Items))
	}
	quantity := 0
	for _, item := range fetched.Items {
		quantity += item.Quantity
		if item.ID == created.Items[0].ID {
			t.Fatalf("old item %d survived the update", item.ID)
		}
	}
	if quantity != 4 {
		t.Fatalf("expected total quantity 4, got %d", quantity)
	}
	if !fetched.Total().Equal(decimal.RequireFromString("49.96")) {
		t.Fatalf("expected total 49.96, got %s", fetched.Total())
	}

	summary, err := dashboard.NewSummaryRepository(pg.DB).GetSummary(ctx, 5)
	if err != nil {
		t.Fatalf("failed to load dashboard: %v", err)
	}
	if summary.TotalOrders != 1 || summary.PendingOrders != 1 {
		t.Fatalf("unexpected dashboard counts: %+v", summary)
	}
	if len(summary.RecentOrders) != 1 || summary.RecentOrders[0].ItemCount != 2 {
		t.Fatalf("unexpected recent orders: %+v", summary.RecentOrders)
	}

	rec = app.do(t, http.MethodDelete, "/orders/"+id, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}

	var remaining int
	if err := pg.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_items WHERE order_id = $1`, created.ID).Scan(&remaining); err != nil {
		t.Fatalf("failed to count items: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected no items left, got %d", remaining)
	}

	if rec := app.do(t, http.MethodGet, "/orders/"+id, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestUpdateMissingOrderOnPostgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	app := newOrdersApp(t, pg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ghost := &domain.Order{ID: 404, OrderDate: time.Now().UTC(), CustomerName: "Nobody"}
	if err := app.repo.Update(ctx, ghost); err != nil {
		t.Fatalf("expected no-op update, got %v", err)
	}

	rec := app.do(t, http.MethodPut, "/orders/404",
		`{"customer_name":"Nobody","items":[{"product_name":"Ghost","quantity":1,"price":"1"}]}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}

	var count int
	if err := pg.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count); err != nil {
		t.Fatalf("failed to count orders: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no orders, got %d", count)
	}
}

type emailCapture struct {
	mu     sync.Mutex
	emails []map[string]string
}

func (e *emailCapture) handler(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	e.mu.Lock()
	e.emails = append(e.emails, req)
	e.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"status":"sent"}`)
}

func (e *emailCapture) getEmails() []map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]map[string]string, len(e.emails))
	copy(result, e.emails)
	return result
}

func TestOrderEventsReachWorker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	brokers, cleanupKafka := SetupKafka(ctx, t)
	defer cleanupKafka()

	CreateTopic(t, brokers, "order-events")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	producer := messaging.NewProducer(brokers, "order-events")
	defer func() { _ = producer.Close() }()

	app := newOrdersApp(t, pg, logger, orders.WithEventPublisher(producer))
	ordersServer := httptest.NewServer(app.mux)
	defer ordersServer.Close()

	emailCap := &emailCapture{}
	emailMux := http.NewServeMux()
	emailMux.HandleFunc("POST /send", emailCap.handler)
	emailServer := httptest.NewServer(emailMux)
	defer emailServer.Close()

	notificationHandler := worker.NewNotificationHandler(
		emailServer.URL,
		ordersServer.URL,
		"staff@example.com",
		&http.Client{Timeout: 10 * time.Second},
		logger,
	)

	rec := app.do(t, http.MethodPost, "/orders",
		`{"customer_name":"Alice","items":[{"product_name":"Widget","quantity":2,"price":"9.99"}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	consumer := messaging.NewConsumer(brokers, "order-events", "integration-worker",
		messaging.WithStartOffset(kafka.FirstOffset))
	defer func() { _ = consumer.Close() }()

	consumeCtx, stopConsumer := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- consumer.Consume(consumeCtx, notificationHandler.Handle)
	}()

	deadline := time.After(60 * time.Second)
	for len(emailCap.getEmails()) == 0 {
		select {
		case <-deadline:
			stopConsumer()
			t.Fatal("timed out waiting for notification email")
		case err := <-done:
			t.Fatalf("consumer stopped early: %v", err)
		case <-time.After(200 * time.Millisecond):
		}
	}
	stopConsumer()
	<-done

	email := emailCap.getEmails()[0]
	if email["to"] != "staff@example.com" {
		t.Fatalf("expected notification to staff, got %s", email["to"])
	}
	if !strings.Contains(email["subject"], "created") {
		t.Fatalf("expected created notification, got subject: %s", email["subject"])
	}
	if !strings.Contains(email["body"], "Widget x2") {
		t.Fatalf("expected item line in body, got: %s", email["body"])
	}
}
