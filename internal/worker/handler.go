package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/order-management/internal/domain"
)

var errOrderGone = errors.New("order no longer exists")

// NotificationHandler turns order lifecycle events into staff notification
// emails sent through the email service.
type NotificationHandler struct {
	emailServiceURL  string
	ordersServiceURL string
	notifyEmail      string
	httpClient       *http.Client
	logger           *slog.Logger
}

func NewNotificationHandler(emailServiceURL, ordersServiceURL, notifyEmail string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL:  emailServiceURL,
		ordersServiceURL: ordersServiceURL,
		notifyEmail:      notifyEmail,
		httpClient:       client,
		logger:           logger,
	}
}

type emailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (h *NotificationHandler) Handle(ctx context.Context, event domain.OrderEvent) error {
	h.logger.Info("processing order event", "type", event.Type, "order_id", event.OrderID)

	var msg emailRequest
	switch event.Type {
	case domain.OrderEventCreated, domain.OrderEventUpdated:
		order, err := h.fetchOrder(ctx, event.OrderID)
		if errors.Is(err, errOrderGone) {
			h.logger.Info("skipping event for deleted order", "type", event.Type, "order_id", event.OrderID)
			return nil
		}
		if err != nil {
			h.logger.Error("failed to fetch order", "error", err, "order_id", event.OrderID)
			return fmt.Errorf("fetch order %d: %w", event.OrderID, err)
		}
		msg = h.orderEmail(event.Type, order)
	case domain.OrderEventDeleted:
		msg = emailRequest{
			To:      h.notifyEmail,
			Subject: fmt.Sprintf("Order #%d deleted", event.OrderID),
			Body: fmt.Sprintf("Order #%d for %s with %d items (total %s) was deleted.",
				event.OrderID, event.CustomerName, event.ItemCount, event.Total.StringFixed(2)),
		}
	default:
		h.logger.Warn("ignoring unknown order event", "type", event.Type, "order_id", event.OrderID)
		return nil
	}

	if err := h.sendEmail(ctx, msg); err != nil {
		h.logger.Error("failed to send notification email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send notification email: %w", err)
	}

	h.logger.Info("order notification sent", "type", event.Type, "order_id", event.OrderID)
	return nil
}

func (h *NotificationHandler) orderEmail(eventType domain.OrderEventType, order *domain.Order) emailRequest {
	verb := "created"
	if eventType == domain.OrderEventUpdated {
		verb = "updated"
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Order #%d for %s was %s.\n", order.ID, order.CustomerName, verb)
	fmt.Fprintf(&body, "Date: %s\nStatus: %s\n\n", order.OrderDate.Format("2006-01-02"), order.Status())
	for _, item := range order.Items {
		fmt.Fprintf(&body, "- %s x%d @ %s = %s\n",
			item.ProductName, item.Quantity, item.Price.StringFixed(2), item.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(&body, "\nTotal: %s\n", order.Total().StringFixed(2))

	return emailRequest{
		To:      h.notifyEmail,
		Subject: fmt.Sprintf("Order #%d %s", order.ID, verb),
		Body:    body.String(),
	}
}

func (h *NotificationHandler) fetchOrder(ctx context.Context, id int64) (*domain.Order, error) {
	url := fmt.Sprintf("%s/orders/%d", h.ordersServiceURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errOrderGone
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("orders service returned status %d", resp.StatusCode)
	}

	var order domain.Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}

	return &order, nil
}

func (h *NotificationHandler) sendEmail(ctx context.Context, msg emailRequest) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
