package orders

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/order-management/internal/domain"
)

const (
	defaultMaxUploadBytes = 32 << 20
	imageFieldPrefix      = "item_image_"
)

type Handler struct {
	service        *Service
	logger         *slog.Logger
	maxUploadBytes int64
}

func NewHandler(service *Service, logger *slog.Logger, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{
		service:        service,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

type orderResponse struct {
	*domain.Order
	Total  decimal.Decimal `json:"total"`
	Status string          `json:"status"`
}

func newOrderResponse(order *domain.Order) orderResponse {
	return orderResponse{Order: order, Total: order.Total(), Status: order.Status()}
}

type validationResponse struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Search: strings.TrimSpace(r.URL.Query().Get("search"))}

	if paid := r.URL.Query().Get("paid"); paid != "" {
		isPaid, err := strconv.ParseBool(paid)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid paid filter")
			return
		}
		filter.IsPaid = &isPaid
	}

	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err, "failed to list orders")
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderResponse(&orders[i]))
	}

	h.logger.Info("orders listed", "count", len(orders))
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to get order", "order_id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, newOrderResponse(order))
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	sub, err := h.decodeSubmission(w, r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.service.CreateOrder(r.Context(), sub)
	if err != nil {
		h.writeServiceError(w, err, "failed to create order")
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/orders/%d", order.ID))
	h.writeJSON(w, http.StatusCreated, newOrderResponse(order))
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	sub, err := h.decodeSubmission(w, r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.service.UpdateOrder(r.Context(), id, sub)
	if err != nil {
		h.writeServiceError(w, err, "failed to update order", "order_id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, newOrderResponse(order))
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteOrder(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "failed to delete order", "order_id", id)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

// decodeSubmission accepts either a JSON body or a multipart form whose
// "order" field holds the JSON submission and whose item_image_<n> files
// attach a new image to item n.
func (h *Handler) decodeSubmission(w http.ResponseWriter, r *http.Request) (Submission, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	var sub Submission

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			return Submission{}, errors.New("invalid request body")
		}
		return sub, nil
	}

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		return Submission{}, errors.New("invalid multipart form")
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	if err := json.Unmarshal([]byte(r.FormValue("order")), &sub); err != nil {
		return Submission{}, errors.New("invalid order field")
	}

	for field, headers := range r.MultipartForm.File {
		if !strings.HasPrefix(field, imageFieldPrefix) || len(headers) == 0 {
			continue
		}
		index, err := strconv.Atoi(strings.TrimPrefix(field, imageFieldPrefix))
		if err != nil || index < 0 || index >= len(sub.Items) {
			return Submission{}, fmt.Errorf("image field %s does not match an item", field)
		}

		upload, err := readUpload(headers[0])
		if err != nil {
			return Submission{}, fmt.Errorf("read %s: %w", field, err)
		}
		sub.Items[index].Image = upload
	}

	return sub, nil
}

func readUpload(header *multipart.FileHeader) (*ImageUpload, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	return &ImageUpload{Filename: header.Filename, Data: data}, nil
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, msg string, args ...any) {
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		h.writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
			Error:  "validation failed",
			Fields: validationErr.Fields,
		})
	case errors.Is(err, ErrNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	default:
		h.logger.Error(msg, append([]any{"error", err}, args...)...)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
