package orders

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	*serviceFixture
	mux *http.ServeMux
}

func newHandlerFixture(t *testing.T, maxUploadBytes int64) *handlerFixture {
	t.Helper()

	f := newServiceFixture(t)
	h := NewHandler(f.service, slog.New(slog.NewTextHandler(io.Discard, nil)), maxUploadBytes)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders", h.HandleList)
	mux.HandleFunc("POST /orders", h.HandleCreate)
	mux.HandleFunc("GET /orders/{id}", h.HandleGet)
	mux.HandleFunc("PUT /orders/{id}", h.HandleUpdate)
	mux.HandleFunc("DELETE /orders/{id}", h.HandleDelete)

	return &handlerFixture{serviceFixture: f, mux: mux}
}

func (f *handlerFixture) do(method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

type orderBody struct {
	ID           int64  `json:"id"`
	CustomerName string `json:"customer_name"`
	IsPaid       bool   `json:"is_paid"`
	Total        string `json:"total"`
	Status       string `json:"status"`
	Items        []struct {
		ID          int64  `json:"id"`
		ProductName string `json:"product_name"`
		Quantity    int    `json:"quantity"`
		Price       string `json:"price"`
		ImageRef    string `json:"image_ref"`
	} `json:"items"`
}

func decodeOrder(t *testing.T, rec *httptest.ResponseRecorder) orderBody {
	t.Helper()
	var body orderBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const aliceJSON = `{
	"customer_name": "Alice",
	"items": [
		{"product_name": "Widget", "quantity": 2, "price": "9.99"}
	]
}`

func TestHandlerCreateAndGet(t *testing.T) {
	f := newHandlerFixture(t, 0)

	rec := f.do(http.MethodPost, "/orders", strings.NewReader(aliceJSON), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeOrder(t, rec)
	assert.Positive(t, created.ID)
	assert.Equal(t, "19.98", created.Total)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "/orders/"+strconv.FormatInt(created.ID, 10), rec.Header().Get("Location"))

	rec = f.do(http.MethodGet, "/orders/"+strconv.FormatInt(created.ID, 10), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeOrder(t, rec)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Widget", got.Items[0].ProductName)
	assert.Equal(t, "9.99", got.Items[0].Price)
}

func TestHandlerValidationError(t *testing.T) {
	f := newHandlerFixture(t, 0)

	body := `{"customer_name":"Alice","items":[{"product_name":"Widget","quantity":0,"price":"9.99"}]}`
	rec := f.do(http.MethodPost, "/orders", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp validationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Fields, 1)
	assert.Equal(t, "items[0].quantity", resp.Fields[0].Field)
	assert.Zero(t, f.store.writes())
}

func TestHandlerBadRequests(t *testing.T) {
	f := newHandlerFixture(t, 0)

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{name: "malformed json", method: http.MethodPost, target: "/orders", body: `{"customer_name":`},
		{name: "non numeric id", method: http.MethodGet, target: "/orders/abc"},
		{name: "negative id", method: http.MethodDelete, target: "/orders/-1"},
		{name: "bad paid filter", method: http.MethodGet, target: "/orders?paid=maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.target, strings.NewReader(tt.body), "application/json")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandlerNotFound(t *testing.T) {
	f := newHandlerFixture(t, 0)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/orders/42", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/orders/42", nil, "").Code)
	assert.Equal(t, http.StatusNotFound,
		f.do(http.MethodPut, "/orders/42", strings.NewReader(aliceJSON), "application/json").Code)
}

func TestHandlerUpdateAndDelete(t *testing.T) {
	f := newHandlerFixture(t, 0)

	rec := f.do(http.MethodPost, "/orders", strings.NewReader(aliceJSON), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code)
	id := strconv.FormatInt(decodeOrder(t, rec).ID, 10)

	update := `{"customer_name":"Alice","is_paid":true,"items":[
		{"product_name":"Widget","quantity":3,"price":"9.99"},
		{"product_name":"Gadget","quantity":1,"price":"19.99"}
	]}`
	rec = f.do(http.MethodPut, "/orders/"+id, strings.NewReader(update), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeOrder(t, rec)
	assert.Equal(t, "paid", updated.Status)
	assert.Len(t, updated.Items, 2)

	rec = f.do(http.MethodGet, "/orders?paid=true", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []orderBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = f.do(http.MethodDelete, "/orders/"+id, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/orders/"+id, nil, "").Code)
}

func multipartBody(t *testing.T, order string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	require.NoError(t, w.WriteField("order", order))
	for field, data := range files {
		part, err := w.CreateFormFile(field, field+".png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf, w.FormDataContentType()
}

func TestHandlerMultipartCreate(t *testing.T) {
	f := newHandlerFixture(t, 0)

	order := `{"customer_name":"Alice","items":[
		{"product_name":"Widget","quantity":1,"price":"1.00"},
		{"product_name":"Gadget","quantity":1,"price":"2.00"}
	]}`
	body, contentType := multipartBody(t, order, map[string][]byte{"item_image_1": []byte("gadget")})

	rec := f.do(http.MethodPost, "/orders", body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeOrder(t, rec)
	require.Len(t, created.Items, 2)
	assert.Empty(t, created.Items[0].ImageRef)
	assert.Contains(t, created.Items[1].ImageRef, "item_image_1.png")
	assert.Equal(t, []byte("gadget"), f.resolver.payloads[created.Items[1].ImageRef])
}

func TestHandlerMultipartRejectsUnknownImageField(t *testing.T) {
	f := newHandlerFixture(t, 0)

	order := `{"customer_name":"Alice","items":[{"product_name":"Widget","quantity":1,"price":"1.00"}]}`
	body, contentType := multipartBody(t, order, map[string][]byte{"item_image_3": []byte("x")})

	rec := f.do(http.MethodPost, "/orders", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.resolver.calls.Load())
}

func TestHandlerUploadTooLarge(t *testing.T) {
	f := newHandlerFixture(t, 64)

	order := `{"customer_name":"Alice","items":[{"product_name":"Widget","quantity":1,"price":"1.00"}]}`
	body, contentType := multipartBody(t, order, map[string][]byte{"item_image_0": bytes.Repeat([]byte("x"), 1024)})

	rec := f.do(http.MethodPost, "/orders", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.store.writes())
}
