package assets

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
)

type Handler struct {
	resolver *Resolver
	logger   *slog.Logger
}

func NewHandler(resolver *Resolver, logger *slog.Logger) *Handler {
	return &Handler{
		resolver: resolver,
		logger:   logger,
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		h.writeError(w, http.StatusBadRequest, "missing asset name")
		return
	}

	body, err := h.resolver.Open(r.Context(), RefPrefix+name)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRef):
			h.writeError(w, http.StatusBadRequest, "invalid asset name")
		case errors.Is(err, ErrAssetNotFound):
			h.writeError(w, http.StatusNotFound, "asset not found")
		default:
			h.logger.Error("failed to open asset", "error", err, "name", name)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	defer func() { _ = body.Close() }()

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		h.logger.Error("failed to stream asset", "error", err, "name", name)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}
