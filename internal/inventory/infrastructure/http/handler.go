package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/foodshare/internal/inventory/application"
	"github.com/dmehra2102/foodshare/internal/inventory/domain"
	"github.com/dmehra2102/foodshare/pkg/httpx"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("inventory-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/donations", h.donate)
	r.Get("/inventory", h.list)
	r.Get("/inventory/low-stock", h.lowStock)
	r.Get("/inventory/{name}", h.get)
}

func (h *Handler) donate(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ReceiveDonationHTTP")
	defer span.End()

	var d domain.Donation
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid_body", Message: "invalid body"})
		return
	}
	d.ID = 0
	saved, err := h.service.ReceiveDonation(ctx, d)
	if errors.Is(err, domain.ErrInvalidDonation) {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid_input", Message: err.Error()})
		return
	}
	if err != nil {
		span.RecordError(err)
		httpx.WriteError(w, http.StatusInternalServerError, httpx.ErrorBody{Error: "internal", Message: "internal error"})
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, saved)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.internal(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	threshold := 0
	if s := r.URL.Query().Get("threshold"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid_input", Field: "threshold", Message: "threshold must be a positive integer"})
			return
		}
		threshold = n
	}
	items, err := h.service.LowStock(r.Context(), threshold)
	if err != nil {
		h.internal(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	it, err := h.service.Stock(r.Context(), chi.URLParam(r, "name"))
	if errors.Is(err, domain.ErrItemNotFound) {
		httpx.WriteError(w, http.StatusNotFound, httpx.ErrorBody{Error: "not_found", Message: err.Error()})
		return
	}
	if err != nil {
		h.internal(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, it)
}

func (h *Handler) internal(w http.ResponseWriter, err error) {
	h.log.Error("inventory request failed", "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, httpx.ErrorBody{Error: "internal", Message: "internal error"})
}
