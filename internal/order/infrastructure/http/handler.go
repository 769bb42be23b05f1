package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/foodshare/internal/order/application"
	"github.com/dmehra2102/foodshare/internal/order/domain"
	"github.com/dmehra2102/foodshare/pkg/httpx"
	"github.com/dmehra2102/foodshare/pkg/idempotency"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	idem    *idempotency.Store
	tracer  trace.Tracer
}

// NewHandler builds the order API. idem may be nil, in which case Idempotency-Key
// headers are ignored.
func NewHandler(log *slog.Logger, service *application.Service, idem *idempotency.Store) *Handler {
	return &Handler{
		log:     log,
		service: service,
		idem:    idem,
		tracer:  otel.Tracer("order-http"),
	}
}

type submitOrderReq struct {
	CustomerID      string         `json:"customer_id"`
	DeliveryAddress string         `json:"delivery_address"`
	PartySize       int            `json:"party_size"`
	Items           map[string]int `json:"items"`
}

type updateStatusReq struct {
	Status string `json:"status"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (h *Handler) Register(r chi.Router) {
	submit := http.Handler(http.HandlerFunc(h.submitOrder))
	if h.idem != nil {
		submit = idempotency.Middleware(h.log, h.idem, "orders")(submit)
	}
	r.Method(http.MethodPost, "/orders", submit)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/stats", h.stats)
	r.Get("/orders/{id}", h.getOrder)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Get("/customers/{customerID}/orders/active", h.trackOrder)
	r.Get("/customers/{customerID}/orders/history", h.orderHistory)
}

func (h *Handler) submitOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SubmitOrderHTTP")
	defer span.End()

	var req submitOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid_body", Message: "invalid body"})
		return
	}

	o, err := h.service.SubmitOrder(ctx, domain.Request{
		CustomerID:      req.CustomerID,
		DeliveryAddress: req.DeliveryAddress,
		PartySize:       req.PartySize,
		Items:           req.Items,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}

	span.SetAttributes(attribute.Int64("order.id", o.ID))
	httpx.WriteJSON(w, http.StatusCreated, o)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.Filter{
		CustomerID:      q.Get("customer_id"),
		AddressContains: q.Get("address"),
	}
	if s := q.Get("status"); s != "" {
		st, err := domain.ParseStatus(s)
		if err != nil {
			h.writeErr(w, err)
			return
		}
		f.Status = st
	}
	if d := q.Get("day"); d != "" {
		day, err := time.Parse(time.DateOnly, d)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid_input", Field: "day", Message: "day must be YYYY-MM-DD"})
			return
		}
		f.Day = day
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid_input", Field: "limit", Message: "limit must be a non-negative integer"})
			return
		}
		f.Limit = n
	}

	orders, err := h.service.ListOrders(r.Context(), f)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orders)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, counts)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	o, found, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if !found {
		httpx.WriteError(w, http.StatusNotFound, httpx.ErrorBody{Error: "not_found", Message: "order not found"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateOrderStatusHTTP")
	defer span.End()

	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid_body", Message: "invalid body"})
		return
	}
	to, err := domain.ParseStatus(req.Status)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	found, err := h.service.UpdateOrderStatus(ctx, id, to)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if !found {
		httpx.WriteError(w, http.StatusNotFound, httpx.ErrorBody{Error: "not_found", Message: "order not found"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order_id": id, "status": to})
}

func (h *Handler) trackOrder(w http.ResponseWriter, r *http.Request) {
	o, found, err := h.service.TrackOrder(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if !found {
		httpx.WriteError(w, http.StatusNotFound, httpx.ErrorBody{Error: "not_found", Message: "no active order"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) orderHistory(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.OrderHistory(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orders)
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid_input", Field: "id", Message: "order id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	var (
		ve *domain.ValidationError
		ae *domain.AvailabilityError
	)
	switch {
	case errors.As(err, &ve):
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid_input", Field: ve.Field, Message: ve.Error()})
	case errors.Is(err, domain.ErrUnknownStatus):
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: "unknown_status", Message: err.Error()})
	case errors.As(err, &ae):
		httpx.WriteError(w, http.StatusConflict, httpx.ErrorBody{Error: "unavailable", Message: ae.Error(), Details: ae.Shortfalls})
	case errors.Is(err, domain.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, httpx.ErrorBody{Error: "invalid_transition", Message: err.Error()})
	default:
		h.log.Error("request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, httpx.ErrorBody{Error: "internal", Message: "internal error"})
	}
}
