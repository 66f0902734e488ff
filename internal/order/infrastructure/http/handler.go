package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/retailops/orderflow/internal/order/application"
	"github.com/retailops/orderflow/internal/order/domain"
	"github.com/retailops/orderflow/internal/order/infrastructure/postgres"
)

// WriteHandler serves the ingestion API.
type WriteHandler struct {
	log     *slog.Logger
	service *application.Service
	deep    func(r *http.Request) error
	tracer  trace.Tracer
}

func NewWriteHandler(log *slog.Logger, service *application.Service, deep func(r *http.Request) error) *WriteHandler {
	return &WriteHandler{
		log:     log,
		service: service,
		deep:    deep,
		tracer:  otel.Tracer("order-write-http"),
	}
}

type submitOrderReq struct {
	CustomerID string             `json:"customerId"`
	Items      []domain.OrderItem `json:"items"`
}

func (h *WriteHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/orders", h.submitOrder)
	r.Get("/health", health)
	r.Get("/health/deep", h.deepHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (h *WriteHandler) submitOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SubmitOrder")
	defer span.End()

	var req submitOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	orderID, err := h.service.SubmitOrder(ctx, req.CustomerID, req.Items)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Reason)
			return
		}
		h.log.Error("submit order failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"orderId": orderID, "status": "ACCEPTED"})
}

func (h *WriteHandler) deepHealth(w http.ResponseWriter, r *http.Request) {
	renderDeepHealth(w, r, h.log, h.deep)
}

// OrderGetter is the read path's only dependency.
type OrderGetter interface {
	Get(ctx context.Context, id string) (domain.Order, error)
}

// ReadHandler is the read-only lookup over the reader handle. It has no
// coordination logic.
type ReadHandler struct {
	log    *slog.Logger
	orders OrderGetter
	deep   func(r *http.Request) error
}

func NewReadHandler(log *slog.Logger, orders OrderGetter, deep func(r *http.Request) error) *ReadHandler {
	return &ReadHandler{log: log, orders: orders, deep: deep}
}

func (h *ReadHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/health", health)
	r.Get("/health/deep", h.deepHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (h *ReadHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	order, err := h.orders.Get(r.Context(), id)
	if errors.Is(err, postgres.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		h.log.Error("get order failed", "order_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *ReadHandler) deepHealth(w http.ResponseWriter, r *http.Request) {
	renderDeepHealth(w, r, h.log, h.deep)
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func renderDeepHealth(w http.ResponseWriter, r *http.Request, log *slog.Logger, check func(r *http.Request) error) {
	if err := check(r); err != nil {
		log.Error("deep health check failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "UNHEALTHY", "database": "DISCONNECTED"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "HEALTHY", "database": "CONNECTED"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
