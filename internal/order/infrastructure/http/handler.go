package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmehra2102/venue-orders/internal/order/application"
	"github.com/dmehra2102/venue-orders/internal/order/domain"
	"github.com/dmehra2102/venue-orders/pkg/auth"
	"github.com/dmehra2102/venue-orders/pkg/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Handler struct {
	log      *slog.Logger
	service  *application.Service
	queries  *application.QueryService
	validate *validator.Validate
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, queries *application.QueryService) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		queries:  queries,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		tracer:   otel.Tracer("order-http"),
	}
}

type createOrderReq struct {
	Products []domain.ProductQuantity `json:"products" validate:"required,min=1,dive"`
}

type updateOrderReq struct {
	Products []domain.ProductQuantity `json:"products" validate:"omitempty,dive"`
	Status   *string                  `json:"status" validate:"omitempty,oneof=pending complete"`
}

type acceptedResp struct {
	Message   string `json:"message"`
	CommandID string `json:"commandId"`
}

// Routes expects auth.Middleware to run in front of it.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.createOrder)
	r.Get("/my-orders", h.myOrders)
	r.Get("/commands/{commandId}", h.commandStatus)
	r.Put("/{orderId}", h.updateOrder)
	return r
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	userID, err := auth.CallerID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	acc, err := h.service.CreateOrder(ctx, application.CreateOrderInput{
		UserID:         userID,
		Products:       req.Products,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Traceparent:    tracing.Traceparent(ctx),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	span.SetAttributes(attribute.String("command.id", acc.CommandID))

	writeJSON(w, http.StatusAccepted, acceptedResp{Message: "Order is being processed", CommandID: acc.CommandID})
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateOrder")
	defer span.End()

	userID, err := auth.CallerID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	orderID := chi.URLParam(r, "orderId")
	span.SetAttributes(attribute.String("order.id", orderID))

	var req updateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	acc, err := h.service.UpdateOrder(ctx, application.UpdateOrderInput{
		UserID:         userID,
		OrderID:        orderID,
		Products:       req.Products,
		Status:         req.Status,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Traceparent:    tracing.Traceparent(ctx),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedResp{Message: "Order update is being processed", CommandID: acc.CommandID})
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListMyOrders")
	defer span.End()

	userID, err := auth.CallerID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	orders, err := h.queries.OrdersForUser(ctx, userID)
	if err != nil {
		h.log.Error("list orders failed", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": orders})
}

func (h *Handler) commandStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CommandStatus")
	defer span.End()

	userID, err := auth.CallerID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	rec, err := h.queries.CommandStatus(ctx, userID, chi.URLParam(r, "commandId"))
	if errors.Is(err, domain.ErrCommandNotFound) {
		writeError(w, http.StatusNotFound, "command not found")
		return
	}
	if err != nil {
		h.log.Error("command status failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, application.ErrValidation),
		errors.Is(err, domain.ErrEmptyOrder),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "failed to publish order command")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
