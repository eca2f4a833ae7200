package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	orderdomain "github.com/dmehra2102/venue-orders/internal/order/domain"
	"github.com/dmehra2102/venue-orders/internal/payment/application"
	"github.com/dmehra2102/venue-orders/internal/payment/domain"
	"github.com/dmehra2102/venue-orders/pkg/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Handler struct {
	log         *slog.Logger
	service     *application.Service
	frontendURL string
	validate    *validator.Validate
	tracer      trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, frontendURL string) *Handler {
	return &Handler{
		log:         log,
		service:     service,
		frontendURL: frontendURL,
		validate:    validator.New(),
		tracer:      otel.Tracer("payment-http"),
	}
}

type createURLReq struct {
	OrderID  string `json:"orderId" validate:"required"`
	BankCode string `json:"bankCode" validate:"omitempty,max=20,alphanum"`
}

// Routes mounts the gateway callback without authentication; the other
// routes go through authMW.
func (h *Handler) Routes(authMW func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/callback", h.callback)
	r.Group(func(r chi.Router) {
		r.Use(authMW)
		r.Post("/create-url", h.createURL)
		r.Get("/status/{orderId}", h.status)
	})
	return r
}

func (h *Handler) createURL(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreatePaymentURL")
	defer span.End()

	userID, err := auth.CallerID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req createURLReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	span.SetAttributes(attribute.String("order.id", req.OrderID))

	paymentURL, err := h.service.CreatePaymentURL(ctx, application.CreatePaymentInput{
		UserID:   userID,
		OrderID:  req.OrderID,
		BankCode: req.BankCode,
		IPAddr:   r.RemoteAddr,
	})
	switch {
	case errors.Is(err, orderdomain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "Order not found")
		return
	case errors.Is(err, domain.ErrOrderNotPending):
		writeError(w, http.StatusBadRequest, "Order is not pending")
		return
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		h.log.Error("create payment url failed", "order_id", req.OrderID, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"paymentUrl": paymentURL,
		"orderId":    req.OrderID,
	})
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PaymentCallback")
	defer span.End()

	out, err := h.service.HandleCallback(ctx, r.URL.Query())
	if err != nil {
		h.log.Error("payment callback failed", "err", err)
		out = domain.CallbackOutcome{Message: "Internal server error"}
	}
	span.SetAttributes(attribute.Bool("payment.success", out.Success), attribute.String("order.id", out.OrderID))

	http.Redirect(w, r, out.RedirectURL(h.frontendURL), http.StatusFound)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CheckPaymentStatus")
	defer span.End()

	userID, err := auth.CallerID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	orderID := chi.URLParam(r, "orderId")

	rep, err := h.service.CheckStatus(ctx, userID, orderID)
	if errors.Is(err, orderdomain.ErrOrderNotFound) {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}
	if err != nil {
		h.log.Error("check payment status failed", "order_id", orderID, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"orderStatus":        rep.OrderStatus,
		"paymentTransaction": rep.PaymentTransaction,
		"gatewayStatus":      rep.GatewayStatus,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
