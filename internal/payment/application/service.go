package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	orderdomain "github.com/dmehra2102/venue-orders/internal/order/domain"
	"github.com/dmehra2102/venue-orders/internal/payment/domain"
	"github.com/shopspring/decimal"
)

const maxConflictRetries = 3

var hundred = decimal.NewFromInt(100)

type Service struct {
	log            *slog.Logger
	orders         OrderStore
	gateway        Gateway
	gatewayTimeout time.Duration
	now            func() time.Time
}

func NewService(log *slog.Logger, orders OrderStore, gateway Gateway, gatewayTimeout time.Duration) *Service {
	return &Service{
		log:            log,
		orders:         orders,
		gateway:        gateway,
		gatewayTimeout: gatewayTimeout,
		now:            time.Now,
	}
}

type CreatePaymentInput struct {
	UserID   string
	OrderID  string
	BankCode string
	IPAddr   string
}

// CreatePaymentURL signs a redirect URL for a pending order owned by the
// caller. The transaction reference is stored on the order before the URL is
// handed out, since the callback can only be matched through it.
func (s *Service) CreatePaymentURL(ctx context.Context, in CreatePaymentInput) (string, error) {
	for attempt := 1; ; attempt++ {
		o, err := s.ownedOrder(ctx, in.UserID, in.OrderID)
		if err != nil {
			return "", err
		}
		if o.Status != orderdomain.StatusPending {
			return "", domain.ErrOrderNotPending
		}

		req := s.gateway.NewRequest(o.ID, o.TotalAmount, in.IPAddr, in.BankCode)
		paymentURL, err := s.gateway.PaymentURL(req)
		if err != nil {
			return "", err
		}

		o.TransactionRef = req.TxnRef
		o.UpdatedAt = s.now().UTC()
		err = s.orders.Update(ctx, o)
		if errors.Is(err, orderdomain.ErrVersionConflict) && attempt < maxConflictRetries {
			s.log.Warn("order changed while creating payment, retrying", "order_id", o.ID, "attempt", attempt)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("store transaction ref: %w", err)
		}

		s.log.Info("payment url created", "order_id", o.ID, "txn_ref", req.TxnRef, "amount", o.TotalAmount.String())
		return paymentURL, nil
	}
}

// HandleCallback verifies a gateway return and completes the matching order.
// Only store failures are returned as errors; everything else is reported
// through the outcome.
func (s *Service) HandleCallback(ctx context.Context, query url.Values) (domain.CallbackOutcome, error) {
	res, err := s.gateway.VerifyCallback(query)
	if err != nil {
		s.log.Warn("payment callback rejected", "err", err)
		return domain.CallbackOutcome{Message: "Invalid signature"}, nil
	}
	log := s.log.With("txn_ref", res.TxnRef, "response_code", res.ResponseCode)

	for attempt := 1; ; attempt++ {
		o, err := s.orders.GetByTransactionRef(ctx, res.TxnRef)
		if errors.Is(err, orderdomain.ErrOrderNotFound) {
			log.Warn("payment callback for unknown transaction")
			return domain.CallbackOutcome{Message: "Order not found"}, nil
		}
		if err != nil {
			return domain.CallbackOutcome{}, err
		}

		if !res.Success() {
			log.Info("payment failed at gateway", "order_id", o.ID)
			return domain.CallbackOutcome{OrderID: o.ID, Message: "Payment failed"}, nil
		}
		if res.Amount != o.TotalAmount.Mul(hundred).Round(0).IntPart() {
			log.Error("payment amount mismatch", "order_id", o.ID, "amount", res.Amount, "total", o.TotalAmount.String())
			return domain.CallbackOutcome{OrderID: o.ID, Message: "Amount mismatch"}, nil
		}

		now := s.now().UTC()
		changed := o.CompletePayment(orderdomain.PaymentTransaction{
			TransactionID:       res.TransactionNo,
			BankCode:            res.BankCode,
			PaymentDate:         now,
			GatewayResponseCode: res.ResponseCode,
		}, now)
		if !changed {
			log.Info("repeated payment callback ignored", "order_id", o.ID)
			return domain.CallbackOutcome{Success: true, OrderID: o.ID}, nil
		}

		err = s.orders.Update(ctx, o)
		if errors.Is(err, orderdomain.ErrVersionConflict) && attempt < maxConflictRetries {
			log.Warn("order changed while completing payment, retrying", "order_id", o.ID, "attempt", attempt)
			continue
		}
		if err != nil {
			return domain.CallbackOutcome{}, fmt.Errorf("complete order %s: %w", o.ID, err)
		}

		log.Info("order paid", "order_id", o.ID, "transaction_no", res.TransactionNo)
		return domain.CallbackOutcome{Success: true, OrderID: o.ID}, nil
	}
}

type StatusReport struct {
	OrderStatus        orderdomain.Status              `json:"orderStatus"`
	PaymentTransaction *orderdomain.PaymentTransaction `json:"paymentTransaction"`
	GatewayStatus      map[string]any                  `json:"gatewayStatus"`
}

// CheckStatus reports the stored payment state next to the gateway's view of
// the latest attempt. Gateway failures end up in GatewayStatus, not in err.
func (s *Service) CheckStatus(ctx context.Context, userID, orderID string) (StatusReport, error) {
	o, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return StatusReport{}, err
	}
	report := StatusReport{OrderStatus: o.Status, PaymentTransaction: o.PaymentTransaction}

	if o.TransactionRef == "" {
		report.GatewayStatus = softError(domain.ErrNoPaymentAttempt)
		return report, nil
	}

	qctx := ctx
	if s.gatewayTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, s.gatewayTimeout)
		defer cancel()
	}
	status, err := s.gateway.QueryTransaction(qctx, o.TransactionRef)
	if err != nil {
		s.log.Warn("gateway status query failed", "order_id", o.ID, "txn_ref", o.TransactionRef, "err", err)
		report.GatewayStatus = softError(err)
		return report, nil
	}
	report.GatewayStatus = status
	return report, nil
}

func (s *Service) ownedOrder(ctx context.Context, userID, orderID string) (orderdomain.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return orderdomain.Order{}, err
	}
	if !o.OwnedBy(userID) {
		return orderdomain.Order{}, orderdomain.ErrOrderNotFound
	}
	return o, nil
}

func softError(err error) map[string]any {
	return map[string]any{"success": false, "error": err.Error()}
}
