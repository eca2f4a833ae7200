package domain

import (
	"errors"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const ResponseSuccess = "00"

var (
	ErrOrderNotPending  = errors.New("order is not pending")
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNoPaymentAttempt = errors.New("no payment attempt recorded")
	ErrAmountMismatch   = errors.New("amount mismatch")
)

// PaymentRequest is one payment attempt to be signed for the gateway.
type PaymentRequest struct {
	TxnRef    string
	OrderInfo string
	Amount    decimal.Decimal
	IPAddr    string
	BankCode  string
	CreatedAt time.Time
}

// CallbackResult holds the verified fields of a gateway return.
type CallbackResult struct {
	TxnRef            string
	ResponseCode      string
	TransactionNo     string
	BankCode          string
	TransactionStatus string
	Amount            int64
}

func (r CallbackResult) Success() bool {
	return r.ResponseCode == ResponseSuccess
}

// CallbackOutcome is what the browser is told after a gateway return.
type CallbackOutcome struct {
	Success bool
	OrderID string
	Message string
}

// RedirectURL renders the outcome as the frontend's callback page.
func (o CallbackOutcome) RedirectURL(frontend string) string {
	q := url.Values{}
	if o.Success {
		q.Set("success", "true")
	} else {
		q.Set("success", "false")
	}
	if o.OrderID != "" {
		q.Set("orderId", o.OrderID)
	}
	if o.Message != "" {
		q.Set("message", o.Message)
	}
	return frontend + "/payment/callback?" + q.Encode()
}
