package application

import (
	"context"
	"net/url"

	orderdomain "github.com/dmehra2102/venue-orders/internal/order/domain"
	"github.com/dmehra2102/venue-orders/internal/payment/domain"
	"github.com/shopspring/decimal"
)

// OrderStore is the slice of the order repository the payment flow needs.
// Update is a compare-and-set on the order version.
type OrderStore interface {
	Get(ctx context.Context, id string) (orderdomain.Order, error)
	GetByTransactionRef(ctx context.Context, ref string) (orderdomain.Order, error)
	Update(ctx context.Context, o orderdomain.Order) error
}

type Gateway interface {
	NewRequest(orderID string, amount decimal.Decimal, ipAddr, bankCode string) domain.PaymentRequest
	PaymentURL(req domain.PaymentRequest) (string, error)
	VerifyCallback(query url.Values) (domain.CallbackResult, error)
	QueryTransaction(ctx context.Context, txnRef string) (map[string]any, error)
}
