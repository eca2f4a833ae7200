package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
)

// DefaultPaymentMethod is recorded until a gateway callback names the bank.
const DefaultPaymentMethod = "Cash"

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusComplete:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

type LineItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// MarshalJSON writes unitPrice as a JSON number regardless of
// decimal.MarshalJSONWithoutQuotes, so every process stores line_items alike.
func (li LineItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ProductID string      `json:"productId"`
		Quantity  int         `json:"quantity"`
		UnitPrice json.Number `json:"unitPrice"`
	}{li.ProductID, li.Quantity, json.Number(li.UnitPrice.String())})
}

type PaymentTransaction struct {
	TransactionID       string    `json:"transactionId"`
	BankCode            string    `json:"bankCode"`
	PaymentDate         time.Time `json:"paymentDate"`
	GatewayResponseCode string    `json:"gatewayResponseCode"`
}

type Order struct {
	ID                 string              `json:"id"`
	UserID             string              `json:"userId"`
	LineItems          []LineItem          `json:"lineItems"`
	TotalAmount        decimal.Decimal     `json:"totalAmount"`
	Status             Status              `json:"status"`
	PaymentMethod      string              `json:"paymentMethod"`
	TransactionRef     string              `json:"transactionRef,omitempty"`
	PaymentTransaction *PaymentTransaction `json:"paymentTransaction,omitempty"`
	Version            int64               `json:"-"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

func NewOrder(id, userID string, items []LineItem, now time.Time) Order {
	return Order{
		ID:            id,
		UserID:        userID,
		LineItems:     items,
		TotalAmount:   Total(items),
		Status:        StatusPending,
		PaymentMethod: DefaultPaymentMethod,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Total sums unitPrice × quantity over the items.
func Total(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// Reprice replaces the line items with freshly priced ones and recomputes the total.
func (o *Order) Reprice(items []LineItem, now time.Time) error {
	if o.Status == StatusComplete {
		return ErrOrderClosed
	}
	o.LineItems = items
	o.TotalAmount = Total(items)
	o.UpdatedAt = now
	return nil
}

func (o *Order) SetStatus(s Status, now time.Time) error {
	if o.Status == s {
		return nil
	}
	if o.Status == StatusComplete {
		return ErrStatusRegression
	}
	o.Status = s
	o.UpdatedAt = now
	return nil
}

func (o Order) OwnedBy(userID string) bool {
	return o.UserID == userID
}

// CompletePayment moves a pending order to complete and records the gateway
// transaction. It reports false when the order was already complete.
func (o *Order) CompletePayment(tx PaymentTransaction, now time.Time) bool {
	if o.Status == StatusComplete {
		return false
	}
	o.Status = StatusComplete
	o.PaymentTransaction = &tx
	if tx.BankCode != "" {
		o.PaymentMethod = tx.BankCode
	}
	o.UpdatedAt = now
	return true
}
