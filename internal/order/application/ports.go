package application

import (
	"context"

	"github.com/dmehra2102/venue-orders/internal/order/domain"
	"github.com/shopspring/decimal"
)

type OrderRepository interface {
	Get(ctx context.Context, id string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
}

// CommandStore persists the outcome of a command together with its ledger
// entry. Apply* return domain.ErrDuplicateCommand when the ledger already
// holds a final outcome for the command.
type CommandStore interface {
	GetCommand(ctx context.Context, commandID string) (domain.CommandRecord, error)
	ApplyCreate(ctx context.Context, rec domain.CommandRecord, o domain.Order) error
	ApplyUpdate(ctx context.Context, rec domain.CommandRecord, o domain.Order) error
	RecordRejection(ctx context.Context, rec domain.CommandRecord) error
}

// CommandLedger records commands accepted by the API.
type CommandLedger interface {
	RecordAccepted(ctx context.Context, rec domain.CommandRecord) error
	RecordRejection(ctx context.Context, rec domain.CommandRecord) error
	GetCommand(ctx context.Context, commandID string) (domain.CommandRecord, error)
}

type PriceOracle interface {
	Price(ctx context.Context, productID string) (decimal.Decimal, error)
}

// OutgoingCommand is an envelope ready for the broker.
type OutgoingCommand struct {
	Envelope    domain.CommandEnvelope
	Key         string
	UserID      string
	OrderID     string
	Traceparent string
}

type CommandDispatcher interface {
	Dispatch(ctx context.Context, cmd OutgoingCommand) error
}

type Publisher interface {
	Publish(ctx context.Context, key string, value []byte, headers map[string]string) error
}

// IdempotencyKeys remembers client supplied request keys. Reserve returns the
// value stored by an earlier request when the key is already taken.
type IdempotencyKeys interface {
	Reserve(ctx context.Context, key, value string) (existing string, reserved bool, err error)
	Release(ctx context.Context, key string) error
}
