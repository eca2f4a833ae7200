package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/venue-orders/internal/order/domain"
)

const maxConflictRetries = 3

// Processor applies command envelopes from the broker to the order store.
// Handle returns an error only for failures worth redelivering; business
// rejections are written to the command ledger and swallowed.
type Processor struct {
	log           *slog.Logger
	orders        OrderRepository
	store         CommandStore
	oracle        PriceOracle
	oracleTimeout time.Duration
	now           func() time.Time
}

func NewProcessor(log *slog.Logger, orders OrderRepository, store CommandStore, oracle PriceOracle, oracleTimeout time.Duration) *Processor {
	return &Processor{
		log:           log,
		orders:        orders,
		store:         store,
		oracle:        oracle,
		oracleTimeout: oracleTimeout,
		now:           time.Now,
	}
}

func (p *Processor) Handle(ctx context.Context, raw []byte) error {
	env, err := domain.DecodeEnvelope(raw)
	if err != nil {
		p.log.Error("discarding malformed command", "err", err)
		return nil
	}
	log := p.log.With("command_id", env.CommandID, "type", env.Type)

	rec, err := p.store.GetCommand(ctx, env.CommandID)
	switch {
	case err == nil && rec.Finished():
		log.Info("command already processed", "status", rec.Status)
		return nil
	case err != nil && !errors.Is(err, domain.ErrCommandNotFound):
		return fmt.Errorf("load command %s: %w", env.CommandID, err)
	}

	for attempt := 1; ; attempt++ {
		err = p.apply(ctx, env)
		if !errors.Is(err, domain.ErrVersionConflict) || attempt >= maxConflictRetries {
			break
		}
		log.Warn("order version conflict, retrying", "attempt", attempt)
	}

	switch {
	case err == nil:
		log.Info("command applied")
		return nil
	case errors.Is(err, domain.ErrDuplicateCommand):
		log.Info("command already processed")
		return nil
	case errors.Is(err, domain.ErrRejected):
		return p.reject(ctx, env, err)
	default:
		return err
	}
}

// Abandon records a command that could not be applied after repeated
// infrastructure failures.
func (p *Processor) Abandon(ctx context.Context, raw []byte, cause error) error {
	env, err := domain.DecodeEnvelope(raw)
	if err != nil {
		return nil
	}
	return p.reject(ctx, env, fmt.Errorf("abandoned after retries: %w", cause))
}

func (p *Processor) reject(ctx context.Context, env domain.CommandEnvelope, cause error) error {
	now := p.now().UTC()
	rec := domain.CommandRecord{
		CommandID: env.CommandID,
		Type:      env.Type,
		Status:    domain.CommandRejected,
		Reason:    cause.Error(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	rec.UserID, rec.OrderID = commandSubject(env)

	p.log.Error("command rejected", "command_id", env.CommandID, "type", env.Type, "order_id", rec.OrderID, "reason", rec.Reason)
	if err := p.store.RecordRejection(ctx, rec); err != nil && !errors.Is(err, domain.ErrDuplicateCommand) {
		return fmt.Errorf("record rejection: %w", err)
	}
	return nil
}

func (p *Processor) apply(ctx context.Context, env domain.CommandEnvelope) error {
	switch env.Type {
	case domain.CommandCreateOrder:
		return p.applyCreate(ctx, env)
	case domain.CommandUpdateOrder:
		return p.applyUpdate(ctx, env)
	default:
		return domain.Reject(fmt.Errorf("%w: %q", domain.ErrUnknownCommand, env.Type))
	}
}

func (p *Processor) applyCreate(ctx context.Context, env domain.CommandEnvelope) error {
	var payload domain.CreateOrderPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return domain.Reject(fmt.Errorf("decode payload: %w", err))
	}
	if payload.UserID == "" {
		return domain.Reject(errors.New("userId is required"))
	}
	if len(payload.Products) == 0 {
		return domain.Reject(domain.ErrEmptyOrder)
	}

	items, err := p.price(ctx, payload.Products)
	if err != nil {
		return err
	}

	now := p.now().UTC()
	order := domain.NewOrder(domain.OrderIDForCommand(env.CommandID), payload.UserID, items, now)
	rec := domain.CommandRecord{
		CommandID: env.CommandID,
		Type:      env.Type,
		UserID:    payload.UserID,
		Status:    domain.CommandApplied,
		OrderID:   order.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return p.store.ApplyCreate(ctx, rec, order)
}

func (p *Processor) applyUpdate(ctx context.Context, env domain.CommandEnvelope) error {
	var payload domain.UpdateOrderPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return domain.Reject(fmt.Errorf("decode payload: %w", err))
	}

	order, err := p.orders.Get(ctx, payload.OrderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return domain.Reject(fmt.Errorf("%w: %s", domain.ErrOrderNotFound, payload.OrderID))
	}
	if err != nil {
		return err
	}
	if payload.RequestedBy != "" && !order.OwnedBy(payload.RequestedBy) {
		return domain.Reject(domain.ErrNotOwner)
	}

	var status domain.Status
	if payload.Status != nil {
		if status, err = domain.ParseStatus(*payload.Status); err != nil {
			return domain.Reject(err)
		}
	}

	now := p.now().UTC()
	if len(payload.Products) > 0 {
		if order.Status == domain.StatusComplete {
			return domain.Reject(domain.ErrOrderClosed)
		}
		items, err := p.price(ctx, payload.Products)
		if err != nil {
			return err
		}
		if err := order.Reprice(items, now); err != nil {
			return domain.Reject(err)
		}
	}
	if payload.Status != nil {
		if err := order.SetStatus(status, now); err != nil {
			return domain.Reject(err)
		}
	}

	rec := domain.CommandRecord{
		CommandID: env.CommandID,
		Type:      env.Type,
		UserID:    order.UserID,
		Status:    domain.CommandApplied,
		OrderID:   order.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return p.store.ApplyUpdate(ctx, rec, order)
}

// price resolves every product against the oracle. One unresolvable product
// rejects the whole command.
func (p *Processor) price(ctx context.Context, products []domain.ProductQuantity) ([]domain.LineItem, error) {
	items := make([]domain.LineItem, 0, len(products))
	for _, pq := range products {
		if pq.ProductID == "" {
			return nil, domain.Reject(errors.New("productId is required"))
		}
		if pq.Quantity <= 0 {
			return nil, domain.Reject(fmt.Errorf("%w: %s", domain.ErrInvalidQuantity, pq.ProductID))
		}

		lookupCtx, cancel := context.WithTimeout(ctx, p.oracleTimeout)
		price, err := p.oracle.Price(lookupCtx, pq.ProductID)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, domain.ErrProductNotFound) {
				return nil, domain.Reject(fmt.Errorf("%w: %s", domain.ErrProductNotFound, pq.ProductID))
			}
			return nil, domain.Reject(fmt.Errorf("price lookup for %s: %w", pq.ProductID, err))
		}
		items = append(items, domain.LineItem{ProductID: pq.ProductID, Quantity: pq.Quantity, UnitPrice: price})
	}
	return items, nil
}

func commandSubject(env domain.CommandEnvelope) (userID, orderID string) {
	switch env.Type {
	case domain.CommandCreateOrder:
		var payload domain.CreateOrderPayload
		_ = json.Unmarshal(env.Payload, &payload)
		return payload.UserID, ""
	case domain.CommandUpdateOrder:
		var payload domain.UpdateOrderPayload
		_ = json.Unmarshal(env.Payload, &payload)
		return payload.RequestedBy, payload.OrderID
	}
	return "", ""
}
