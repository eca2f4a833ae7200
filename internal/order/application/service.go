package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/venue-orders/internal/order/domain"
	"github.com/google/uuid"
)

var (
	ErrDispatch   = errors.New("command dispatch failed")
	ErrValidation = errors.New("invalid request")
)

// Service accepts order commands from the API and hands them to the broker.
type Service struct {
	log        *slog.Logger
	dispatcher CommandDispatcher
	idem       IdempotencyKeys
	newID      func() string
}

func NewService(log *slog.Logger, dispatcher CommandDispatcher, idem IdempotencyKeys) *Service {
	return &Service{
		log:        log,
		dispatcher: dispatcher,
		idem:       idem,
		newID:      func() string { return uuid.NewString() },
	}
}

type CreateOrderInput struct {
	UserID         string
	Products       []domain.ProductQuantity
	IdempotencyKey string
	Traceparent    string
}

type UpdateOrderInput struct {
	UserID         string
	OrderID        string
	Products       []domain.ProductQuantity
	Status         *string
	IdempotencyKey string
	Traceparent    string
}

// Accepted is returned once a command is on its way to the consumer.
type Accepted struct {
	CommandID string
	Replayed  bool
}

func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (Accepted, error) {
	if len(in.Products) == 0 {
		return Accepted{}, domain.ErrEmptyOrder
	}
	if err := validateProducts(in.Products); err != nil {
		return Accepted{}, err
	}

	payload := domain.CreateOrderPayload{UserID: in.UserID, Products: in.Products}
	return s.dispatch(ctx, domain.CommandCreateOrder, in.UserID, in.UserID, "", payload, in.IdempotencyKey, in.Traceparent)
}

func (s *Service) UpdateOrder(ctx context.Context, in UpdateOrderInput) (Accepted, error) {
	if in.OrderID == "" {
		return Accepted{}, fmt.Errorf("%w: orderId is required", ErrValidation)
	}
	if len(in.Products) == 0 && in.Status == nil {
		return Accepted{}, fmt.Errorf("%w: nothing to update", ErrValidation)
	}
	if err := validateProducts(in.Products); err != nil {
		return Accepted{}, err
	}
	if in.Status != nil {
		if _, err := domain.ParseStatus(*in.Status); err != nil {
			return Accepted{}, err
		}
	}

	payload := domain.UpdateOrderPayload{
		OrderID:     in.OrderID,
		Products:    in.Products,
		Status:      in.Status,
		RequestedBy: in.UserID,
	}
	return s.dispatch(ctx, domain.CommandUpdateOrder, in.OrderID, in.UserID, in.OrderID, payload, in.IdempotencyKey, in.Traceparent)
}

func (s *Service) dispatch(ctx context.Context, t domain.CommandType, key, userID, orderID string, payload any, idemKey, traceparent string) (Accepted, error) {
	commandID := s.newID()

	var reservation string
	if idemKey != "" && s.idem != nil {
		reservation = fmt.Sprintf("%s:%s:%s", t, userID, idemKey)
		existing, reserved, err := s.idem.Reserve(ctx, reservation, commandID)
		if err != nil {
			return Accepted{}, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if !reserved {
			s.log.Info("idempotent replay", "command_id", existing, "user_id", userID)
			return Accepted{CommandID: existing, Replayed: true}, nil
		}
	}

	env, err := domain.NewEnvelope(t, commandID, payload)
	if err != nil {
		return Accepted{}, err
	}
	cmd := OutgoingCommand{Envelope: env, Key: key, UserID: userID, OrderID: orderID, Traceparent: traceparent}
	if err := s.dispatcher.Dispatch(ctx, cmd); err != nil {
		if reservation != "" {
			if rerr := s.idem.Release(ctx, reservation); rerr != nil {
				s.log.Error("release idempotency key failed", "key", reservation, "err", rerr)
			}
		}
		s.log.Error("dispatch command failed", "command_id", commandID, "type", t, "err", err)
		return Accepted{}, fmt.Errorf("%w: %v", ErrDispatch, err)
	}

	s.log.Info("command accepted", "command_id", commandID, "type", t, "user_id", userID)
	return Accepted{CommandID: commandID}, nil
}

func validateProducts(products []domain.ProductQuantity) error {
	for _, p := range products {
		if p.ProductID == "" {
			return fmt.Errorf("%w: productId is required", ErrValidation)
		}
		if p.Quantity <= 0 {
			return fmt.Errorf("%w: %s", domain.ErrInvalidQuantity, p.ProductID)
		}
	}
	return nil
}

// DirectDispatcher publishes commands synchronously. The ledger row is written
// first so the command id resolves even if the consumer wins the race.
type DirectDispatcher struct {
	log    *slog.Logger
	pub    Publisher
	ledger CommandLedger
	now    func() time.Time
}

func NewDirectDispatcher(log *slog.Logger, pub Publisher, ledger CommandLedger) *DirectDispatcher {
	return &DirectDispatcher{log: log, pub: pub, ledger: ledger, now: time.Now}
}

func (d *DirectDispatcher) Dispatch(ctx context.Context, cmd OutgoingCommand) error {
	now := d.now().UTC()
	rec := domain.CommandRecord{
		CommandID: cmd.Envelope.CommandID,
		Type:      cmd.Envelope.Type,
		UserID:    cmd.UserID,
		Status:    domain.CommandAccepted,
		OrderID:   cmd.OrderID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.ledger.RecordAccepted(ctx, rec); err != nil {
		return fmt.Errorf("record command: %w", err)
	}

	value, err := json.Marshal(cmd.Envelope)
	if err != nil {
		return err
	}
	headers := map[string]string{"event_type": string(cmd.Envelope.Type)}
	if cmd.Traceparent != "" {
		headers["traceparent"] = cmd.Traceparent
	}
	if err := d.pub.Publish(ctx, cmd.Key, value, headers); err != nil {
		rec.Status = domain.CommandRejected
		rec.Reason = "broker unavailable"
		rec.UpdatedAt = d.now().UTC()
		if lerr := d.ledger.RecordRejection(ctx, rec); lerr != nil {
			d.log.Error("record command rejection failed", "command_id", rec.CommandID, "err", lerr)
		}
		return err
	}
	return nil
}
