package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type CommandType string

const (
	CommandCreateOrder CommandType = "CREATE_ORDER"
	CommandUpdateOrder CommandType = "UPDATE_ORDER"
)

// CommandEnvelope is the message carried on the order topic.
type CommandEnvelope struct {
	Type      CommandType     `json:"type"`
	CommandID string          `json:"commandId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type ProductQuantity struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type CreateOrderPayload struct {
	UserID   string            `json:"userId"`
	Products []ProductQuantity `json:"products"`
}

type UpdateOrderPayload struct {
	OrderID     string            `json:"orderId"`
	Products    []ProductQuantity `json:"products,omitempty"`
	Status      *string           `json:"status,omitempty"`
	RequestedBy string            `json:"requestedBy,omitempty"`
}

func NewEnvelope(t CommandType, commandID string, payload any) (CommandEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return CommandEnvelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return CommandEnvelope{Type: t, CommandID: commandID, Payload: raw}, nil
}

// DecodeEnvelope parses a broker message. Envelopes published without a
// command id are identified by the SHA-256 of their raw bytes so that a
// redelivery of the same message maps to the same ledger row.
func DecodeEnvelope(raw []byte) (CommandEnvelope, error) {
	var env CommandEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return CommandEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.CommandID == "" {
		sum := sha256.Sum256(raw)
		env.CommandID = hex.EncodeToString(sum[:])
	}
	return env, nil
}

type CommandStatus string

const (
	CommandAccepted CommandStatus = "accepted"
	CommandApplied  CommandStatus = "applied"
	CommandRejected CommandStatus = "rejected"
)

// CommandRecord is the ledger entry for one command.
type CommandRecord struct {
	CommandID string        `json:"commandId"`
	Type      CommandType   `json:"type"`
	UserID    string        `json:"-"`
	Status    CommandStatus `json:"status"`
	OrderID   string        `json:"orderId,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func (r CommandRecord) Finished() bool {
	return r.Status == CommandApplied || r.Status == CommandRejected
}

// OrderIDForCommand derives the id of the order a CREATE_ORDER command
// produces, so a redelivered command maps to the same order.
func OrderIDForCommand(commandID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("order-command:"+commandID)).String()
}
