package application

import (
	"context"

	"github.com/dmehra2102/venue-orders/internal/order/domain"
)

type QueryService struct {
	orders OrderRepository
	ledger CommandLedger
}

func NewQueryService(orders OrderRepository, ledger CommandLedger) *QueryService {
	return &QueryService{orders: orders, ledger: ledger}
}

func (q *QueryService) OrdersForUser(ctx context.Context, userID string) ([]domain.Order, error) {
	orders, err := q.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

// CommandStatus reports the ledger entry of a command submitted by userID.
// Commands of other users are reported as not found.
func (q *QueryService) CommandStatus(ctx context.Context, userID, commandID string) (domain.CommandRecord, error) {
	rec, err := q.ledger.GetCommand(ctx, commandID)
	if err != nil {
		return domain.CommandRecord{}, err
	}
	if rec.UserID != "" && rec.UserID != userID {
		return domain.CommandRecord{}, domain.ErrCommandNotFound
	}
	return rec, nil
}
