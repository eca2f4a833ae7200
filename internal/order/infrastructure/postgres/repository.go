package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/venue-orders/internal/order/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	Executor
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Executor is satisfied by both the pool and a transaction.
type Executor interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

const orderColumns = `id, user_id, line_items, total_amount, status, payment_method,
	COALESCE(transaction_ref, ''), COALESCE(payment_transaction, 'null'::jsonb), version, created_at, updated_at`

type Repository struct {
	log  *slog.Logger
	pool DBPool
}

func NewRepository(log *slog.Logger, pool DBPool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, err
}

func (r *Repository) GetByTransactionRef(ctx context.Context, ref string) (domain.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE transaction_ref=$1`, ref)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, err
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Update writes o if the stored version still equals o.Version.
func (r *Repository) Update(ctx context.Context, o domain.Order) error {
	return updateOrder(ctx, r.pool, o)
}

func (r *Repository) GetCommand(ctx context.Context, commandID string) (domain.CommandRecord, error) {
	var rec domain.CommandRecord
	var typ, status string
	err := r.pool.QueryRow(ctx, `
		SELECT command_id, type, user_id, status, order_id, reason, created_at, updated_at
		FROM order_commands WHERE command_id=$1
	`, commandID).Scan(&rec.CommandID, &typ, &rec.UserID, &status, &rec.OrderID, &rec.Reason, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CommandRecord{}, domain.ErrCommandNotFound
	}
	if err != nil {
		return domain.CommandRecord{}, fmt.Errorf("select command: %w", err)
	}
	rec.Type = domain.CommandType(typ)
	rec.Status = domain.CommandStatus(status)
	return rec, nil
}

func (r *Repository) RecordAccepted(ctx context.Context, rec domain.CommandRecord) error {
	return insertAccepted(ctx, r.pool, rec)
}

func (r *Repository) RecordRejection(ctx context.Context, rec domain.CommandRecord) error {
	rec.Status = domain.CommandRejected
	return finishCommand(ctx, r.pool, rec)
}

func (r *Repository) ApplyCreate(ctx context.Context, rec domain.CommandRecord, o domain.Order) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := finishCommand(ctx, tx, rec); err != nil {
			return err
		}
		items, err := json.Marshal(o.LineItems)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO orders (id, user_id, line_items, total_amount, status, payment_method, version, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,1,$7,$7)
			ON CONFLICT (id) DO NOTHING
		`, o.ID, o.UserID, items, o.TotalAmount, string(o.Status), o.PaymentMethod, o.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
}

func (r *Repository) ApplyUpdate(ctx context.Context, rec domain.CommandRecord, o domain.Order) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := finishCommand(ctx, tx, rec); err != nil {
			return err
		}
		return updateOrder(ctx, tx, o)
	})
}

func (r *Repository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func updateOrder(ctx context.Context, exec Executor, o domain.Order) error {
	items, err := json.Marshal(o.LineItems)
	if err != nil {
		return err
	}
	var paymentTx []byte
	if o.PaymentTransaction != nil {
		if paymentTx, err = json.Marshal(o.PaymentTransaction); err != nil {
			return err
		}
	}

	ct, err := exec.Exec(ctx, `
		UPDATE orders
		SET line_items=$3, total_amount=$4, status=$5, payment_method=$6, transaction_ref=$7,
			payment_transaction=$8, version=version+1, updated_at=$9
		WHERE id=$1 AND version=$2
	`, o.ID, o.Version, items, o.TotalAmount, string(o.Status), o.PaymentMethod, nullString(o.TransactionRef), paymentTx, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func insertAccepted(ctx context.Context, exec Executor, rec domain.CommandRecord) error {
	_, err := exec.Exec(ctx, `
		INSERT INTO order_commands (command_id, type, user_id, status, order_id, reason, created_at, updated_at)
		VALUES ($1,$2,$3,'accepted',$4,'',$5,$5)
		ON CONFLICT (command_id) DO NOTHING
	`, rec.CommandID, string(rec.Type), rec.UserID, rec.OrderID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert command: %w", err)
	}
	return nil
}

// finishCommand moves a command to its final status. A command that already
// has one yields domain.ErrDuplicateCommand.
func finishCommand(ctx context.Context, exec Executor, rec domain.CommandRecord) error {
	ct, err := exec.Exec(ctx, `
		INSERT INTO order_commands (command_id, type, user_id, status, order_id, reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
		ON CONFLICT (command_id) DO UPDATE
		SET status=EXCLUDED.status,
			order_id=CASE WHEN EXCLUDED.order_id <> '' THEN EXCLUDED.order_id ELSE order_commands.order_id END,
			reason=EXCLUDED.reason,
			updated_at=EXCLUDED.updated_at
		WHERE order_commands.status = 'accepted'
	`, rec.CommandID, string(rec.Type), rec.UserID, string(rec.Status), rec.OrderID, rec.Reason, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("finish command: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrDuplicateCommand
	}
	return nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o         domain.Order
		items     []byte
		status    string
		paymentTx []byte
		total     decimal.Decimal
	)
	err := row.Scan(&o.ID, &o.UserID, &items, &total, &status, &o.PaymentMethod,
		&o.TransactionRef, &paymentTx, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	if err := json.Unmarshal(items, &o.LineItems); err != nil {
		return domain.Order{}, fmt.Errorf("decode line items of %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(paymentTx, &o.PaymentTransaction); err != nil {
		return domain.Order{}, fmt.Errorf("decode payment transaction of %s: %w", o.ID, err)
	}
	o.TotalAmount = total
	o.Status = domain.Status(status)
	return o, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
