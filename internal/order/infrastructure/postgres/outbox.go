package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/venue-orders/internal/order/application"
	"github.com/dmehra2102/venue-orders/internal/order/domain"
	"github.com/dmehra2102/venue-orders/pkg/outbox"
	"github.com/jackc/pgx/v5"
)

const maxOutboxAttempts = 10

// OutboxStore enqueues commands next to their ledger row and serves batches
// to the outbox relay.
type OutboxStore struct {
	log  *slog.Logger
	pool DBPool
	now  func() time.Time
}

func NewOutboxStore(log *slog.Logger, pool DBPool) *OutboxStore {
	return &OutboxStore{log: log, pool: pool, now: time.Now}
}

// Dispatch stores the command and its ledger row in one transaction.
func (s *OutboxStore) Dispatch(ctx context.Context, cmd application.OutgoingCommand) error {
	payload, err := json.Marshal(cmd.Envelope)
	if err != nil {
		return err
	}
	now := s.now().UTC()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rec := domain.CommandRecord{
		CommandID: cmd.Envelope.CommandID,
		Type:      cmd.Envelope.Type,
		UserID:    cmd.UserID,
		OrderID:   cmd.OrderID,
		CreatedAt: now,
	}
	if err := insertAccepted(ctx, tx, rec); err != nil {
		return err
	}

	headers := map[string]string{"command_id": cmd.Envelope.CommandID}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,'pending',$7)
	`, "order", cmd.Key, string(cmd.Envelope.Type), payload, headers, cmd.Traceparent, now)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return tx.Commit(ctx)
}

// LockBatch leases pending events, and events whose lease expired, to relayID.
func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, type, payload, headers, traceparent, created_at, retry_count
		FROM outbox
		WHERE status = 'pending' OR (status = 'in_progress' AND lease_until < now())
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, batchSize)
	if err != nil {
		return nil, err
	}

	var events []outbox.Event
	for rows.Next() {
		var event outbox.Event
		var headers map[string]string
		if err := rows.Scan(&event.ID, &event.AggregateType, &event.AggregateID, &event.Type, &event.Payload, &headers, &event.Traceparent, &event.CreatedAt, &event.RetryCount); err != nil {
			rows.Close()
			return nil, err
		}
		event.Headers = headers
		event.Status = outbox.StatusInProgress
		event.RelayID = relayID
		events = append(events, event)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}

	_, err = tx.Exec(ctx, `
		UPDATE outbox SET status='in_progress', relay_id=$1, lease_until=now() + ($2 * interval '1 millisecond')
		WHERE id = ANY($3)
	`, relayID, lease.Milliseconds(), ids)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	ct, err := s.pool.Exec(ctx, `UPDATE outbox SET status='sent', lease_until=NULL WHERE id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.New("no rows updated")
	}
	return nil
}

// MarkFailed returns the event to the queue, or parks it as failed once it
// has used up its attempts. Parking also rejects the command in the ledger so
// pollers see a final status.
func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var status, typ, commandID string
	err = tx.QueryRow(ctx, `
		UPDATE outbox
		SET status = CASE WHEN retry_count + 1 >= $3 THEN 'failed' ELSE 'pending' END,
			last_error=$2, retry_count=retry_count+1, lease_until=NULL
		WHERE id=$1
		RETURNING status, type, COALESCE(headers->>'command_id', '')
	`, id, errMsg, maxOutboxAttempts).Scan(&status, &typ, &commandID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}

	if status == string(outbox.StatusFailed) && commandID != "" {
		rec := domain.CommandRecord{
			CommandID: commandID,
			Type:      domain.CommandType(typ),
			Status:    domain.CommandRejected,
			Reason:    "undeliverable: " + errMsg,
			UpdatedAt: s.now().UTC(),
		}
		if err := finishCommand(ctx, tx, rec); err != nil && !errors.Is(err, domain.ErrDuplicateCommand) {
			return err
		}
		s.log.Warn("outbox event parked", "event_id", id, "command_id", commandID, "err", errMsg)
	}
	return tx.Commit(ctx)
}

func (s *OutboxStore) ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox SET lease_until=now() + ($1 * interval '1 millisecond')
		WHERE id = ANY($2) AND relay_id=$3
	`, lease.Milliseconds(), ids, relayID)
	return err
}
