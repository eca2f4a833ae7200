package application

import (
	"context"
	"io"
	"log/slog"

	"github.com/dmehra2102/venue-orders/internal/order/domain"
	"github.com/shopspring/decimal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeOrders struct {
	getFunc        func(ctx context.Context, id string) (domain.Order, error)
	listByUserFunc func(ctx context.Context, userID string) ([]domain.Order, error)
}

func (f *fakeOrders) Get(ctx context.Context, id string) (domain.Order, error) {
	if f.getFunc != nil {
		return f.getFunc(ctx, id)
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

func (f *fakeOrders) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	if f.listByUserFunc != nil {
		return f.listByUserFunc(ctx, userID)
	}
	return nil, nil
}

type fakeStore struct {
	commands  map[string]domain.CommandRecord
	created   []domain.Order
	updated   []domain.Order
	rejected  []domain.CommandRecord
	updateErr []error
	rejectErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{commands: map[string]domain.CommandRecord{}}
}

func (f *fakeStore) GetCommand(ctx context.Context, commandID string) (domain.CommandRecord, error) {
	rec, ok := f.commands[commandID]
	if !ok {
		return domain.CommandRecord{}, domain.ErrCommandNotFound
	}
	return rec, nil
}

func (f *fakeStore) finish(rec domain.CommandRecord) error {
	if existing, ok := f.commands[rec.CommandID]; ok && existing.Finished() {
		return domain.ErrDuplicateCommand
	}
	f.commands[rec.CommandID] = rec
	return nil
}

func (f *fakeStore) ApplyCreate(ctx context.Context, rec domain.CommandRecord, o domain.Order) error {
	if err := f.finish(rec); err != nil {
		return err
	}
	f.created = append(f.created, o)
	return nil
}

func (f *fakeStore) ApplyUpdate(ctx context.Context, rec domain.CommandRecord, o domain.Order) error {
	if len(f.updateErr) > 0 {
		err := f.updateErr[0]
		f.updateErr = f.updateErr[1:]
		if err != nil {
			return err
		}
	}
	if err := f.finish(rec); err != nil {
		return err
	}
	f.updated = append(f.updated, o)
	return nil
}

func (f *fakeStore) RecordRejection(ctx context.Context, rec domain.CommandRecord) error {
	if f.rejectErr != nil {
		return f.rejectErr
	}
	if err := f.finish(rec); err != nil {
		return err
	}
	f.rejected = append(f.rejected, rec)
	return nil
}

func (f *fakeStore) RecordAccepted(ctx context.Context, rec domain.CommandRecord) error {
	if _, ok := f.commands[rec.CommandID]; !ok {
		f.commands[rec.CommandID] = rec
	}
	return nil
}

type fakeOracle struct {
	prices map[string]decimal.Decimal
	err    error
	calls  int
}

func (f *fakeOracle) Price(ctx context.Context, productID string) (decimal.Decimal, error) {
	f.calls++
	if f.err != nil {
		return decimal.Zero, f.err
	}
	p, ok := f.prices[productID]
	if !ok {
		return decimal.Zero, domain.ErrProductNotFound
	}
	return p, nil
}

type fakeDispatcher struct {
	sent []OutgoingCommand
	err  error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, cmd OutgoingCommand) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, cmd)
	return nil
}

type fakeKeys struct {
	values   map[string]string
	released []string
}

func (f *fakeKeys) Reserve(ctx context.Context, key, value string) (string, bool, error) {
	if f.values == nil {
		f.values = map[string]string{}
	}
	if existing, ok := f.values[key]; ok {
		return existing, false, nil
	}
	f.values[key] = value
	return value, true, nil
}

func (f *fakeKeys) Release(ctx context.Context, key string) error {
	delete(f.values, key)
	f.released = append(f.released, key)
	return nil
}

type fakePublisher struct {
	key     string
	value   []byte
	headers map[string]string
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, key string, value []byte, headers map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.key, f.value, f.headers = key, value, headers
	return nil
}
