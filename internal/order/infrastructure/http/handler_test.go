package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmehra2102/venue-orders/internal/order/application"
	"github.com/dmehra2102/venue-orders/internal/order/domain"
	"github.com/dmehra2102/venue-orders/pkg/auth"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	sent []application.OutgoingCommand
	err  error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, cmd application.OutgoingCommand) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, cmd)
	return nil
}

type fakeOrders struct {
	listByUserFunc func(ctx context.Context, userID string) ([]domain.Order, error)
}

func (f *fakeOrders) Get(ctx context.Context, id string) (domain.Order, error) {
	return domain.Order{}, domain.ErrOrderNotFound
}

func (f *fakeOrders) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	if f.listByUserFunc != nil {
		return f.listByUserFunc(ctx, userID)
	}
	return nil, nil
}

type fakeLedger struct {
	records map[string]domain.CommandRecord
}

func (f *fakeLedger) RecordAccepted(ctx context.Context, rec domain.CommandRecord) error  { return nil }
func (f *fakeLedger) RecordRejection(ctx context.Context, rec domain.CommandRecord) error { return nil }
func (f *fakeLedger) GetCommand(ctx context.Context, id string) (domain.CommandRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return domain.CommandRecord{}, domain.ErrCommandNotFound
	}
	return rec, nil
}

func newTestServer(d *fakeDispatcher, orders *fakeOrders, ledger *fakeLedger) http.Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(log,
		application.NewService(log, d, nil),
		application.NewQueryService(orders, ledger),
	)
	routes := h.Routes()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := r.Header.Get("X-Test-User"); user != "" {
			r = r.WithContext(auth.WithCaller(r.Context(), user))
		}
		routes.ServeHTTP(w, r)
	})
}

func do(t *testing.T, h http.Handler, method, path, body, user string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCreateOrder_Accepted(t *testing.T) {
	d := &fakeDispatcher{}
	srv := newTestServer(d, &fakeOrders{}, &fakeLedger{})

	rr := do(t, srv, http.MethodPost, "/", `{"products":[{"productId":"p1","quantity":2}]}`, "u1")

	require.Equal(t, http.StatusAccepted, rr.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.NotEmpty(t, resp["commandId"])

	require.Len(t, d.sent, 1)
	assert.Equal(t, "u1", d.sent[0].Key)
	assert.Equal(t, domain.CommandCreateOrder, d.sent[0].Envelope.Type)
}

func TestCreateOrder_BadRequests(t *testing.T) {
	srv := newTestServer(&fakeDispatcher{}, &fakeOrders{}, &fakeLedger{})

	bodies := []string{
		`{`,
		`{"products":[]}`,
		`{"products":[{"productId":"p1","quantity":0}]}`,
		`{"products":[{"quantity":1}]}`,
	}
	for _, body := range bodies {
		rr := do(t, srv, http.MethodPost, "/", body, "u1")
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
}

func TestCreateOrder_Unauthenticated(t *testing.T) {
	srv := newTestServer(&fakeDispatcher{}, &fakeOrders{}, &fakeLedger{})

	rr := do(t, srv, http.MethodPost, "/", `{"products":[{"productId":"p1","quantity":1}]}`, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateOrder_BrokerDown(t *testing.T) {
	srv := newTestServer(&fakeDispatcher{err: errors.New("dial tcp: refused")}, &fakeOrders{}, &fakeLedger{})

	rr := do(t, srv, http.MethodPost, "/", `{"products":[{"productId":"p1","quantity":1}]}`, "u1")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestUpdateOrder(t *testing.T) {
	d := &fakeDispatcher{}
	srv := newTestServer(d, &fakeOrders{}, &fakeLedger{})

	rr := do(t, srv, http.MethodPut, "/o1", `{"status":"complete"}`, "u1")
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, d.sent, 1)
	assert.Equal(t, "o1", d.sent[0].Key)

	rr = do(t, srv, http.MethodPut, "/o1", `{"status":"shipped"}`, "u1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, srv, http.MethodPut, "/o1", `{}`, "u1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMyOrders(t *testing.T) {
	orders := &fakeOrders{listByUserFunc: func(ctx context.Context, userID string) ([]domain.Order, error) {
		assert.Equal(t, "u1", userID)
		return []domain.Order{domain.NewOrder("o1", "u1", []domain.LineItem{
			{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromInt(50000)},
		}, time.Now())}, nil
	}}
	srv := newTestServer(&fakeDispatcher{}, orders, &fakeLedger{})

	rr := do(t, srv, http.MethodGet, "/my-orders", "", "u1")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data []domain.Order `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Data, 1)
	assert.True(t, resp.Data[0].TotalAmount.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, domain.StatusPending, resp.Data[0].Status)
}

func TestCommandStatus(t *testing.T) {
	ledger := &fakeLedger{records: map[string]domain.CommandRecord{
		"c1": {CommandID: "c1", UserID: "u1", Type: domain.CommandCreateOrder, Status: domain.CommandRejected, Reason: "product not found: ghost"},
	}}
	srv := newTestServer(&fakeDispatcher{}, &fakeOrders{}, ledger)

	rr := do(t, srv, http.MethodGet, "/commands/c1", "", "u1")
	require.Equal(t, http.StatusOK, rr.Code)
	var rec domain.CommandRecord
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&rec))
	assert.Equal(t, domain.CommandRejected, rec.Status)
	assert.Equal(t, "product not found: ghost", rec.Reason)

	rr = do(t, srv, http.MethodGet, "/commands/c1", "", "u2")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, http.MethodGet, "/commands/unknown", "", "u1")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
