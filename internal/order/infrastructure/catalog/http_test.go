package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmehra2102/venue-orders/internal/order/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func catalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/products/p1":
			_, _ = w.Write([]byte(`{"_id":"p1","name":"Racket","price":50000}`))
		case "/api/products/noprice":
			_, _ = w.Write([]byte(`{"_id":"noprice"}`))
		case "/api/products/slow":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(`{"price":1}`))
		case "/api/products/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPOracle_Price(t *testing.T) {
	oracle := NewHTTPOracle(catalogServer(t).URL+"/", nil)

	price, err := oracle.Price(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(50000)))
}

func TestHTTPOracle_Errors(t *testing.T) {
	oracle := NewHTTPOracle(catalogServer(t).URL, nil)

	_, err := oracle.Price(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = oracle.Price(context.Background(), "noprice")
	assert.ErrorContains(t, err, "no price")

	_, err = oracle.Price(context.Background(), "broken")
	assert.ErrorContains(t, err, "500")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = oracle.Price(ctx, "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProductFilter(t *testing.T) {
	oid := primitive.NewObjectID()

	f := productFilter(oid.Hex())
	assert.Equal(t, bson.M{"_id": bson.M{"$in": bson.A{oid, oid.Hex()}}}, f)

	assert.Equal(t, bson.M{"_id": "sku-1"}, productFilter("sku-1"))
}
