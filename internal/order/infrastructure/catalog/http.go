package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmehra2102/venue-orders/internal/order/domain"
	"github.com/shopspring/decimal"
)

// HTTPOracle reads prices from the catalog service's REST API.
type HTTPOracle struct {
	baseURL string
	client  *http.Client
}

func NewHTTPOracle(baseURL string, client *http.Client) *HTTPOracle {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPOracle{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type productResponse struct {
	Price *decimal.Decimal `json:"price"`
}

func (o *HTTPOracle) Price(ctx context.Context, productID string) (decimal.Decimal, error) {
	endpoint := o.baseURL + "/api/products/" + url.PathEscape(productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		return decimal.Zero, domain.ErrProductNotFound
	case resp.StatusCode != http.StatusOK:
		return decimal.Zero, fmt.Errorf("catalog returned %d", resp.StatusCode)
	}

	var body productResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode catalog response: %w", err)
	}
	if body.Price == nil {
		return decimal.Zero, fmt.Errorf("catalog product %s has no price", productID)
	}
	return *body.Price, nil
}
