package vnpay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dmehra2102/venue-orders/internal/payment/domain"
	"github.com/shopspring/decimal"
)

const (
	Version         = "2.1.0"
	CommandPay      = "pay"
	CommandQuery    = "querydr"
	Locale          = "vn"
	CurrencyCode    = "VND"
	OrderType       = "other"

	dateLayout   = "20060102150405"
	paymentTTL   = 15 * time.Minute
	maxOrderInfo = 255
)

var (
	ErrInvalidAmount    = domain.ErrInvalidAmount
	ErrInvalidSignature = domain.ErrInvalidSignature

	// The gateway reads all timestamps in Vietnam local time.
	gatewayZone = time.FixedZone("GMT+7", 7*60*60)
	nonAlnum    = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

type Config struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
	APIURL     string
}

type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, http: httpClient, now: time.Now}
}

// MinorAmount scales a currency amount to the gateway's integer convention.
func MinorAmount(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// PaymentURL builds the signed redirect URL for one payment attempt.
func (c *Client) PaymentURL(req domain.PaymentRequest) (string, error) {
	minor := MinorAmount(req.Amount)
	if minor <= 0 {
		return "", ErrInvalidAmount
	}
	created := req.CreatedAt.In(gatewayZone)

	params := url.Values{}
	params.Set("vnp_Version", Version)
	params.Set("vnp_Command", CommandPay)
	params.Set("vnp_TmnCode", c.cfg.TmnCode)
	params.Set("vnp_Locale", Locale)
	params.Set("vnp_CurrCode", CurrencyCode)
	params.Set("vnp_TxnRef", req.TxnRef)
	params.Set("vnp_OrderInfo", truncate(req.OrderInfo, maxOrderInfo))
	params.Set("vnp_OrderType", OrderType)
	params.Set("vnp_Amount", strconv.FormatInt(minor, 10))
	params.Set("vnp_ReturnUrl", c.cfg.ReturnURL)
	params.Set("vnp_IpAddr", NormalizeIP(req.IPAddr))
	params.Set("vnp_CreateDate", created.Format(dateLayout))
	params.Set("vnp_ExpireDate", created.Add(paymentTTL).Format(dateLayout))
	if bank := strings.TrimSpace(req.BankCode); bank != "" {
		params.Set("vnp_BankCode", bank)
	}

	signed := url.Values{}
	for k, vs := range params {
		if len(vs) > 0 && vs[0] != "" {
			signed.Set(k, vs[0])
		}
	}
	signed.Set(ParamSecureHash, Sign(c.cfg.HashSecret, signed))
	return c.cfg.PayURL + "?" + signed.Encode(), nil
}

// VerifyCallback checks the signature on the gateway's return query and
// extracts the fields the order pipeline correlates on.
func (c *Client) VerifyCallback(query url.Values) (domain.CallbackResult, error) {
	if !Verify(c.cfg.HashSecret, query) {
		return domain.CallbackResult{}, ErrInvalidSignature
	}
	amount, _ := strconv.ParseInt(query.Get("vnp_Amount"), 10, 64)
	return domain.CallbackResult{
		TxnRef:            query.Get("vnp_TxnRef"),
		ResponseCode:      query.Get("vnp_ResponseCode"),
		TransactionNo:     query.Get("vnp_TransactionNo"),
		BankCode:          query.Get("vnp_BankCode"),
		TransactionStatus: query.Get("vnp_TransactionStatus"),
		Amount:            amount,
	}, nil
}

// QueryTransaction asks the gateway for the state of a payment attempt.
// The decoded response body is returned as-is.
func (c *Client) QueryTransaction(ctx context.Context, txnRef string) (map[string]any, error) {
	now := c.now().In(gatewayZone).Format(dateLayout)

	params := url.Values{}
	params.Set("vnp_Version", Version)
	params.Set("vnp_Command", CommandQuery)
	params.Set("vnp_TmnCode", c.cfg.TmnCode)
	params.Set("vnp_TxnRef", txnRef)
	params.Set("vnp_OrderInfo", "Truy van GD: "+txnRef)
	params.Set("vnp_TransactionDate", now)
	params.Set("vnp_CreateDate", now)
	params.Set("vnp_IpAddr", "127.0.0.1")
	params.Set(ParamSecureHash, Sign(c.cfg.HashSecret, params))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query transaction: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read query response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("query transaction: gateway returned %d", resp.StatusCode)
	}

	out := map[string]any{}
	if err := json.Unmarshal(body, &out); err != nil {
		out = map[string]any{"raw": string(body)}
	}
	return out, nil
}

// NewRequest prepares a payment attempt for an order, stamping a fresh
// transaction reference.
func (c *Client) NewRequest(orderID string, amount decimal.Decimal, ipAddr, bankCode string) domain.PaymentRequest {
	now := c.now()
	return domain.PaymentRequest{
		TxnRef:    NewTxnRef(orderID, now),
		OrderInfo: OrderInfo(orderID),
		Amount:    amount,
		IPAddr:    ipAddr,
		BankCode:  bankCode,
		CreatedAt: now,
	}
}

// NewTxnRef derives a payment attempt reference from the order id: the last
// 16 alphanumerics of the id followed by the last 8 digits of the clock in
// milliseconds.
func NewTxnRef(orderID string, now time.Time) string {
	id := nonAlnum.ReplaceAllString(orderID, "")
	if len(id) > 16 {
		id = id[len(id)-16:]
	}
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 8 {
		ms = ms[len(ms)-8:]
	}
	return id + ms
}

// OrderInfo is the human readable description sent with a payment.
func OrderInfo(orderID string) string {
	return truncate("Thanh toan don hang "+nonAlnum.ReplaceAllString(orderID, ""), maxOrderInfo)
}

// NormalizeIP strips ports, maps every loopback form to 127.0.0.1 and
// reports IPv4-mapped addresses in dotted form.
func NormalizeIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if addr == "" {
		return "127.0.0.1"
	}
	ip := net.ParseIP(addr)
	switch {
	case ip == nil:
		return addr
	case ip.IsLoopback():
		return "127.0.0.1"
	case ip.To4() != nil:
		return ip.To4().String()
	}
	return ip.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
