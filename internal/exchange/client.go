// Package exchange is a minimal client for the exchange's Advanced Trade
// REST API: candles, account balances, and market orders. It mirrors the
// request/signing conventions the exchange documents — HMAC-SHA256 over
// timestamp + method + path + body — and handles retries and client-side
// rate limiting so callers don't have to.
package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"tradedeck/internal/model"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.coinbase.com"

var routes = map[string]string{
	"candles":  "/api/v3/brokerage/products/%s/candles",
	"accounts": "/api/v3/brokerage/accounts",
	"orders":   "/api/v3/brokerage/orders",
}

// Config configures the exchange client.
type Config struct {
	APIKey    string
	APISecret string

	BaseURL        string        // default: https://api.coinbase.com
	Timeout        time.Duration // default: 10s
	RequestsPerSec int           // default: 5
	MaxRetries     uint64        // default: 3
}

// Client talks to the exchange REST API. Safe for concurrent use.
type Client struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	now        func() time.Time
}

// APIError is a non-2xx response from the exchange.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange API error: status %d: %s", e.StatusCode, e.Body)
}

// NewClient creates an exchange client with the given credentials.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSec == 0 {
		cfg.RequestsPerSec = 5
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &Client{
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.RequestsPerSec),
		maxRetries: cfg.MaxRetries,
		now:        time.Now,
	}
}

// sign produces the CB-ACCESS-SIGN header value.
func (c *Client) sign(timestamp, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(timestamp + method + path + body))
	return hex.EncodeToString(mac.Sum(nil))
}

// doRequest issues a signed request with rate limiting and exponential
// backoff on 5xx/network failures. 4xx responses are never retried.
func (c *Client) doRequest(ctx context.Context, method, path, query string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var respBody []byte
	operation := func() error {
		url := c.baseURL + path
		if query != "" {
			url += "?" + query
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}

		timestamp := strconv.FormatInt(c.now().Unix(), 10)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("CB-ACCESS-KEY", c.apiKey)
		req.Header.Set("CB-ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("CB-ACCESS-SIGN", c.sign(timestamp, method, path, string(body)))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err // network error — retry
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(&APIError{StatusCode: resp.StatusCode, Body: string(data)})
		}
		respBody = data
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return respBody, nil
}

type rawCandle struct {
	Start  string `json:"start"` // unix seconds
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

// GetCandles fetches up to limit bars for a product at the given
// granularity, sorted by timestamp ascending (oldest first, the order the
// indicator engine expects).
func (c *Client) GetCandles(ctx context.Context, product string, g model.Granularity, limit int) ([]model.Bar, error) {
	if limit <= 0 {
		limit = 300
	}
	end := c.now().UTC()
	start := end.Add(-time.Duration(limit) * g.Duration())

	path := fmt.Sprintf(routes["candles"], product)
	query := fmt.Sprintf("start=%d&end=%d&granularity=%s", start.Unix(), end.Unix(), g)

	data, err := c.doRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch candles %s %s: %w", product, g, err)
	}

	var resp struct {
		Candles []rawCandle `json:"candles"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse candles response: %w", err)
	}

	bars := make([]model.Bar, 0, len(resp.Candles))
	for _, rc := range resp.Candles {
		bar, err := rc.toBar()
		if err != nil {
			return nil, fmt.Errorf("parse candle: %w", err)
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].TS.Before(bars[j].TS) })
	return bars, nil
}

func (rc rawCandle) toBar() (model.Bar, error) {
	sec, err := strconv.ParseInt(rc.Start, 10, 64)
	if err != nil {
		return model.Bar{}, fmt.Errorf("start %q: %w", rc.Start, err)
	}
	fields := [5]string{rc.Open, rc.High, rc.Low, rc.Close, rc.Volume}
	var vals [5]float64
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("field %q: %w", s, err)
		}
		vals[i] = v
	}
	return model.Bar{
		TS:     time.Unix(sec, 0).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// Balance is the available funds for one currency.
type Balance struct {
	Currency  string  `json:"currency"`
	Available float64 `json:"available"`
}

// GetAccountBalance returns available balances per currency.
func (c *Client) GetAccountBalance(ctx context.Context) ([]Balance, error) {
	data, err := c.doRequest(ctx, http.MethodGet, routes["accounts"], "", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch accounts: %w", err)
	}

	var resp struct {
		Accounts []struct {
			Currency         string `json:"currency"`
			AvailableBalance struct {
				Value string `json:"value"`
			} `json:"available_balance"`
		} `json:"accounts"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse accounts response: %w", err)
	}

	balances := make([]Balance, 0, len(resp.Accounts))
	for _, acct := range resp.Accounts {
		v, err := strconv.ParseFloat(acct.AvailableBalance.Value, 64)
		if err != nil {
			continue // skip malformed rows rather than failing the whole call
		}
		balances = append(balances, Balance{Currency: acct.Currency, Available: v})
	}
	return balances, nil
}

// OrderRequest describes a market order. Buys are sized in quote currency
// (USD amount), sells in base currency (asset quantity) — the exchange's
// market-order convention.
type OrderRequest struct {
	Product   string
	Side      string  // model.SideBuy or model.SideSell
	QuoteSize float64 // for BUY
	BaseSize  float64 // for SELL
}

// PlaceMarketOrder submits a market IOC order and returns the order ID.
func (c *Client) PlaceMarketOrder(ctx context.Context, req OrderRequest) (string, error) {
	ioc := map[string]string{}
	if req.Side == model.SideBuy {
		ioc["quote_size"] = strconv.FormatFloat(req.QuoteSize, 'f', 2, 64)
	} else {
		ioc["base_size"] = strconv.FormatFloat(req.BaseSize, 'f', 8, 64)
	}

	body, err := json.Marshal(map[string]interface{}{
		"client_order_id": fmt.Sprintf("tradedeck-%d", c.now().UnixNano()),
		"product_id":      req.Product,
		"side":            req.Side,
		"order_configuration": map[string]interface{}{
			"market_market_ioc": ioc,
		},
	})
	if err != nil {
		return "", err
	}

	data, err := c.doRequest(ctx, http.MethodPost, routes["orders"], "", body)
	if err != nil {
		return "", fmt.Errorf("place order: %w", err)
	}

	var resp struct {
		Success         bool `json:"success"`
		SuccessResponse struct {
			OrderID string `json:"order_id"`
		} `json:"success_response"`
		ErrorResponse struct {
			Message string `json:"message"`
		} `json:"error_response"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse order response: %w", err)
	}
	if !resp.Success {
		return "", fmt.Errorf("order rejected: %s", resp.ErrorResponse.Message)
	}
	return resp.SuccessResponse.OrderID, nil
}
