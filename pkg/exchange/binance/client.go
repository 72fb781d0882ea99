// Package binance implements the exchange.Adapter for Binance spot and USDT
// futures. Signed requests append a timestamp and an HMAC-SHA256 signature
// computed over the encoded query string.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"botcontrol/pkg/clock"
	"botcontrol/pkg/exchange"
)

const (
	spotBaseURL    = "https://api.binance.com"
	futuresBaseURL = "https://fapi.binance.com"
	recvWindowMs   = "5000"
)

type Client struct {
	apiKey         string
	apiSecret      string
	spotBaseURL    string
	futuresBaseURL string
	httpClient     *http.Client
	clock          *clock.Sync
}

// New builds a Binance adapter bound to one credential pair.
func New(creds exchange.Credentials, clk *clock.Sync) exchange.Adapter {
	return &Client{
		apiKey:         creds.APIKey,
		apiSecret:      creds.APISecret,
		spotBaseURL:    spotBaseURL,
		futuresBaseURL: futuresBaseURL,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		clock:          clk,
	}
}

// NewWithBaseURL points both surfaces at a stub server for tests.
func NewWithBaseURL(creds exchange.Credentials, clk *clock.Sync, baseURL string) *Client {
	c := New(creds, clk).(*Client)
	c.spotBaseURL = baseURL
	c.futuresBaseURL = baseURL
	return c
}

func (c *Client) Name() string { return "binance" }

func (c *Client) base(mode string) string {
	if mode == exchange.ModeFutures {
		return c.futuresBaseURL
	}
	return c.spotBaseURL
}

func (c *Client) sign(payload string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest sends one request. Signed requests get a fresh timestamp from the
// synchronized clock and a signature over the final encoded query; the
// signature is never reused between attempts.
func (c *Client) doRequest(ctx context.Context, method, baseURL, endpoint string, params url.Values, signed bool) ([]byte, error) {
	queryParams := url.Values{}
	for k, v := range params {
		queryParams[k] = v
	}

	var encoded string
	if signed {
		queryParams.Set("timestamp", strconv.FormatInt(c.clock.Now().UnixMilli(), 10))
		queryParams.Set("recvWindow", recvWindowMs)
		payload := queryParams.Encode()
		encoded = payload + "&signature=" + c.sign(payload)
	} else {
		encoded = queryParams.Encode()
	}

	var (
		req *http.Request
		err error
	)
	fullURL := baseURL + endpoint
	if method == http.MethodGet {
		if encoded != "" {
			fullURL += "?" + encoded
		}
		req, err = http.NewRequestWithContext(ctx, method, fullURL, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, fullURL, strings.NewReader(encoded))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &exchange.APIError{Exchange: "binance", Message: err.Error(), Category: exchange.CategoryTransient}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var apiErr struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Code != 0 {
		return raw, mapCode(apiErr.Code, apiErr.Msg)
	}
	if resp.StatusCode != http.StatusOK {
		return raw, &exchange.APIError{Exchange: "binance", Code: resp.StatusCode, Message: string(raw), Category: exchange.CategoryTransient}
	}
	return raw, nil
}

// mapCode folds Binance error codes into the engine taxonomy.
func mapCode(code int, msg string) *exchange.APIError {
	category := exchange.CategoryTransient
	switch code {
	case -2014, -2015, -1022: // bad api key format / rejected key / bad signature
		category = exchange.CategoryFatal
	case -1013, -1100, -1111, -1121: // filter failure / illegal chars / bad precision / invalid symbol
		category = exchange.CategoryConfig
	case -2010, -2019: // insufficient balance / margin
		category = exchange.CategoryTransient
	case -1021: // timestamp outside recvWindow
		category = exchange.CategoryTransient
	case -2011: // cancel rejected / action disabled on account
		category = exchange.CategoryRestricted
	}
	return &exchange.APIError{Exchange: "binance", Code: code, Message: msg, Category: category}
}

func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	raw, err := c.doRequest(ctx, http.MethodGet, c.spotBaseURL, "/api/v3/time", nil, false)
	if err != nil {
		return time.Time{}, err
	}
	var result struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return time.Time{}, fmt.Errorf("decode server time: %w", err)
	}
	return time.UnixMilli(result.ServerTime), nil
}

func (c *Client) TickerPrice(ctx context.Context, symbol, mode string) (float64, error) {
	endpoint := "/api/v3/ticker/price"
	if mode == exchange.ModeFutures {
		endpoint = "/fapi/v1/ticker/price"
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	raw, err := c.doRequest(ctx, http.MethodGet, c.base(mode), endpoint, params, false)
	if err != nil {
		return 0, err
	}
	var ticker struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(raw, &ticker); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}
	return strconv.ParseFloat(ticker.Price, 64)
}

func (c *Client) Klines(ctx context.Context, symbol, mode, interval string, limit int) ([]exchange.Kline, error) {
	endpoint := "/api/v3/klines"
	if mode == exchange.ModeFutures {
		endpoint = "/fapi/v1/klines"
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	raw, err := c.doRequest(ctx, http.MethodGet, c.base(mode), endpoint, params, false)
	if err != nil {
		return nil, err
	}

	var rows [][]json.Number
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}
	klines := make([]exchange.Kline, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		ms, _ := row[0].Int64()
		open, _ := strconv.ParseFloat(row[1].String(), 64)
		high, _ := strconv.ParseFloat(row[2].String(), 64)
		low, _ := strconv.ParseFloat(row[3].String(), 64)
		close_, _ := strconv.ParseFloat(row[4].String(), 64)
		vol, _ := strconv.ParseFloat(row[5].String(), 64)
		klines = append(klines, exchange.Kline{
			OpenTime: time.UnixMilli(ms),
			Open:     open, High: high, Low: low, Close: close_, Volume: vol,
		})
	}
	return klines, nil
}

func (c *Client) WalletBalance(ctx context.Context, coin, mode string) (*exchange.BalanceInfo, error) {
	if mode == exchange.ModeFutures {
		raw, err := c.doRequest(ctx, http.MethodGet, c.futuresBaseURL, "/fapi/v2/balance", nil, true)
		if err != nil {
			return nil, err
		}
		var balances []struct {
			Asset            string `json:"asset"`
			Balance          string `json:"balance"`
			AvailableBalance string `json:"availableBalance"`
		}
		if err := json.Unmarshal(raw, &balances); err != nil {
			return nil, fmt.Errorf("decode futures balance: %w", err)
		}
		for _, b := range balances {
			if b.Asset == coin {
				total, _ := strconv.ParseFloat(b.Balance, 64)
				avail, _ := strconv.ParseFloat(b.AvailableBalance, 64)
				return &exchange.BalanceInfo{Coin: coin, Available: avail, Total: total}, nil
			}
		}
		return &exchange.BalanceInfo{Coin: coin}, nil
	}

	raw, err := c.doRequest(ctx, http.MethodGet, c.spotBaseURL, "/api/v3/account", nil, true)
	if err != nil {
		return nil, err
	}
	var account struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	for _, b := range account.Balances {
		if b.Asset == coin {
			free, _ := strconv.ParseFloat(b.Free, 64)
			locked, _ := strconv.ParseFloat(b.Locked, 64)
			return &exchange.BalanceInfo{Coin: coin, Available: free, Total: free + locked}, nil
		}
	}
	return &exchange.BalanceInfo{Coin: coin}, nil
}

func (c *Client) OpenPositions(ctx context.Context, symbol, mode string) ([]exchange.Position, error) {
	if mode != exchange.ModeFutures {
		return nil, nil
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	raw, err := c.doRequest(ctx, http.MethodGet, c.futuresBaseURL, "/fapi/v2/positionRisk", params, true)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Symbol      string `json:"symbol"`
		PositionAmt string `json:"positionAmt"`
		EntryPrice  string `json:"entryPrice"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	var positions []exchange.Position
	for _, p := range rows {
		amt, _ := strconv.ParseFloat(p.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		side := "Buy"
		size := amt
		if amt < 0 {
			side = "Sell"
			size = -amt
		}
		positions = append(positions, exchange.Position{
			Symbol: p.Symbol, Side: side, Size: size, EntryPrice: entry,
		})
	}
	return positions, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	endpoint := "/api/v3/order"
	if req.Mode == exchange.ModeFutures {
		endpoint = "/fapi/v1/order"
	}
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToUpper(req.Side))
	params.Set("quantity", strconv.FormatFloat(req.Qty, 'f', -1, 64))
	params.Set("newClientOrderId", req.OrderLinkID)
	if req.Price > 0 {
		params.Set("type", "LIMIT")
		params.Set("timeInForce", "GTC")
		params.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
	} else {
		params.Set("type", "MARKET")
	}

	raw, err := c.doRequest(ctx, http.MethodPost, c.base(req.Mode), endpoint, params, true)
	if err != nil {
		return nil, err
	}
	var result struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode order result: %w", err)
	}
	return &exchange.OrderResult{
		OrderID:     strconv.FormatInt(result.OrderID, 10),
		OrderLinkID: result.ClientOrderID,
		Status:      strings.ToLower(result.Status),
		Raw:         string(raw),
	}, nil
}

// SetTradingStop submits a reduce-only stop-market and take-profit-market pair
// against the open futures position.
func (c *Client) SetTradingStop(ctx context.Context, req exchange.TradingStopRequest) error {
	if req.Mode != exchange.ModeFutures {
		return nil
	}
	closeSide := strings.ToUpper(req.CloseSide)
	if closeSide == "" {
		closeSide = "SELL"
	}
	for _, leg := range []struct {
		orderType string
		stopPrice float64
		side      string
	}{
		{"STOP_MARKET", req.StopLoss, closeSide},
		{"TAKE_PROFIT_MARKET", req.TakeProfit, closeSide},
	} {
		params := url.Values{}
		params.Set("symbol", req.Symbol)
		params.Set("side", leg.side)
		params.Set("type", leg.orderType)
		params.Set("stopPrice", strconv.FormatFloat(leg.stopPrice, 'f', -1, 64))
		params.Set("closePosition", "true")
		if _, err := c.doRequest(ctx, http.MethodPost, c.futuresBaseURL, "/fapi/v1/order", params, true); err != nil {
			return err
		}
	}
	return nil
}
