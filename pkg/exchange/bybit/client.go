// Package bybit implements the exchange.Adapter for Bybit's v5 unified API.
// Signed requests carry X-BAPI headers and an HMAC-SHA256 signature over
// timestamp + api key + receive window + canonical payload.
package bybit

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
	"net/url"
	"strconv"
	"time"

	"botcontrol/pkg/clock"
	"botcontrol/pkg/exchange"
)

const (
	defaultBaseURL = "https://api.bybit.com"
	recvWindow     = "5000"
	accountUnified = "UNIFIED"
)

type Client struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	httpClient *http.Client
	clock      *clock.Sync
}

// New builds a Bybit adapter bound to one credential pair.
func New(creds exchange.Credentials, clk *clock.Sync) exchange.Adapter {
	return &Client{
		apiKey:     creds.APIKey,
		apiSecret:  creds.APISecret,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		clock:      clk,
	}
}

// NewWithBaseURL is used by tests to point the client at a stub server.
func NewWithBaseURL(creds exchange.Credentials, clk *clock.Sync, baseURL string) *Client {
	c := New(creds, clk).(*Client)
	c.baseURL = baseURL
	return c
}

func (c *Client) Name() string { return "bybit" }

// category maps the engine trading mode onto Bybit's product category.
func category(mode string) string {
	if mode == exchange.ModeFutures {
		return "linear"
	}
	return "spot"
}

// sign computes the v5 signature: HMAC-SHA256 over
// timestamp + apiKey + recvWindow + payload.
func (c *Client) sign(timestamp, payload string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(timestamp + c.apiKey + recvWindow + payload))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest sends one request. For signed requests the timestamp comes from
// the synchronized clock and the signature is regenerated on every call; a
// request is never replayed with a stale timestamp.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, params url.Values, body interface{}, signed bool) ([]byte, error) {
	var (
		req     *http.Request
		err     error
		payload string
	)

	fullURL := c.baseURL + endpoint
	if method == http.MethodGet {
		encoded := ""
		if params != nil {
			encoded = params.Encode()
		}
		payload = encoded
		if encoded != "" {
			fullURL += "?" + encoded
		}
		req, err = http.NewRequestWithContext(ctx, method, fullURL, nil)
	} else {
		raw, merr := json.Marshal(body)
		if merr != nil {
			return nil, &exchange.APIError{Exchange: "bybit", Message: fmt.Sprintf("marshal request body: %v", merr), Category: exchange.CategoryFatal}
		}
		payload = string(raw)
		req, err = http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(raw))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if signed {
		timestamp := strconv.FormatInt(c.clock.Now().UnixMilli(), 10)
		req.Header.Set("X-BAPI-API-KEY", c.apiKey)
		req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
		req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
		req.Header.Set("X-BAPI-SIGN", c.sign(timestamp, payload))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &exchange.APIError{Exchange: "bybit", Message: err.Error(), Category: exchange.CategoryTransient}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var envelope struct {
		RetCode int             `json:"retCode"`
		RetMsg  string          `json:"retMsg"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w (body: %s)", err, string(raw))
	}
	if envelope.RetCode != 0 {
		return raw, mapRetCode(envelope.RetCode, envelope.RetMsg)
	}
	if resp.StatusCode != http.StatusOK {
		return raw, &exchange.APIError{Exchange: "bybit", Code: resp.StatusCode, Message: string(raw), Category: exchange.CategoryTransient}
	}

	return envelope.Result, nil
}

// mapRetCode folds Bybit return codes into the engine taxonomy instead of
// surfacing them raw.
func mapRetCode(code int, msg string) *exchange.APIError {
	category := exchange.CategoryTransient
	switch code {
	case 10003, 10004: // invalid api key / invalid signature
		category = exchange.CategoryFatal
	case 10005, 170213: // permission denied / compliance restriction
		category = exchange.CategoryRestricted
	case 10001, 170140, 170136: // parameter error / qty below minimum / invalid qty precision
		category = exchange.CategoryConfig
	case 10002: // timestamp outside recv window
		category = exchange.CategoryTransient
	case 110004, 110007, 170131: // insufficient wallet / available / spot balance
		category = exchange.CategoryTransient
	default:
		if code >= 110000 && code < 111000 {
			category = exchange.CategoryConfig
		}
	}
	return &exchange.APIError{Exchange: "bybit", Code: code, Message: msg, Category: category}
}

func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	raw, err := c.doRequest(ctx, http.MethodGet, "/v5/market/time", nil, nil, false)
	if err != nil {
		return time.Time{}, err
	}
	var result struct {
		TimeSecond string `json:"timeSecond"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return time.Time{}, fmt.Errorf("decode server time: %w", err)
	}
	sec, err := strconv.ParseInt(result.TimeSecond, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse server time: %w", err)
	}
	return time.Unix(sec, 0), nil
}

func (c *Client) TickerPrice(ctx context.Context, symbol, mode string) (float64, error) {
	params := url.Values{}
	params.Set("category", category(mode))
	params.Set("symbol", symbol)
	raw, err := c.doRequest(ctx, http.MethodGet, "/v5/market/tickers", params, nil, false)
	if err != nil {
		return 0, err
	}
	var result struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}
	if len(result.List) == 0 {
		return 0, &exchange.APIError{Exchange: "bybit", Message: fmt.Sprintf("no ticker for %s", symbol), Category: exchange.CategoryConfig}
	}
	return strconv.ParseFloat(result.List[0].LastPrice, 64)
}

func (c *Client) Klines(ctx context.Context, symbol, mode, interval string, limit int) ([]exchange.Kline, error) {
	params := url.Values{}
	params.Set("category", category(mode))
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	raw, err := c.doRequest(ctx, http.MethodGet, "/v5/market/kline", params, nil, false)
	if err != nil {
		return nil, err
	}
	var result struct {
		List [][]string `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	// Bybit returns newest first; the indicator code expects oldest first.
	klines := make([]exchange.Kline, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		row := result.List[i]
		if len(row) < 6 {
			continue
		}
		ms, _ := strconv.ParseInt(row[0], 10, 64)
		open, _ := strconv.ParseFloat(row[1], 64)
		high, _ := strconv.ParseFloat(row[2], 64)
		low, _ := strconv.ParseFloat(row[3], 64)
		close_, _ := strconv.ParseFloat(row[4], 64)
		vol, _ := strconv.ParseFloat(row[5], 64)
		klines = append(klines, exchange.Kline{
			OpenTime: time.UnixMilli(ms),
			Open:     open, High: high, Low: low, Close: close_, Volume: vol,
		})
	}
	return klines, nil
}

func (c *Client) WalletBalance(ctx context.Context, coin, mode string) (*exchange.BalanceInfo, error) {
	params := url.Values{}
	params.Set("accountType", accountUnified)
	params.Set("coin", coin)
	raw, err := c.doRequest(ctx, http.MethodGet, "/v5/account/wallet-balance", params, nil, true)
	if err != nil {
		return nil, err
	}
	var result struct {
		List []struct {
			Coin []struct {
				Coin          string `json:"coin"`
				WalletBalance string `json:"walletBalance"`
				Free          string `json:"availableToWithdraw"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode wallet balance: %w", err)
	}
	for _, acct := range result.List {
		for _, entry := range acct.Coin {
			if entry.Coin != coin {
				continue
			}
			total, _ := strconv.ParseFloat(entry.WalletBalance, 64)
			avail, _ := strconv.ParseFloat(entry.Free, 64)
			if avail == 0 {
				avail = total
			}
			return &exchange.BalanceInfo{Coin: coin, Available: avail, Total: total}, nil
		}
	}
	return &exchange.BalanceInfo{Coin: coin}, nil
}

func (c *Client) OpenPositions(ctx context.Context, symbol, mode string) ([]exchange.Position, error) {
	params := url.Values{}
	params.Set("category", category(mode))
	params.Set("symbol", symbol)
	raw, err := c.doRequest(ctx, http.MethodGet, "/v5/position/list", params, nil, true)
	if err != nil {
		return nil, err
	}
	var result struct {
		List []struct {
			Symbol   string `json:"symbol"`
			Side     string `json:"side"`
			Size     string `json:"size"`
			AvgPrice string `json:"avgPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}

	var positions []exchange.Position
	for _, p := range result.List {
		size, _ := strconv.ParseFloat(p.Size, 64)
		if size == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(p.AvgPrice, 64)
		positions = append(positions, exchange.Position{
			Symbol: p.Symbol, Side: p.Side, Size: size, EntryPrice: entry,
		})
	}
	return positions, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	orderType := "Market"
	body := map[string]string{
		"category":    category(req.Mode),
		"symbol":      req.Symbol,
		"side":        req.Side,
		"orderType":   orderType,
		"qty":         strconv.FormatFloat(req.Qty, 'f', -1, 64),
		"orderLinkId": req.OrderLinkID,
	}
	if req.Price > 0 {
		body["orderType"] = "Limit"
		body["price"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
		body["timeInForce"] = "GTC"
	}

	raw, err := c.doRequest(ctx, http.MethodPost, "/v5/order/create", nil, body, true)
	if err != nil {
		return nil, err
	}
	var result struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode order result: %w", err)
	}
	return &exchange.OrderResult{
		OrderID:     result.OrderID,
		OrderLinkID: result.OrderLinkID,
		Status:      "created",
		Raw:         string(raw),
	}, nil
}

func (c *Client) SetTradingStop(ctx context.Context, req exchange.TradingStopRequest) error {
	body := map[string]interface{}{
		"category":    category(req.Mode),
		"symbol":      req.Symbol,
		"stopLoss":    strconv.FormatFloat(req.StopLoss, 'f', -1, 64),
		"takeProfit":  strconv.FormatFloat(req.TakeProfit, 'f', -1, 64),
		"positionIdx": 0,
	}
	_, err := c.doRequest(ctx, http.MethodPost, "/v5/position/trading-stop", nil, body, true)
	return err
}
