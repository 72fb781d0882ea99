package bybit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botcontrol/pkg/clock"
	"botcontrol/pkg/exchange"
)

var testCreds = exchange.Credentials{APIKey: "test-key", APISecret: "test-secret"}

func newStub(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWithBaseURL(testCreds, clock.New(), srv.URL), srv
}

func TestSignedRequestHeaders(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte
	client, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r
		capturedBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"orderId":"1","orderLinkId":"l1"}}`))
	})

	_, err := client.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: "Buy", Qty: 0.01, Mode: exchange.ModeSpot, OrderLinkID: "l1",
	})
	require.NoError(t, err)
	require.NotNil(t, captured)

	assert.Equal(t, "test-key", captured.Header.Get("X-BAPI-API-KEY"))
	assert.Equal(t, "5000", captured.Header.Get("X-BAPI-RECV-WINDOW"))
	timestamp := captured.Header.Get("X-BAPI-TIMESTAMP")
	assert.NotEmpty(t, timestamp)

	// The signature must be reproducible from the documented recipe:
	// HMAC-SHA256(timestamp + apiKey + recvWindow + body).
	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(timestamp + "test-key" + "5000" + string(capturedBody)))
	expected := hex.EncodeToString(mac.Sum(nil))
	assert.Equal(t, expected, captured.Header.Get("X-BAPI-SIGN"))
}

func TestPublicRequestUnsigned(t *testing.T) {
	client, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-BAPI-SIGN"))
		w.Write([]byte(`{"retCode":0,"result":{"timeSecond":"1700000000"}}`))
	})

	ts, err := client.ServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts.Unix())
}

func TestPlaceOrderBody(t *testing.T) {
	var body map[string]string
	client, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Write([]byte(`{"retCode":0,"result":{"orderId":"42","orderLinkId":"link"}}`))
	})

	t.Run("market order", func(t *testing.T) {
		res, err := client.PlaceOrder(context.Background(), exchange.OrderRequest{
			Symbol: "BTCUSDT", Side: "Buy", Qty: 0.015, Mode: exchange.ModeFutures, OrderLinkID: "link",
		})
		require.NoError(t, err)
		assert.Equal(t, "42", res.OrderID)
		assert.Equal(t, "linear", body["category"])
		assert.Equal(t, "Market", body["orderType"])
		assert.Equal(t, "0.015", body["qty"])
		assert.Empty(t, body["price"])
	})

	t.Run("limit order", func(t *testing.T) {
		_, err := client.PlaceOrder(context.Background(), exchange.OrderRequest{
			Symbol: "BTCUSDT", Side: "Sell", Qty: 0.01, Price: 64000.5, Mode: exchange.ModeSpot,
		})
		require.NoError(t, err)
		assert.Equal(t, "spot", body["category"])
		assert.Equal(t, "Limit", body["orderType"])
		assert.Equal(t, "64000.5", body["price"])
		assert.Equal(t, "GTC", body["timeInForce"])
	})
}

func TestRetCodeMapping(t *testing.T) {
	cases := []struct {
		code     int
		category exchange.Category
	}{
		{10003, exchange.CategoryFatal},      // invalid api key
		{10004, exchange.CategoryFatal},      // invalid signature
		{10005, exchange.CategoryRestricted}, // permission denied
		{170213, exchange.CategoryRestricted},
		{10001, exchange.CategoryConfig}, // parameter error
		{170140, exchange.CategoryConfig},
		{10002, exchange.CategoryTransient}, // recv window
		{110004, exchange.CategoryTransient},
		{170131, exchange.CategoryTransient},
		{110017, exchange.CategoryConfig}, // 110xxx default
		{99999, exchange.CategoryTransient},
	}
	for _, tc := range cases {
		apiErr := mapRetCode(tc.code, "msg")
		assert.Equal(t, tc.category, apiErr.Category, "retCode %d", tc.code)
		assert.Equal(t, tc.code, apiErr.Code)
	}
}

func TestErrorEnvelopeSurfacesAPIError(t *testing.T) {
	client, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10004,"retMsg":"error sign!"}`))
	})

	_, err := client.TickerPrice(context.Background(), "BTCUSDT", exchange.ModeSpot)
	require.Error(t, err)
	apiErr, ok := err.(*exchange.APIError)
	require.True(t, ok)
	assert.Equal(t, exchange.CategoryFatal, apiErr.Category)
}

func TestKlinesReversedToOldestFirst(t *testing.T) {
	client, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":0,"result":{"list":[
			["1700000120000","102","103","101","102.5","10"],
			["1700000060000","101","102","100","101.5","11"],
			["1700000000000","100","101","99","100.5","12"]
		]}}`))
	})

	klines, err := client.Klines(context.Background(), "BTCUSDT", exchange.ModeSpot, "15", 3)
	require.NoError(t, err)
	require.Len(t, klines, 3)
	assert.Equal(t, 100.5, klines[0].Close)
	assert.Equal(t, 102.5, klines[2].Close)
	assert.True(t, klines[0].OpenTime.Before(klines[2].OpenTime))
}

func TestWalletBalance(t *testing.T) {
	client, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "UNIFIED", r.URL.Query().Get("accountType"))
		w.Write([]byte(`{"retCode":0,"result":{"list":[{"coin":[
			{"coin":"USDT","walletBalance":"1500.5","availableToWithdraw":"1200"}
		]}]}}`))
	})

	bal, err := client.WalletBalance(context.Background(), "USDT", exchange.ModeSpot)
	require.NoError(t, err)
	assert.Equal(t, 1200.0, bal.Available)
	assert.Equal(t, 1500.5, bal.Total)
}
