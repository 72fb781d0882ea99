package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
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

func TestSignedRequestSignsEncodedQuery(t *testing.T) {
	var captured url.Values
	var apiKeyHeader string
	client, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r.URL.Query()
		apiKeyHeader = r.Header.Get("X-MBX-APIKEY")
		w.Write([]byte(`[]`))
	})

	_, err := client.WalletBalance(context.Background(), "USDT", exchange.ModeFutures)
	require.NoError(t, err)

	assert.Equal(t, "test-key", apiKeyHeader)
	assert.Equal(t, "5000", captured.Get("recvWindow"))
	assert.NotEmpty(t, captured.Get("timestamp"))

	// Recompute the signature over the query exactly as sent, minus the
	// signature parameter itself.
	signed := url.Values{}
	for k, v := range captured {
		if k != "signature" {
			signed[k] = v
		}
	}
	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(signed.Encode()))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), captured.Get("signature"))
}

func TestPublicRequestUnsigned(t *testing.T) {
	client, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("signature"))
		assert.Empty(t, r.URL.Query().Get("timestamp"))
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"64250.50"}`))
	})

	price, err := client.TickerPrice(context.Background(), "BTCUSDT", exchange.ModeSpot)
	require.NoError(t, err)
	assert.Equal(t, 64250.50, price)
}

func TestPlaceOrderForm(t *testing.T) {
	t.Run("market order", func(t *testing.T) {
		var form url.Values
		client, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			form, _ = url.ParseQuery(string(body))
			assert.Equal(t, "/fapi/v1/order", r.URL.Path)
			w.Write([]byte(`{"orderId":123456,"clientOrderId":"bot1-x","status":"NEW"}`))
		})

		result, err := client.PlaceOrder(context.Background(), exchange.OrderRequest{
			Symbol: "BTCUSDT", Side: "Buy", Qty: 0.015, Mode: exchange.ModeFutures, OrderLinkID: "bot1-x",
		})
		require.NoError(t, err)

		assert.Equal(t, "BUY", form.Get("side"))
		assert.Equal(t, "MARKET", form.Get("type"))
		assert.Equal(t, "0.015", form.Get("quantity"))
		assert.Empty(t, form.Get("price"))
		assert.Equal(t, "123456", result.OrderID)
		assert.Equal(t, "new", result.Status)
	})

	t.Run("limit order", func(t *testing.T) {
		var form url.Values
		client, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			form, _ = url.ParseQuery(string(body))
			assert.Equal(t, "/api/v3/order", r.URL.Path)
			w.Write([]byte(`{"orderId":7,"clientOrderId":"bot2-y","status":"NEW"}`))
		})

		_, err := client.PlaceOrder(context.Background(), exchange.OrderRequest{
			Symbol: "ETHUSDT", Side: "Sell", Qty: 0.5, Price: 3200.5, Mode: exchange.ModeSpot, OrderLinkID: "bot2-y",
		})
		require.NoError(t, err)

		assert.Equal(t, "LIMIT", form.Get("type"))
		assert.Equal(t, "GTC", form.Get("timeInForce"))
		assert.Equal(t, "3200.5", form.Get("price"))
	})
}

func TestErrorCodeMapping(t *testing.T) {
	cases := []struct {
		code int
		want exchange.Category
	}{
		{-2014, exchange.CategoryFatal},
		{-1022, exchange.CategoryFatal},
		{-1013, exchange.CategoryConfig},
		{-1121, exchange.CategoryConfig},
		{-2010, exchange.CategoryTransient},
		{-1021, exchange.CategoryTransient},
		{-2011, exchange.CategoryRestricted},
		{-9999, exchange.CategoryTransient},
	}
	for _, tc := range cases {
		apiErr := mapCode(tc.code, "boom")
		assert.Equal(t, tc.want, apiErr.Category, "code %d", tc.code)
		assert.Equal(t, tc.code, apiErr.Code)
	}
}

func TestErrorEnvelopeSurfacesAPIError(t *testing.T) {
	client, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})

	_, err := client.TickerPrice(context.Background(), "NOPEUSDT", exchange.ModeSpot)
	require.Error(t, err)
	var apiErr *exchange.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, -1121, apiErr.Code)
	assert.Equal(t, exchange.CategoryConfig, apiErr.Category)
}

func TestKlinesParsed(t *testing.T) {
	client, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "15m", r.URL.Query().Get("interval"))
		w.Write([]byte(`[
			[1714500000000,"100.0","101.0","99.0","100.5","1000"],
			[1714500900000,"100.5","102.0","100.0","101.5","1100"]
		]`))
	})

	klines, err := client.Klines(context.Background(), "BTCUSDT", exchange.ModeSpot, "15m", 2)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.Equal(t, 100.5, klines[0].Close)
	assert.Equal(t, 101.5, klines[1].Close)
	assert.True(t, klines[0].OpenTime.Before(klines[1].OpenTime))
}

func TestOpenPositionsSides(t *testing.T) {
	client, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"symbol":"BTCUSDT","positionAmt":"0.5","entryPrice":"64000"},
			{"symbol":"BTCUSDT","positionAmt":"-0.2","entryPrice":"65000"},
			{"symbol":"BTCUSDT","positionAmt":"0","entryPrice":"0"}
		]`))
	})

	positions, err := client.OpenPositions(context.Background(), "BTCUSDT", exchange.ModeFutures)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "Buy", positions[0].Side)
	assert.Equal(t, 0.5, positions[0].Size)
	assert.Equal(t, "Sell", positions[1].Side)
	assert.Equal(t, 0.2, positions[1].Size)
}

func TestSetTradingStopSubmitsBothLegs(t *testing.T) {
	var legs []url.Values
	client, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		legs = append(legs, form)
		w.Write([]byte(`{"orderId":1,"clientOrderId":"","status":"NEW"}`))
	})

	err := client.SetTradingStop(context.Background(), exchange.TradingStopRequest{
		Symbol: "BTCUSDT", Mode: exchange.ModeFutures, CloseSide: "Sell",
		StopLoss: 62720, TakeProfit: 66560,
	})
	require.NoError(t, err)

	require.Len(t, legs, 2)
	assert.Equal(t, "STOP_MARKET", legs[0].Get("type"))
	assert.Equal(t, "62720", legs[0].Get("stopPrice"))
	assert.Equal(t, "TAKE_PROFIT_MARKET", legs[1].Get("type"))
	assert.Equal(t, "66560", legs[1].Get("stopPrice"))
	for _, leg := range legs {
		assert.Equal(t, "SELL", strings.ToUpper(leg.Get("side")))
		assert.Equal(t, "true", leg.Get("closePosition"))
	}
}

func TestSpotStopIsNoop(t *testing.T) {
	called := false
	client, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	err := client.SetTradingStop(context.Background(), exchange.TradingStopRequest{
		Symbol: "BTCUSDT", Mode: exchange.ModeSpot,
	})
	require.NoError(t, err)
	assert.False(t, called)
}
