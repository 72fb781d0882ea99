package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	reconnect  = 5 * time.Second
)

// PriceCache holds the latest websocket tick per (exchange, symbol). Bots read
// it lock-free of the network: a stale or missing entry just falls through to
// the REST ticker.
type PriceCache struct {
	mu      sync.RWMutex
	entries map[string]tick
}

type tick struct {
	price float64
	at    time.Time
}

func NewPriceCache() *PriceCache {
	return &PriceCache{entries: make(map[string]tick)}
}

func cacheKey(exchangeName, symbol string) string {
	return strings.ToLower(exchangeName) + ":" + strings.ToUpper(symbol)
}

// Price returns the latest tick and its capture time.
func (c *PriceCache) Price(exchangeName, symbol string) (float64, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.entries[cacheKey(exchangeName, symbol)]
	return t.price, t.at, ok
}

func (c *PriceCache) set(exchangeName, symbol string, price float64) {
	c.mu.Lock()
	c.entries[cacheKey(exchangeName, symbol)] = tick{price: price, at: time.Now()}
	c.mu.Unlock()
}

// StreamBinanceTicker keeps one aggTrade subscription alive for a symbol and
// feeds the cache. It reconnects on any read error and returns only when the
// context is cancelled.
func (c *PriceCache) StreamBinanceTicker(ctx context.Context, symbol string) {
	wsURL := fmt.Sprintf("wss://fstream.binance.com/ws/%s@aggTrade", strings.ToLower(symbol))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			logger.Warnf("ticker stream dial failed for %s: %v, retrying in %v", symbol, err, reconnect)
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnect):
			}
			continue
		}

		if err := c.readLoop(ctx, conn, "binance", symbol); err != nil {
			logger.Warnf("ticker stream for %s dropped: %v", symbol, err)
		}
		conn.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnect):
		}
	}
}

// readLoop consumes ticks from an established connection with ping/pong
// keepalive until the connection breaks or the context is cancelled.
func (c *PriceCache) readLoop(ctx context.Context, conn *websocket.Conn, exchangeName, symbol string) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-pingTicker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		var trade struct {
			Price json.Number `json:"p"`
		}
		if err := json.Unmarshal(message, &trade); err != nil {
			continue
		}
		price, err := strconv.ParseFloat(trade.Price.String(), 64)
		if err != nil || price <= 0 {
			continue
		}
		c.set(exchangeName, symbol, price)
	}
}
