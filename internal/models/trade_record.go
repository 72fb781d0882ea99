package models

import (
	"time"
)

// Trade sides
const (
	SideBuy  = "Buy"
	SideSell = "Sell"
)

// Trade statuses
const (
	TradeStatusOpen   = "open"
	TradeStatusClosed = "closed"
	TradeStatusFailed = "failed"
)

// TradeRecord represents a record in trade_records table. Append-only: one row
// per placed order, written by the engine after the exchange acknowledges the
// order. Pnl stays zero at open and is populated when the position closes.
type TradeRecord struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	UserID      uint      `gorm:"column:user_id;not null;index" json:"user_id"`
	BotID       uint      `gorm:"column:bot_id;not null;index" json:"bot_id"`
	Exchange    string    `gorm:"column:exchange;size:20;not null" json:"exchange"`
	Symbol      string    `gorm:"column:symbol;size:20;not null" json:"symbol"`
	Mode        string    `gorm:"column:mode;size:10;not null" json:"mode"`
	Side        string    `gorm:"column:side;size:4;not null" json:"side"`
	Quantity    float64   `gorm:"column:quantity;not null" json:"quantity"`
	Price       float64   `gorm:"column:price;not null" json:"price"`
	Status      string    `gorm:"column:status;size:10;not null;default:open" json:"status"`
	OrderID     string    `gorm:"column:order_id;size:64;not null" json:"order_id"`
	OrderLinkID string    `gorm:"column:order_link_id;size:64;default:''" json:"order_link_id"`
	Fee         float64   `gorm:"column:fee;default:0" json:"fee"`
	Pnl         float64   `gorm:"column:pnl;default:0" json:"pnl"`
	ExecutedAt  time.Time `gorm:"column:executed_at;not null;index" json:"executed_at"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (TradeRecord) TableName() string {
	return "trade_records"
}
