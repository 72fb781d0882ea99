package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Activity severities
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
	SeveritySuccess = "success"
)

// Activity categories
const (
	CategorySystem      = "system"
	CategoryMarket      = "market"
	CategoryStrategy    = "strategy"
	CategorySafety      = "safety"
	CategoryTrade       = "trade"
	CategoryRestriction = "restriction"
)

// JSONMap is a jsonb column helper shared by the models in this package.
type JSONMap map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan 实现 sql.Scanner 接口
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion failed: jsonb value is not []byte")
	}

	return json.Unmarshal(bytes, &j)
}

// ActivityLog represents a record in activity_logs table. Append-only audit
// trail of everything the engine does per bot; never mutated or deleted.
type ActivityLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	BotID     uint      `gorm:"column:bot_id;not null;index" json:"bot_id"`
	UserID    uint      `gorm:"column:user_id;not null;index" json:"user_id"`
	Severity  string    `gorm:"column:severity;size:10;not null" json:"severity"`
	Category  string    `gorm:"column:category;size:12;not null" json:"category"`
	Message   string    `gorm:"column:message;type:text;not null" json:"message"`
	Details   JSONMap   `gorm:"column:details;type:jsonb" json:"details"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}
