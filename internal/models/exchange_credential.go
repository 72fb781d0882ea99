package models

import (
	"time"
)

// ExchangeCredential represents a record in exchange_credentials table.
// API key and secret are stored AES-GCM encrypted under the process master key
// and are only decrypted in memory for the duration of a signing call.
type ExchangeCredential struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	UserID       uint      `gorm:"column:user_id;not null;index" json:"user_id"`
	Exchange     string    `gorm:"column:exchange;size:20;not null" json:"exchange"`
	APIKeyEnc    string    `gorm:"column:api_key_enc;type:text;not null" json:"-"`
	APISecretEnc string    `gorm:"column:api_secret_enc;type:text;not null" json:"-"`
	IsActive     bool      `gorm:"column:is_active;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (ExchangeCredential) TableName() string {
	return "exchange_credentials"
}

// UserSetting represents a record in user_settings table. Carries the
// user-level emergency stop consulted by the safety gate.
type UserSetting struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	UserID        uint      `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	EmergencyStop bool      `gorm:"column:emergency_stop;default:false" json:"emergency_stop"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (UserSetting) TableName() string {
	return "user_settings"
}
