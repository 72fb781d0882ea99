package models

import (
	"time"
)

// Well-known system parameter names
const (
	ParamKillSwitch = "kill_switch"
)

// SystemParams represents a record in system_params table. Global flags read
// by the engine, most importantly the system-wide kill switch.
type SystemParams struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	Name         string    `gorm:"column:name;size:128;not null;uniqueIndex" json:"name"`
	IsActive     bool      `gorm:"column:is_active;default:true" json:"is_active"`
	ParamsConfig JSONMap   `gorm:"column:params_config;type:jsonb" json:"params_config"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (SystemParams) TableName() string {
	return "system_params"
}
