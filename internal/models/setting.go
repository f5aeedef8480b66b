package models

import (
	"time"
)

// Setting is a persistent named configuration value
type Setting struct {
	Key       string    `gorm:"type:varchar(191);primaryKey;column:key"`
	Value     string    `gorm:"type:text;not null;default:'';column:value"`
	UpdatedAt time.Time `gorm:"not null;column:updated_at"`
}

// TableName specifies the table name for Setting
func (Setting) TableName() string {
	return "whatsfeed_settings"
}

// Transient is an expiring named value; a row past its expiry is treated
// as absent on read
type Transient struct {
	Key       string    `gorm:"type:varchar(191);primaryKey;column:key"`
	Value     string    `gorm:"type:text;not null;default:'';column:value"`
	ExpiresAt time.Time `gorm:"not null;index;column:expires_at"`
}

// TableName specifies the table name for Transient
func (Transient) TableName() string {
	return "whatsfeed_transients"
}
