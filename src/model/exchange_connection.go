package model

import "time"

// ExchangeConnection holds one set of exchange API credentials. Key and
// secret are stored encrypted and never leave the process in plain text.
type ExchangeConnection struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Exchange     string    `gorm:"size:50;not null;default:bybit" json:"exchange"`
	APIKeyEnc    string    `gorm:"column:api_key;type:text" json:"-"`
	APISecretEnc string    `gorm:"column:api_secret;type:text" json:"-"`
	Testnet      bool      `gorm:"not null;default:false" json:"testnet"`
	Active       bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (ExchangeConnection) TableName() string {
	return "exchange_connections"
}
