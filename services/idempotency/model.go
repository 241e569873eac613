package idempotency

import "time"

// Key marks a provider transaction as processed. A second insert for the same
// (provider, transaction_id) fails in storage.
type Key struct {
	ID            string    `gorm:"column:id;primaryKey" json:"id"`
	Provider      string    `gorm:"column:provider;not null;uniqueIndex:idx_idempotency_provider_tx,priority:1" json:"provider"`
	TransactionID string    `gorm:"column:transaction_id;not null;uniqueIndex:idx_idempotency_provider_tx,priority:2" json:"transaction_id"`
	UserID        string    `gorm:"column:user_id;index" json:"user_id"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Key) TableName() string { return "idempotency_keys" }
