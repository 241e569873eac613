package webhook

import (
	"net/http"
	"net/url"
	"time"

	"gorm.io/datatypes"
)

type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
)

// Log is the append-only audit row written for every inbound callback.
type Log struct {
	ID             string         `gorm:"column:id;primaryKey" json:"id"`
	Provider       string         `gorm:"column:provider;index;not null" json:"provider"`
	TransactionID  string         `gorm:"column:transaction_id;index" json:"transaction_id"`
	UserID         string         `gorm:"column:user_id;index" json:"user_id"`
	TaskID         *string        `gorm:"column:task_id" json:"task_id,omitempty"`
	Outcome        Outcome        `gorm:"column:outcome;index;not null" json:"outcome"`
	SignatureValid bool           `gorm:"column:signature_valid;not null;default:false" json:"signature_valid"`
	IsDuplicate    bool           `gorm:"column:is_duplicate;not null;default:false" json:"is_duplicate"`
	Reward         int64          `gorm:"column:reward;not null;default:0" json:"reward"`
	Reason         string         `gorm:"column:reason" json:"reason,omitempty"`
	RemoteIP       string         `gorm:"column:remote_ip" json:"remote_ip"`
	Payload        datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (Log) TableName() string { return "webhook_logs" }

// Request is an inbound provider callback as received.
type Request struct {
	Provider    string
	Body        []byte
	ContentType string
	Query       url.Values
	Header      http.Header
	RemoteIP    string
}

type Result struct {
	Status        Outcome `json:"status"`
	RewardApplied int64   `json:"reward_applied,omitempty"`
}

// Postback is a callback normalized to canonical field names.
type Postback struct {
	UserID        string
	OfferID       string
	TransactionID string
	Amount        any
	RawReward     string
	Currency      string
	Status        string
	Reward        int64
}
