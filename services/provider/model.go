package provider

import (
	"net"
	"time"

	"smallbiznis-rewards/pkg/celengine"
)

const (
	ModeIframe = "iframe"
	ModeAPI    = "api"

	VerifyHMAC = "hmac"
	VerifyMD5  = "md5"
	VerifyIP   = "ip"
	VerifyNone = "none"

	DefaultSignatureHeader = "X-Signature"
)

// Provider is the resolved, immutable configuration of one offerwall.
type Provider struct {
	Name                string
	Enabled             bool
	Mode                string
	Verify              string
	Secret              string
	SignatureHeader     string
	AllowedCIDRs        []*net.IPNet
	RedirectURLTemplate string
	FetchURL            string
	APIKey              string
	Accept              *celengine.Predicate
}

type ConnectionStatus string

const (
	ConnectionConnected   ConnectionStatus = "connected"
	ConnectionFailed      ConnectionStatus = "failed"
	ConnectionRateLimited ConnectionStatus = "rate_limited"
)

// ConnectionLog records the outcome of one outbound provider call.
type ConnectionLog struct {
	ID        string           `gorm:"column:id;primaryKey" json:"id"`
	Provider  string           `gorm:"column:provider;index;not null" json:"provider"`
	Status    ConnectionStatus `gorm:"column:status;not null" json:"status"`
	Message   string           `gorm:"column:message" json:"message"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (ConnectionLog) TableName() string { return "provider_connection_logs" }

// Offer is one entry of a provider offers feed.
type Offer struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Payout      any    `json:"payout"`
	Category    string `json:"category"`
}
