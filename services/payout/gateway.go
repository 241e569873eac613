package payout

import (
	"context"
	"encoding/json"
	"errors"
)

//go:generate mockgen -source=gateway.go -destination=mock_gateway.go -package=payout

// ErrNotConfigured is returned when the gateway has no base url or secret key.
var ErrNotConfigured = errors.New("payout gateway is not configured")

type TransferStatus string

const (
	TransferSuccessful TransferStatus = "successful"
	TransferFailed     TransferStatus = "failed"
	TransferPending    TransferStatus = "pending"
)

type TransferRequest struct {
	// Reference is our tx_ref. The provider uses it as the idempotency key.
	Reference     string
	AccountBank   string
	AccountNumber string
	Amount        int64
	Currency      string
	Narration     string
}

type Transfer struct {
	Accepted          bool
	ProviderReference string
	Status            TransferStatus
	Message           string
	Raw               json.RawMessage
}

// Gateway is the outbound payout provider.
type Gateway interface {
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	GetTransfer(ctx context.Context, providerReference string) (*Transfer, error)
}

// MapProviderStatus maps provider transfer statuses. Anything unknown is pending.
func MapProviderStatus(s string) TransferStatus {
	switch s {
	case "SUCCESSFUL", "successful":
		return TransferSuccessful
	case "FAILED", "DECLINED", "failed", "declined":
		return TransferFailed
	default:
		return TransferPending
	}
}
