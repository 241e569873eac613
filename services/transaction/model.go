package transaction

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusProcessing   Status = "processing"
	StatusSuccess      Status = "success"
	StatusFailed       Status = "failed"
	StatusManualReview Status = "manual_review"
)

// Terminal statuses are never overwritten.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Open lists the statuses a transition may start from.
var Open = []Status{StatusPending, StatusProcessing, StatusManualReview}

type Type string

const (
	TypeWithdrawal   Type = "withdrawal"
	TypeSubscription Type = "subscription"
	TypePayroll      Type = "payroll"
)

// Transaction is one outbound payment attempt: a withdrawal, a subscription or a payroll payment.
type Transaction struct {
	ID                  string         `gorm:"column:id;primaryKey" json:"id"`
	UserID              *string        `gorm:"column:user_id;index" json:"user_id,omitempty"`
	TxType              Type           `gorm:"column:tx_type;index;not null" json:"tx_type"`
	Amount              int64          `gorm:"column:amount;not null" json:"amount"`
	Status              Status         `gorm:"column:status;index;not null;default:pending" json:"status"`
	TxRef               string         `gorm:"column:tx_ref;uniqueIndex;not null" json:"tx_ref"`
	ProviderReference   string         `gorm:"column:provider_reference;index" json:"provider_reference,omitempty"`
	RawProviderResponse datatypes.JSON `gorm:"column:raw_provider_response" json:"-"`
	FailureReason       string         `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	AccountBank         string         `gorm:"column:account_bank" json:"account_bank,omitempty"`
	AccountNumberEnc    string         `gorm:"column:account_number_enc" json:"-"`
	PayrollEntryID      *string        `gorm:"column:payroll_entry_id;index" json:"payroll_entry_id,omitempty"`
	PollCount           int            `gorm:"column:poll_count;not null;default:0" json:"poll_count"`
	RefundedAt          *time.Time     `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
	SentAt              *time.Time     `gorm:"column:sent_at" json:"sent_at,omitempty"`
	ConfirmedAt         *time.Time     `gorm:"column:confirmed_at" json:"confirmed_at,omitempty"`
	CreatedAt           time.Time      `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// Debited reports whether creating the transaction took money from a user balance.
func (t *Transaction) Debited() bool {
	return t.UserID != nil && (t.TxType == TypeWithdrawal || t.TxType == TypeSubscription)
}
