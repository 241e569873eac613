package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// GenesisHash links the first entry of every user chain.
const GenesisHash = "GENESIS"

const (
	CategoryReferral      = "referral"
	CategoryUncategorized = "uncategorized"
)

// RewardLog is one immutable credit in a user's hash-chained ledger.
// Rows are only ever inserted.
type RewardLog struct {
	ID             string         `gorm:"column:id;primaryKey" json:"id"`
	UserID         string         `gorm:"column:user_id;not null;uniqueIndex:idx_reward_logs_user_seq,priority:1" json:"user_id"`
	Sequence       int64          `gorm:"column:sequence;not null;uniqueIndex:idx_reward_logs_user_seq,priority:2" json:"sequence"`
	TaskID         *string        `gorm:"column:task_id;index" json:"task_id,omitempty"`
	Provider       string         `gorm:"column:provider;index" json:"provider"`
	Category       string         `gorm:"column:category;index" json:"category"`
	Amount         int64          `gorm:"column:amount;not null" json:"amount"`
	ProviderAmount int64          `gorm:"column:provider_amount;not null;default:0" json:"provider_amount"`
	AdminAmount    int64          `gorm:"column:admin_amount;not null;default:0" json:"admin_amount"`
	Reference      string         `gorm:"column:reference;index" json:"reference,omitempty"`
	TransactionID  string         `gorm:"column:transaction_id;index" json:"transaction_id"`
	PreviousHash   string         `gorm:"column:previous_hash;not null" json:"previous_hash"`
	Hash           string         `gorm:"column:hash;not null" json:"hash"`
	Metadata       datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time      `gorm:"column:created_at;index" json:"created_at"`
}

func (m *RewardLog) HashFields() map[string]string {
	taskID := ""
	if m.TaskID != nil {
		taskID = *m.TaskID
	}
	return map[string]string{
		"id":              m.ID,
		"user_id":         m.UserID,
		"sequence":        fmt.Sprintf("%d", m.Sequence),
		"task_id":         taskID,
		"provider":        m.Provider,
		"category":        m.Category,
		"amount":          fmt.Sprintf("%d", m.Amount),
		"provider_amount": fmt.Sprintf("%d", m.ProviderAmount),
		"admin_amount":    fmt.Sprintf("%d", m.AdminAmount),
		"reference":       m.Reference,
		"transaction_id":  m.TransactionID,
		"created_at":      m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":   m.PreviousHash,
	}
}

func (m *RewardLog) GenerateHash() string {
	fields := m.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

type CreditParams struct {
	UserID         string
	TaskID         *string
	Provider       string
	Category       string
	Amount         int64
	ProviderAmount int64
	AdminAmount    int64
	Reference      string
	Metadata       datatypes.JSON
}

type ChainReport struct {
	UserID   string `json:"user_id"`
	Valid    bool   `json:"valid"`
	Entries  int    `json:"entries"`
	BrokenAt string `json:"broken_at,omitempty"`
}

// ReconcileReport compares the stored balance with the ledger.
// Expected = Earned - Debited, where Debited counts debiting transactions that were not refunded.
type ReconcileReport struct {
	UserID     string `json:"user_id"`
	Balance    int64  `json:"balance"`
	Earned     int64  `json:"earned"`
	Debited    int64  `json:"debited"`
	Expected   int64  `json:"expected"`
	Consistent bool   `json:"consistent"`
}
