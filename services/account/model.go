package account

import "time"

// Account is the balance-owning profile of a user.
// Balance is written only by the ledger package.
type Account struct {
	ID                 string    `gorm:"column:id;primaryKey" json:"id"`
	UserID             string    `gorm:"column:user_id;uniqueIndex;not null" json:"user_id"`
	Balance            int64     `gorm:"column:balance;not null;default:0" json:"balance"`
	InviteCode         string    `gorm:"column:invite_code;uniqueIndex;not null" json:"invite_code"`
	InvitedBy          *string   `gorm:"column:invited_by;index" json:"invited_by,omitempty"`
	PinHash            string    `gorm:"column:pin_hash" json:"-"`
	SubscriptionActive bool      `gorm:"column:subscription_active;not null;default:false" json:"subscription_active"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
