package withdrawal

import "time"

// PayrollEntry is a staff payee paid by the weekly payroll run.
type PayrollEntry struct {
	ID               string     `gorm:"column:id;primaryKey" json:"id"`
	Name             string     `gorm:"column:name;not null" json:"name"`
	BankCode         string     `gorm:"column:bank_code" json:"bank_code"`
	AccountNumberEnc string     `gorm:"column:account_number_enc;not null" json:"-"`
	Amount           int64      `gorm:"column:amount;not null" json:"amount"`
	AutoWithdraw     bool       `gorm:"column:auto_withdraw;not null;default:false" json:"auto_withdraw"`
	Enabled          bool       `gorm:"column:enabled;not null;default:true" json:"enabled"`
	LastPaidAt       *time.Time `gorm:"column:last_paid_at" json:"last_paid_at,omitempty"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

type Request struct {
	UserID        string `json:"-"`
	Amount        int64  `json:"amount" binding:"required"`
	AccountBank   string `json:"account_bank" binding:"required"`
	AccountNumber string `json:"account_number" binding:"required"`
	PIN           string `json:"pin" binding:"required"`
}

type SubscriptionRequest struct {
	Amount    int64  `json:"amount" binding:"required"`
	PackageID string `json:"package_id"`
}

type PayrollEntryRequest struct {
	Name          string `json:"name" binding:"required"`
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number" binding:"required"`
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	AutoWithdraw  bool   `json:"auto_withdraw"`
}

// ProviderEvent is the payout provider callback body. Some deliveries nest the transfer under data.
type ProviderEvent struct {
	TxRef  string `json:"tx_ref"`
	Status string `json:"status"`
	Data   *struct {
		TxRef     string `json:"tx_ref"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data,omitempty"`
}

func (e ProviderEvent) Ref() string {
	if e.TxRef != "" {
		return e.TxRef
	}
	if e.Data != nil {
		if e.Data.TxRef != "" {
			return e.Data.TxRef
		}
		return e.Data.Reference
	}
	return ""
}

func (e ProviderEvent) State() string {
	if e.Status != "" {
		return e.Status
	}
	if e.Data != nil {
		return e.Data.Status
	}
	return ""
}

type txRefPayload struct {
	TxRef string `json:"tx_ref"`
}
