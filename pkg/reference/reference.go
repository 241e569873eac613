package reference

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	PrefixWithdrawal   = "WD"
	PrefixSubscription = "SUB"
	PrefixPayroll      = "PAY"
	PrefixInvite       = "REN"
)

func hex12() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// New returns "<prefix>-<12 hex>".
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, hex12())
}

func Withdrawal() string   { return New(PrefixWithdrawal) }
func Subscription() string { return New(PrefixSubscription) }
func Payroll() string      { return New(PrefixPayroll) }

// InviteCode returns "REN-" followed by 8 uppercase hex characters.
func InviteCode() string {
	return fmt.Sprintf("%s-%s", PrefixInvite, strings.ToUpper(hex12()[:8]))
}

// TransactionID is the date-prefixed id stamped on ledger entries, YYYYMMDD-XXXXXX.
func TransactionID(now time.Time) (string, error) {
	r := make([]byte, 3)
	if _, err := rand.Read(r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102"), strings.ToUpper(fmt.Sprintf("%x", r))), nil
}
