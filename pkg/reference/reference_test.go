package reference

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormats(t *testing.T) {
	require.Regexp(t, regexp.MustCompile(`^WD-[0-9a-f]{12}$`), Withdrawal())
	require.Regexp(t, regexp.MustCompile(`^SUB-[0-9a-f]{12}$`), Subscription())
	require.Regexp(t, regexp.MustCompile(`^PAY-[0-9a-f]{12}$`), Payroll())
	require.Regexp(t, regexp.MustCompile(`^REN-[0-9A-F]{8}$`), InviteCode())
	require.NotEqual(t, Withdrawal(), Withdrawal())
}

func TestTransactionID(t *testing.T) {
	id, err := TransactionID(time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^20250309-[0-9A-F]{6}$`), id)
}
