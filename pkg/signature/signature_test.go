package signature

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyHMACSHA256(t *testing.T) {
	body := []byte(`{"user_id":"42","transaction_id":"t-1","amount":"1.00"}`)
	sig := HMACSHA256Hex(body, "postback-key")

	require.True(t, VerifyHMACSHA256(body, sig, "postback-key"))
	require.False(t, VerifyHMACSHA256(body, sig, "other-key"))
	require.False(t, VerifyHMACSHA256(append(body, ' '), sig, "postback-key"))
	require.False(t, VerifyHMACSHA256(body, "not-hex", "postback-key"))
	require.False(t, VerifyHMACSHA256(body, "", "postback-key"))
}

func TestVerifyMD5Composite(t *testing.T) {
	sig := MD5Composite("42", "t-1", "1.00", "s3cret")

	require.Len(t, sig, 32)
	require.True(t, VerifyMD5Composite("42", "t-1", "1.00", "s3cret", sig))
	require.False(t, VerifyMD5Composite("42", "t-1", "2.00", "s3cret", sig))
	require.False(t, VerifyMD5Composite("42", "t-1", "1.00", "", sig))
}

func TestIPAllowed(t *testing.T) {
	nets, invalid := ParseCIDRs([]string{"10.0.0.0/8", "192.168.1.10", "not-an-ip"})
	require.Len(t, nets, 2)
	require.Equal(t, []string{"not-an-ip"}, invalid)

	require.True(t, IPAllowed("10.2.3.4", nets))
	require.True(t, IPAllowed("192.168.1.10:5123", nets))
	require.False(t, IPAllowed("192.168.1.11", nets))
	require.False(t, IPAllowed("garbage", nets))
}
