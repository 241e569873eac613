package signature

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"net"
	"strings"
)

// HMACSHA256Hex returns the lowercase hex HMAC-SHA256 of payload.
func HMACSHA256Hex(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSHA256 compares a hex signature header against the body HMAC in constant time.
func VerifyHMACSHA256(payload []byte, signatureHeader, secret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret = strings.TrimSpace(secret)
	if sig == "" || secret == "" {
		return false
	}

	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	return verifyHMAC(payload, decoded, []byte(secret), sha256.New)
}

func verifyHMAC(payload, expectedSig, secret []byte, hashFunc func() hash.Hash) bool {
	mac := hmac.New(hashFunc, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}

// MD5Composite is md5(user_id + transaction_id + reward + secret) in hex.
func MD5Composite(userID, transactionID, reward, secret string) string {
	sum := md5.Sum([]byte(userID + transactionID + reward + secret))
	return hex.EncodeToString(sum[:])
}

// VerifyMD5Composite checks a composite signature in constant time.
func VerifyMD5Composite(userID, transactionID, reward, secret, sig string) bool {
	if secret == "" || sig == "" {
		return false
	}
	expected := MD5Composite(userID, transactionID, reward, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(sig))))
}

// ParseCIDRs accepts CIDR blocks and bare addresses. Invalid entries are returned separately.
func ParseCIDRs(entries []string) ([]*net.IPNet, []string) {
	var nets []*net.IPNet
	var invalid []string
	for _, raw := range entries {
		e := strings.TrimSpace(raw)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				invalid = append(invalid, e)
				continue
			}
			if ip.To4() != nil {
				e += "/32"
			} else {
				e += "/128"
			}
		}
		_, n, err := net.ParseCIDR(e)
		if err != nil {
			invalid = append(invalid, raw)
			continue
		}
		nets = append(nets, n)
	}
	return nets, invalid
}

// IPAllowed reports whether remote is inside one of the networks.
func IPAllowed(remote string, nets []*net.IPNet) bool {
	host := strings.TrimSpace(remote)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
