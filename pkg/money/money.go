// Package money converts provider-reported amounts into integer minor units.
// Decimal arithmetic stays inside this package; everything else works in int64.
package money

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultUSDRate is the USD to UGX rate used when none is configured.
var DefaultUSDRate = decimal.NewFromInt(3800)

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// Parse reads a provider amount. Strings, floats, integers and json.Number are accepted.
func Parse(amount any) (decimal.Decimal, error) {
	switch v := amount.(type) {
	case nil:
		return decimal.Zero, fmt.Errorf("amount is empty")
	case decimal.Decimal:
		return v, nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	case json.Number:
		return decimal.NewFromString(v.String())
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case int32:
		return decimal.NewFromInt32(v), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported amount type %T", amount)
	}
}

// Normalize truncates amount to cents, multiplies by rate and truncates to an integer.
// Invalid, negative or out-of-range input yields 0.
func Normalize(amount any, rate decimal.Decimal) int64 {
	d, err := Parse(amount)
	if err != nil {
		zap.L().Warn("invalid provider amount", zap.Any("amount", amount), zap.Error(err))
		return 0
	}
	if d.IsNegative() {
		zap.L().Warn("negative provider amount", zap.String("amount", d.String()))
		return 0
	}
	if !rate.IsPositive() {
		rate = DefaultUSDRate
	}

	minor := d.Truncate(2).Mul(rate).Truncate(0)
	if minor.GreaterThan(maxMinor) {
		zap.L().Warn("provider amount out of range", zap.String("amount", d.String()), zap.String("rate", rate.String()))
		return 0
	}
	return minor.IntPart()
}

// Convert normalizes amount using the rate configured for currency. Lookups ignore case.
func Convert(amount any, currency string, rates map[string]float64) int64 {
	rate, ok := Rate(currency, rates)
	if !ok {
		zap.L().Warn("unknown postback currency", zap.String("currency", currency))
		return 0
	}
	return Normalize(amount, rate)
}

// Rate resolves the rate for currency; an empty currency means USD.
func Rate(currency string, rates map[string]float64) (decimal.Decimal, bool) {
	currency = strings.TrimSpace(currency)
	if currency == "" {
		currency = "USD"
	}
	for k, v := range rates {
		if strings.EqualFold(k, currency) && v > 0 {
			return decimal.NewFromFloat(v), true
		}
	}
	if strings.EqualFold(currency, "USD") {
		return DefaultUSDRate, true
	}
	return decimal.Zero, false
}
