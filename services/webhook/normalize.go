package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"strconv"
	"strings"

	"smallbiznis-rewards/pkg/money"
)

var (
	userKeys        = []string{"user_id", "uid", "subid1"}
	offerKeys       = []string{"offer_id", "oid"}
	transactionKeys = []string{"transaction_id", "tid", "conversion_id"}
	amountKeys      = []string{"amount", "reward"}
	rewardSigKeys   = []string{"reward", "amount"}
)

// ParsePayload flattens a JSON object, a form body or a query string into one map.
// Body fields win over query fields.
func ParsePayload(body []byte, contentType string, query url.Values) (map[string]any, error) {
	payload := make(map[string]any)
	for k, v := range query {
		if len(v) > 0 {
			payload[k] = v[0]
		}
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		if len(payload) == 0 {
			return nil, fmt.Errorf("empty postback")
		}
		return payload, nil
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/x-www-form-urlencoded" {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("invalid form body: %w", err)
		}
		for k, v := range form {
			if len(v) > 0 {
				payload[k] = v[0]
			}
		}
		return payload, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("payload is not a json object: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("payload is not a json object")
	}
	for k, v := range obj {
		payload[k] = v
	}
	return payload, nil
}

// Normalize maps provider-specific keys onto a Postback and converts the amount to minor units.
func Normalize(payload map[string]any, rates map[string]float64) Postback {
	pb := Postback{
		UserID:        firstString(payload, userKeys),
		OfferID:       firstString(payload, offerKeys),
		TransactionID: firstString(payload, transactionKeys),
		RawReward:     firstString(payload, rewardSigKeys),
		Currency:      strings.ToUpper(firstString(payload, []string{"currency"})),
		Status:        strings.ToLower(firstString(payload, []string{"status"})),
	}
	if pb.Currency == "" {
		pb.Currency = "USD"
	}
	if pb.Status == "" {
		pb.Status = "completed"
	}

	for _, k := range amountKeys {
		if v, ok := payload[k]; ok && v != nil && stringify(v) != "" {
			pb.Amount = v
			break
		}
	}
	if pb.Amount != nil {
		pb.Reward = money.Convert(pb.Amount, pb.Currency, rates)
	}
	return pb
}

// Attrs is the record handed to provider acceptance expressions.
func (pb Postback) Attrs(provider string) map[string]any {
	amount := 0.0
	if d, err := money.Parse(pb.Amount); err == nil {
		amount = d.InexactFloat64()
	}
	return map[string]any{
		"provider":       provider,
		"user_id":        pb.UserID,
		"offer_id":       pb.OfferID,
		"transaction_id": pb.TransactionID,
		"currency":       pb.Currency,
		"status":         pb.Status,
		"amount":         amount,
		"reward":         pb.Reward,
	}
}

func firstString(payload map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := payload[k]; ok {
			if s := stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
