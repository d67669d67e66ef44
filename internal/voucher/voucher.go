package voucher

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Type identifies how a voucher produces its discount.
type Type string

const (
	TypePercent      Type = "PERCENT"
	TypeAmount       Type = "AMOUNT"
	TypeShippingFree Type = "SHIPPING_FREE"
)

// Valid reports whether t is one of the known voucher types.
func (t Type) Valid() bool {
	switch t {
	case TypePercent, TypeAmount, TypeShippingFree:
		return true
	default:
		return false
	}
}

// StatusActive is the only lifecycle status that can be applied at checkout.
const StatusActive = "ACTIVE"

// DefaultShippingCap bounds a SHIPPING_FREE voucher that carries no MaxDiscount.
const DefaultShippingCap int64 = 50_000

// DefaultMaxSlots is the number of vouchers the picker allows at once.
const DefaultMaxSlots = 3

// Voucher is a read-only snapshot of a voucher as published by the backend
// directory. Amounts are rupiah.
type Voucher struct {
	ID             string          `json:"id,omitempty"`
	Code           string          `json:"code"`
	Type           Type            `json:"type"`
	Value          decimal.Decimal `json:"value"`
	MaxDiscount    *int64          `json:"maxDiscount,omitempty"`
	MinOrderAmount *int64          `json:"minOrderAmount,omitempty"`
	MaxUses        *int64          `json:"maxUses,omitempty"`
	UsedCount      int64           `json:"usedCount"`
	PerUserLimit   *int64          `json:"perUserLimit,omitempty"`
	UsedByUser     int64           `json:"usedByUser"`
	Stackable      bool            `json:"stackable"`
	Status         string          `json:"status"`
	StartAt        string          `json:"startAt,omitempty"`
	EndAt          string          `json:"endAt,omitempty"`
	Description    string          `json:"description,omitempty"`

	// Malformed is set when the record could not be coerced into the canonical
	// shape. Malformed vouchers are always treated as expired.
	Malformed bool `json:"malformed,omitempty"`
}

// Key returns the identity used for selection membership. Shoppers, the
// directory lookup and the order payload all name vouchers by code, so the
// canonical code is the identity even when the backend also sends an id.
func (v Voucher) Key() string {
	return CanonicalCode(v.Code)
}

// Expired reports whether the voucher is outside its usable lifecycle at now.
// Inactive status, a past end date, an unparseable end date and a malformed
// record all count as expired.
func (v Voucher) Expired(now time.Time) bool {
	if v.Malformed || !strings.EqualFold(strings.TrimSpace(v.Status), StatusActive) {
		return true
	}
	if strings.TrimSpace(v.EndAt) == "" {
		return false
	}
	end, err := ParseTimestamp(v.EndAt)
	if err != nil {
		return true
	}
	return end.Before(now)
}

// Upcoming reports whether the voucher has a start date in the future. An
// unparseable start date is not considered upcoming.
func (v Voucher) Upcoming(now time.Time) bool {
	if strings.TrimSpace(v.StartAt) == "" {
		return false
	}
	start, err := ParseTimestamp(v.StartAt)
	if err != nil {
		return false
	}
	return start.After(now)
}

// CanonicalCode normalises a human-entered voucher code.
func CanonicalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp accepts the timestamp shapes the backend has been observed to
// emit. Zone-less values are interpreted as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Find returns the voucher in list whose code matches code case-insensitively.
func Find(list []Voucher, code string) (Voucher, bool) {
	want := CanonicalCode(code)
	if want == "" {
		return Voucher{}, false
	}
	for _, v := range list {
		if CanonicalCode(v.Code) == want {
			return v, true
		}
	}
	return Voucher{}, false
}
