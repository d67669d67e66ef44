package voucher

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnexpectedPayload is returned when a directory response has no
// recognisable voucher list.
var ErrUnexpectedPayload = errors.New("voucher: unexpected directory payload")

var (
	idKeys          = []string{"id", "_id", "voucherId", "voucher_id"}
	codeKeys        = []string{"code", "voucherCode", "voucher_code"}
	typeKeys        = []string{"type", "discountType", "discount_type", "kind"}
	valueKeys       = []string{"value", "discountValue", "discount_value"}
	maxDiscountKeys = []string{"maxDiscount", "max_discount", "maxDiscountAmount", "max_discount_amount"}
	minOrderKeys    = []string{"minOrderAmount", "min_order_amount", "minOrderValue", "min_order_value", "minSpend"}
	maxUsesKeys     = []string{"maxUses", "max_uses", "usageLimit", "usage_limit"}
	usedCountKeys   = []string{"usedCount", "used_count"}
	perUserKeys     = []string{"perUserLimit", "per_user_limit"}
	usedByUserKeys  = []string{"usedByUser", "used_by_user", "userUsedCount"}
	stackableKeys   = []string{"stackable", "isStackable", "is_stackable", "combinable"}
	statusKeys      = []string{"status"}
	activeKeys      = []string{"isActive", "is_active", "active"}
	startKeys       = []string{"startAt", "start_at", "startDate", "start_date", "validFrom"}
	endKeys         = []string{"endAt", "end_at", "endDate", "end_date", "validTo", "expiredAt"}
	descKeys        = []string{"description", "name", "title"}
	envelopeKeys    = []string{"data", "items", "vouchers", "content"}
)

type fields map[string]json.RawMessage

// DecodeList decodes a voucher directory response. It accepts a bare array or
// an array nested under data, items, vouchers or content. Individual records
// are coerced leniently; fields that cannot be coerced mark the record
// Malformed instead of failing the whole list.
func DecodeList(data []byte) ([]Voucher, error) {
	records, err := unwrapList(bytes.TrimSpace(data), 0)
	if err != nil {
		return nil, err
	}
	out := make([]Voucher, 0, len(records))
	for _, rec := range records {
		var f fields
		if err := json.Unmarshal(rec, &f); err != nil || f == nil {
			continue
		}
		v := decodeRecord(f)
		if v.Code == "" {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func unwrapList(data []byte, depth int) ([]json.RawMessage, error) {
	if len(data) == 0 || depth > 3 {
		return nil, ErrUnexpectedPayload
	}
	switch data[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("decode voucher list: %w", err)
		}
		return list, nil
	case '{':
		var f fields
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode voucher envelope: %w", err)
		}
		for _, key := range envelopeKeys {
			if inner, ok := f[key]; ok && !isNull(inner) {
				return unwrapList(bytes.TrimSpace(inner), depth+1)
			}
		}
		return nil, ErrUnexpectedPayload
	default:
		return nil, ErrUnexpectedPayload
	}
}

func decodeRecord(f fields) Voucher {
	d := decoder{f: f}
	v := Voucher{
		ID:          d.str(idKeys),
		Code:        CanonicalCode(d.str(codeKeys)),
		Description: d.str(descKeys),
	}
	v.Type = d.kind()
	if value, ok := d.dec(valueKeys); ok && d.fitsInt64(value) {
		v.Value = value
	}
	v.MaxDiscount = d.optInt(maxDiscountKeys)
	v.MinOrderAmount = d.optInt(minOrderKeys)
	v.MaxUses = d.optInt(maxUsesKeys)
	v.UsedCount = d.int(usedCountKeys)
	v.PerUserLimit = d.optInt(perUserKeys)
	v.UsedByUser = d.int(usedByUserKeys)
	v.Stackable = d.boolean(stackableKeys)
	v.Status = d.status()
	v.StartAt = d.timestamp(startKeys)
	v.EndAt = d.timestamp(endKeys)
	v.Malformed = d.malformed
	return v
}

type decoder struct {
	f         fields
	malformed bool
}

func (d *decoder) lookup(keys []string) (json.RawMessage, bool) {
	for _, key := range keys {
		if raw, ok := d.f[key]; ok && !isNull(raw) {
			return raw, true
		}
	}
	return nil, false
}

func (d *decoder) str(keys []string) string {
	raw, ok := d.lookup(keys)
	if !ok {
		return ""
	}
	s, ok := scalarText(raw)
	if !ok {
		d.malformed = true
		return ""
	}
	return strings.TrimSpace(s)
}

func (d *decoder) dec(keys []string) (decimal.Decimal, bool) {
	raw, ok := d.lookup(keys)
	if !ok {
		return decimal.Zero, false
	}
	s, ok := scalarText(raw)
	if !ok {
		d.malformed = true
		return decimal.Zero, false
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(s)
	if err != nil {
		d.malformed = true
		return decimal.Zero, false
	}
	return value, true
}

var (
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

// optInt reads a whole rupiah amount or counter. Values outside int64 mark the
// record malformed rather than wrapping.
func (d *decoder) optInt(keys []string) *int64 {
	value, ok := d.dec(keys)
	if !ok {
		return nil
	}
	value = value.Floor()
	if !d.fitsInt64(value) {
		return nil
	}
	n := value.IntPart()
	return &n
}

func (d *decoder) fitsInt64(value decimal.Decimal) bool {
	if value.GreaterThan(maxInt64) || value.LessThan(minInt64) {
		d.malformed = true
		return false
	}
	return true
}

func (d *decoder) int(keys []string) int64 {
	if n := d.optInt(keys); n != nil {
		return *n
	}
	return 0
}

func (d *decoder) boolean(keys []string) bool {
	raw, ok := d.lookup(keys)
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	s, ok := scalarText(raw)
	if !ok {
		d.malformed = true
		return false
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n", "":
		return false
	default:
		d.malformed = true
		return false
	}
}

func (d *decoder) kind() Type {
	raw := strings.ToUpper(d.str(typeKeys))
	raw = strings.NewReplacer("-", "_", " ", "_").Replace(raw)
	switch raw {
	case "PERCENT", "PERCENTAGE":
		return TypePercent
	case "AMOUNT", "FIXED", "FIXED_AMOUNT":
		return TypeAmount
	case "SHIPPING_FREE", "FREE_SHIPPING", "FREESHIP", "SHIPPING":
		return TypeShippingFree
	default:
		d.malformed = true
		return Type(raw)
	}
}

func (d *decoder) status() string {
	if s := d.str(statusKeys); s != "" {
		return strings.ToUpper(s)
	}
	if _, ok := d.lookup(activeKeys); ok {
		if d.boolean(activeKeys) {
			return StatusActive
		}
		return "INACTIVE"
	}
	return ""
}

// timestamp keeps string timestamps as received and renders epoch numbers
// (seconds or milliseconds) as RFC 3339.
func (d *decoder) timestamp(keys []string) string {
	raw, ok := d.lookup(keys)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		d.malformed = true
		return ""
	}
	if n > 1_000_000_000_000 {
		return time.UnixMilli(n).UTC().Format(time.RFC3339)
	}
	return time.Unix(n, 0).UTC().Format(time.RFC3339)
}

func scalarText(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		return n.String(), true
	}
	return "", false
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
