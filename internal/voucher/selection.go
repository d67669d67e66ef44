package voucher

// ToggleSelection adds or removes candidate from current. Removing is always
// allowed. Adding is refused, returning an unchanged copy, when candidate
// cannot join current under the stacking rules, when it is a second
// SHIPPING_FREE voucher, or when maxSlots are already taken. The slot limit is
// a picker convenience; the backend enforces the real rules when the order is
// placed.
func ToggleSelection(current []Voucher, candidate Voucher, maxSlots int) []Voucher {
	if maxSlots <= 0 {
		maxSlots = DefaultMaxSlots
	}
	key := candidate.Key()
	out := make([]Voucher, 0, len(current)+1)
	removed := false
	for _, v := range current {
		if v.Key() == key {
			removed = true
			continue
		}
		out = append(out, v)
	}
	if removed {
		return out
	}
	if !CanJoin(current, candidate) {
		return out
	}
	if candidate.Type == TypeShippingFree && hasType(current, TypeShippingFree) {
		return out
	}
	if len(current) >= maxSlots {
		return out
	}
	return append(out, candidate)
}

// CanJoin reports whether candidate may be added next to selected. A
// non-stackable voucher only stands alone: it cannot join a non-empty set, and
// nothing can join a set that holds one.
func CanJoin(selected []Voucher, candidate Voucher) bool {
	if len(selected) == 0 {
		return true
	}
	if !candidate.Stackable {
		return false
	}
	for _, v := range selected {
		if !v.Stackable {
			return false
		}
	}
	return true
}

// Contains reports whether list holds the voucher named by code.
func Contains(list []Voucher, code string) bool {
	want := CanonicalCode(code)
	if want == "" {
		return false
	}
	for _, item := range list {
		if item.Key() == want {
			return true
		}
	}
	return false
}

// Codes returns the canonical codes of vouchers in order.
func Codes(vouchers []Voucher) []string {
	out := make([]string, 0, len(vouchers))
	for _, v := range vouchers {
		out = append(out, CanonicalCode(v.Code))
	}
	return out
}

func hasType(list []Voucher, t Type) bool {
	for _, item := range list {
		if item.Type == t {
			return true
		}
	}
	return false
}
