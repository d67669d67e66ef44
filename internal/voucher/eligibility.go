package voucher

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrVoucherExpired is reported for inactive, past-dated or malformed vouchers.
	ErrVoucherExpired = errors.New("voucher has expired")
	// ErrNotStarted is reported for vouchers whose start date is still ahead,
	// only when upcoming vouchers are blocked.
	ErrNotStarted = errors.New("voucher is not active yet")
	// ErrUsageLimitReached indicates the voucher has exhausted the global usage quota.
	ErrUsageLimitReached = errors.New("voucher usage limit reached")
	// ErrPerUserLimitReached indicates the shopper has used up their allowance.
	ErrPerUserLimitReached = errors.New("you have reached the usage limit for this voucher")
	// ErrMinimumOrderUnmet indicates the subtotal is below the voucher minimum.
	ErrMinimumOrderUnmet = errors.New("order does not meet the voucher minimum")
	// ErrNotStackable indicates a non-stackable voucher cannot join the current selection.
	ErrNotStackable = errors.New("voucher cannot be combined with other vouchers")
)

// EligibilityContext is the checkout state a voucher is judged against.
type EligibilityContext struct {
	Subtotal int64
	Now      time.Time
	Selected []Voucher

	// BlockUpcoming makes vouchers with a future start date ineligible.
	BlockUpcoming bool
}

// Ineligibility returns the first reason v cannot be selected, or nil when it
// can. Reasons are checked in a fixed order: expiry, global usage, per-user
// usage, minimum order, stacking.
func Ineligibility(v Voucher, ec EligibilityContext) error {
	now := ec.Now
	if now.IsZero() {
		now = time.Now()
	}
	if v.Expired(now) {
		return ErrVoucherExpired
	}
	if ec.BlockUpcoming && v.Upcoming(now) {
		return ErrNotStarted
	}
	if v.MaxUses != nil && v.UsedCount >= *v.MaxUses {
		return ErrUsageLimitReached
	}
	if v.PerUserLimit != nil && v.UsedByUser >= *v.PerUserLimit {
		return ErrPerUserLimitReached
	}
	if v.MinOrderAmount != nil && ec.Subtotal < *v.MinOrderAmount {
		return fmt.Errorf("%w: minimum order %s", ErrMinimumOrderUnmet, FormatRupiah(*v.MinOrderAmount))
	}
	if !Contains(ec.Selected, v.Code) && !CanJoin(ec.Selected, v) {
		return ErrNotStackable
	}
	return nil
}

// ExplainIneligibility renders the reason from Ineligibility as a message for
// the voucher picker. An empty string means the voucher is selectable.
func ExplainIneligibility(v Voucher, ec EligibilityContext) string {
	if err := Ineligibility(v, ec); err != nil {
		return err.Error()
	}
	return ""
}

// Usable reports whether v may contribute to a computed preview: it is not
// expired and has usage left. Minimum order and stacking are left to
// ComputeSavings and the selection rules respectively.
func Usable(v Voucher, now time.Time, blockUpcoming bool) bool {
	if v.Expired(now) {
		return false
	}
	if blockUpcoming && v.Upcoming(now) {
		return false
	}
	if v.MaxUses != nil && v.UsedCount >= *v.MaxUses {
		return false
	}
	if v.PerUserLimit != nil && v.UsedByUser >= *v.PerUserLimit {
		return false
	}
	return true
}
