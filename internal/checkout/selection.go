package checkout

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/noah-isme/toko-storefront/internal/voucher"
)

var (
	// ErrNoVoucherInput is returned by Apply when neither a code was typed
	// nor a voucher selected.
	ErrNoVoucherInput = errors.New("select a voucher or enter a voucher code")
	// ErrVoucherNotFound is returned when a typed code is not in the directory.
	ErrVoucherNotFound = errors.New("voucher code not found")
	// ErrOrderInProgress is returned while another order from the same
	// shopper is still being submitted.
	ErrOrderInProgress = errors.New("an order is already being placed, please wait")
)

// Selection is the voucher state of one checkout. It is built fresh for each
// request and never shared.
type Selection struct {
	Selected  []voucher.Voucher
	CodeInput string
	// Applied is the snapshot of codes taken at Apply time.
	Applied       []string
	MaxSlots      int
	BlockUpcoming bool
}

// Toggle adds or removes v from the selected set following the toggle rules
// of the voucher picker.
func (s *Selection) Toggle(v voucher.Voucher) {
	s.Selected = voucher.ToggleSelection(s.Selected, v, s.MaxSlots)
}

// SetCode records the code typed by the shopper.
func (s *Selection) SetCode(code string) {
	s.CodeInput = code
}

// Apply snapshots the codes to use. A typed code takes precedence over the
// selected set.
func (s *Selection) Apply(directory []voucher.Voucher) error {
	if code := voucher.CanonicalCode(s.CodeInput); code != "" {
		v, ok := voucher.Find(directory, code)
		if !ok {
			return fmt.Errorf("%w: %s", ErrVoucherNotFound, code)
		}
		s.Applied = []string{voucher.CanonicalCode(v.Code)}
		return nil
	}
	if len(s.Selected) == 0 {
		return ErrNoVoucherInput
	}
	s.Applied = voucher.Codes(s.Selected)
	return nil
}

// Remove drops code from both the applied snapshot and the selected set.
func (s *Selection) Remove(code string) {
	code = voucher.CanonicalCode(code)
	s.Applied = slices.DeleteFunc(slices.Clone(s.Applied), func(c string) bool {
		return voucher.CanonicalCode(c) == code
	})
	s.Selected = slices.DeleteFunc(slices.Clone(s.Selected), func(v voucher.Voucher) bool {
		return voucher.CanonicalCode(v.Code) == code
	})
}

// Clear resets the selection to its initial empty state.
func (s *Selection) Clear() {
	s.Selected = nil
	s.CodeInput = ""
	s.Applied = nil
}

// Dropped names an applied code that did not take part in a quote.
type Dropped struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Quote is the recomputed checkout summary. It is an estimate; the backend
// recomputes every amount when the order is placed.
type Quote struct {
	voucher.Summary
	Applied  []string  `json:"applied"`
	Dropped  []Dropped `json:"dropped,omitempty"`
	Estimate bool      `json:"estimate"`
}

// Recompute resolves the applied codes against directory and computes the
// summary for subtotal and shippingFee. Codes that are unknown, expired or used
// up are reported in Dropped and contribute nothing, as are codes that would
// stack with a non-stackable voucher applied before them.
func (s *Selection) Recompute(directory []voucher.Voucher, subtotal, shippingFee int64, now time.Time) Quote {
	if now.IsZero() {
		now = time.Now()
	}
	q := Quote{Applied: []string{}, Estimate: true}
	var active []voucher.Voucher
	seen := make(map[string]struct{}, len(s.Applied))
	for _, raw := range s.Applied {
		code := voucher.CanonicalCode(raw)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		v, ok := voucher.Find(directory, code)
		if !ok {
			q.Dropped = append(q.Dropped, Dropped{Code: code, Reason: ErrVoucherNotFound.Error()})
			continue
		}
		if !voucher.Usable(v, now, s.BlockUpcoming) {
			reason := voucher.ExplainIneligibility(v, voucher.EligibilityContext{Subtotal: subtotal, Now: now, BlockUpcoming: s.BlockUpcoming})
			q.Dropped = append(q.Dropped, Dropped{Code: code, Reason: reason})
			continue
		}
		if !voucher.CanJoin(active, v) {
			q.Dropped = append(q.Dropped, Dropped{Code: code, Reason: voucher.ErrNotStackable.Error()})
			continue
		}
		active = append(active, v)
		q.Applied = append(q.Applied, code)
	}
	q.Summary = voucher.Totals(subtotal, shippingFee, voucher.ComputeSavings(active, subtotal, shippingFee))
	return q
}
