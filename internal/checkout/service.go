package checkout

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/backend"
	"github.com/noah-isme/toko-storefront/internal/cache"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/lock"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/voucher"
)

// Backend is the subset of the storefront backend the checkout needs.
type Backend interface {
	ListVouchers(ctx context.Context, s common.Session) ([]voucher.Voucher, error)
	GetCart(ctx context.Context, s common.Session, cartID string) (backend.Cart, error)
	SubmitOrder(ctx context.Context, s common.Session, req backend.OrderRequest) (backend.OrderResult, error)
}

// DirectoryInvalidator drops a user's cached voucher directory.
type DirectoryInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// OrderLocker serialises order submissions for one shopper.
type OrderLocker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// orderLockTTL covers the backend call including its retries.
const orderLockTTL = 30 * time.Second

// Service computes voucher previews and forwards orders.
type Service struct {
	Backend       Backend
	Invalidator   DirectoryInvalidator
	OrderLock     OrderLocker
	Metrics       *obs.CheckoutMetrics
	MaxSlots      int
	BlockUpcoming bool
	Now           func() time.Time
}

// Entry is a voucher as shown in the picker.
type Entry struct {
	voucher.Voucher
	Selected   bool   `json:"selected"`
	Selectable bool   `json:"selectable"`
	Reason     string `json:"reason,omitempty"`
	Upcoming   bool   `json:"upcoming"`
}

// Amounts identifies the cart being priced. When CartID is set the subtotal
// is read from the backend cart; otherwise Subtotal is used as given.
type Amounts struct {
	CartID      string
	Subtotal    int64
	ShippingFee int64
}

// ToggleResult is the selected set after a toggle.
type ToggleResult struct {
	Selected []string `json:"selected"`
	Changed  bool     `json:"changed"`
	Reason   string   `json:"reason,omitempty"`
}

// OrderInput carries what the shopper submits at the end of checkout.
type OrderInput struct {
	CartID    string
	AddressID string
	Shipping  backend.ShippingOption
	Vouchers  []string
	Notes     string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) selection() *Selection {
	return &Selection{MaxSlots: s.MaxSlots, BlockUpcoming: s.BlockUpcoming}
}

// Directory returns every voucher in the shopper's directory annotated with
// whether it can be selected next to the given codes at subtotal.
func (s *Service) Directory(ctx context.Context, sess common.Session, subtotal int64, selected []string) ([]Entry, error) {
	list, err := s.directory(ctx, sess)
	if err != nil {
		return nil, err
	}
	now := s.now()
	current := resolve(list, selected)
	out := make([]Entry, 0, len(list))
	for _, v := range list {
		ec := voucher.EligibilityContext{Subtotal: subtotal, Now: now, Selected: current, BlockUpcoming: s.BlockUpcoming}
		reasonErr := voucher.Ineligibility(v, ec)
		e := Entry{
			Voucher:    v,
			Selected:   voucher.Contains(current, v.Code),
			Selectable: reasonErr == nil,
			Upcoming:   v.Upcoming(now),
		}
		if reasonErr != nil {
			e.Reason = reasonErr.Error()
			s.Metrics.IneligibleVoucher(reasonLabel(reasonErr))
		}
		out = append(out, e)
	}
	return out, nil
}

// Toggle flips candidate in the selected set. Adding a voucher that is not
// selectable leaves the set unchanged and reports the reason.
func (s *Service) Toggle(ctx context.Context, sess common.Session, subtotal int64, selected []string, candidate string) (ToggleResult, error) {
	list, err := s.directory(ctx, sess)
	if err != nil {
		return ToggleResult{}, err
	}
	v, ok := voucher.Find(list, candidate)
	if !ok {
		return ToggleResult{}, ErrVoucherNotFound
	}
	sel := s.selection()
	sel.Selected = resolve(list, selected)
	before := voucher.Codes(sel.Selected)

	if !voucher.Contains(sel.Selected, v.Code) {
		ec := voucher.EligibilityContext{Subtotal: subtotal, Now: s.now(), Selected: sel.Selected, BlockUpcoming: s.BlockUpcoming}
		if reasonErr := voucher.Ineligibility(v, ec); reasonErr != nil {
			return ToggleResult{Selected: before, Reason: reasonErr.Error()}, nil
		}
	}
	sel.Toggle(v)
	after := voucher.Codes(sel.Selected)
	res := ToggleResult{Selected: after, Changed: !slices.Equal(before, after)}
	if !res.Changed {
		res.Reason = "voucher cannot be added to the current selection"
	}
	return res, nil
}

// Apply resolves the typed code or the selected set and returns the quote.
func (s *Service) Apply(ctx context.Context, sess common.Session, amounts Amounts, selected []string, code string) (Quote, error) {
	list, err := s.directory(ctx, sess)
	if err != nil {
		return Quote{}, err
	}
	subtotal, err := s.subtotal(ctx, sess, amounts)
	if err != nil {
		return Quote{}, err
	}
	sel := s.selection()
	sel.Selected = resolve(list, selected)
	sel.SetCode(code)
	if err := sel.Apply(list); err != nil {
		s.Metrics.Preview("rejected", 0)
		return Quote{}, err
	}
	return s.recompute(ctx, sel, list, subtotal, amounts.ShippingFee), nil
}

// Preview recomputes the summary for already applied codes.
func (s *Service) Preview(ctx context.Context, sess common.Session, amounts Amounts, applied []string) (Quote, error) {
	list, err := s.directory(ctx, sess)
	if err != nil {
		return Quote{}, err
	}
	subtotal, err := s.subtotal(ctx, sess, amounts)
	if err != nil {
		return Quote{}, err
	}
	sel := s.selection()
	sel.Applied = applied
	return s.recompute(ctx, sel, list, subtotal, amounts.ShippingFee), nil
}

// Remove drops code from the applied codes and returns the new quote.
func (s *Service) Remove(ctx context.Context, sess common.Session, amounts Amounts, applied []string, code string) (Quote, error) {
	list, err := s.directory(ctx, sess)
	if err != nil {
		return Quote{}, err
	}
	subtotal, err := s.subtotal(ctx, sess, amounts)
	if err != nil {
		return Quote{}, err
	}
	sel := s.selection()
	sel.Applied = applied
	sel.Remove(code)
	return s.recompute(ctx, sel, list, subtotal, amounts.ShippingFee), nil
}

// SubmitOrder forwards the order with voucher codes only. Backend rejections
// are returned unchanged so their message reaches the shopper.
func (s *Service) SubmitOrder(ctx context.Context, sess common.Session, in OrderInput) (backend.OrderResult, error) {
	if s == nil || s.Backend == nil {
		return backend.OrderResult{}, errors.New("checkout service not configured")
	}
	codes := make([]string, 0, len(in.Vouchers))
	for _, c := range in.Vouchers {
		c = voucher.CanonicalCode(c)
		if c != "" && !slices.Contains(codes, c) {
			codes = append(codes, c)
		}
	}
	req := backend.OrderRequest{
		CartID:       strings.TrimSpace(in.CartID),
		AddressID:    strings.TrimSpace(in.AddressID),
		Shipping:     in.Shipping,
		VoucherCodes: codes,
		Notes:        in.Notes,
	}
	var res backend.OrderResult
	submit := func(ctx context.Context) error {
		var err error
		res, err = s.Backend.SubmitOrder(ctx, sess, req)
		return err
	}
	var err error
	if s.OrderLock != nil {
		err = s.OrderLock.WithLock(ctx, cache.KeyShopper(sess.UserID), orderLockTTL, submit)
	} else {
		err = submit(ctx)
	}
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			s.Metrics.OrderSubmitted("in_progress")
			return backend.OrderResult{}, ErrOrderInProgress
		}
		if se, ok := backend.AsServerError(err); ok {
			s.Metrics.OrderSubmitted("rejected")
			zerolog.Ctx(ctx).Info().Int("status", se.Status).Str("code", se.Code).Msg("order_rejected")
		} else {
			s.Metrics.OrderSubmitted("error")
		}
		return backend.OrderResult{}, err
	}
	s.Metrics.OrderSubmitted("created")
	if s.Invalidator != nil && len(codes) > 0 {
		if err := s.Invalidator.Invalidate(ctx, sess.UserID); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("voucher_cache_invalidate_failed")
		}
	}
	return res, nil
}

func (s *Service) recompute(ctx context.Context, sel *Selection, list []voucher.Voucher, subtotal, shippingFee int64) Quote {
	q := sel.Recompute(list, subtotal, shippingFee, s.now())
	result := "ok"
	if len(q.Dropped) > 0 {
		result = "partial"
	}
	s.Metrics.Preview(result, q.DiscountAmount)
	zerolog.Ctx(ctx).Debug().
		Int64("subtotal", q.Subtotal).
		Int64("discount", q.DiscountAmount).
		Int64("ship_discount", q.ShipDiscount).
		Strs("applied", q.Applied).
		Msg("checkout_preview")
	return q
}

func (s *Service) directory(ctx context.Context, sess common.Session) ([]voucher.Voucher, error) {
	if s == nil || s.Backend == nil {
		return nil, errors.New("checkout service not configured")
	}
	list, err := s.Backend.ListVouchers(ctx, sess)
	if err != nil {
		s.Metrics.DirectoryLookup("error")
		return nil, err
	}
	return list, nil
}

func (s *Service) subtotal(ctx context.Context, sess common.Session, a Amounts) (int64, error) {
	if strings.TrimSpace(a.CartID) == "" {
		return max(a.Subtotal, 0), nil
	}
	cart, err := s.Backend.GetCart(ctx, sess, a.CartID)
	if err != nil {
		return 0, err
	}
	return cart.Subtotal(), nil
}

// resolve maps codes to directory vouchers, skipping unknown and repeated
// codes and keeping the given order.
func resolve(list []voucher.Voucher, codes []string) []voucher.Voucher {
	var out []voucher.Voucher
	for _, c := range codes {
		v, ok := voucher.Find(list, c)
		if !ok || voucher.Contains(out, v.Code) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, voucher.ErrVoucherExpired):
		return "expired"
	case errors.Is(err, voucher.ErrNotStarted):
		return "not_started"
	case errors.Is(err, voucher.ErrUsageLimitReached):
		return "usage_limit"
	case errors.Is(err, voucher.ErrPerUserLimitReached):
		return "per_user_limit"
	case errors.Is(err, voucher.ErrMinimumOrderUnmet):
		return "minimum_order"
	case errors.Is(err, voucher.ErrNotStackable):
		return "not_stackable"
	default:
		return "other"
	}
}
