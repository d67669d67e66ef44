package cache

import "github.com/noah-isme/toko-storefront/internal/common"

// Namespace prefixes every Redis key the storefront writes.
const Namespace = "storefront"

// Key areas.
const (
	AreaVouchers    = "vouchers"
	AreaIdempotency = "idem"
	AreaRateLimit   = "ratelimit"
	AreaOrderLock   = "order"
)

// Prefix returns the key prefix for an area, ending in a colon.
func Prefix(area string) string {
	return Namespace + ":" + area + ":"
}

// KeyVoucherDirectory returns the cache key of a user's voucher directory.
// User ids are hashed so keys do not leak them.
func KeyVoucherDirectory(userID string) string {
	return Prefix(AreaVouchers) + common.Sha256Hex(userID)
}

// KeyShopper returns the per-shopper suffix used under locks.
func KeyShopper(userID string) string {
	return common.Sha256Hex(userID)
}
