package adapter

import (
	"coffee-checkout/internal/address"
	"coffee-checkout/internal/cart"
	"coffee-checkout/internal/coupon"
	"coffee-checkout/internal/payment"
	"coffee-checkout/internal/session"
	"coffee-checkout/internal/shipping"
)

// Verify the production clients satisfy the collaborator interfaces.
var (
	_ SessionManager = (*session.Manager)(nil)
	_ ShippingQuoter = (*shipping.Client)(nil)
	_ CouponService  = (*coupon.Client)(nil)
	_ PaymentGateway = (*payment.Gateway)(nil)
	_ AddressLookup  = (*address.LookupClient)(nil)
	_ CartStore      = (*cart.MemoryStore)(nil)
	_ CartStore      = (*cart.RedisStore)(nil)
	_ CartWriter     = (*cart.MemoryStore)(nil)
	_ CartWriter     = (*cart.RedisStore)(nil)
)
