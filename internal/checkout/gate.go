package checkout

import "coffee-checkout/internal/model"

// Operation names a long-running operation category. At most one call per
// category may be outstanding for a wizard.
type Operation string

const (
	OpShippingCalc Operation = "shipping-calc"
	OpCouponApply  Operation = "coupon-apply"
	OpFinalize     Operation = "finalize"
)

// gates tracks which operation categories are in flight.
// Callers hold the orchestrator mutex.
type gates map[Operation]bool

func (g gates) acquire(op Operation) error {
	if g[op] {
		return model.NewInFlightError(string(op))
	}
	g[op] = true
	return nil
}

func (g gates) release(op Operation) {
	delete(g, op)
}

func (g gates) busy(op Operation) bool {
	return g[op]
}

// idle fails with an in-flight error naming the first of ops that is busy.
func (g gates) idle(ops ...Operation) error {
	for _, op := range ops {
		if g[op] {
			return model.NewInFlightError(string(op))
		}
	}
	return nil
}

func (g gates) list() []string {
	var out []string
	for _, op := range []Operation{OpShippingCalc, OpCouponApply, OpFinalize} {
		if g[op] {
			out = append(out, string(op))
		}
	}
	return out
}
