// Package pricing formats prices and computes installment plans.
package pricing

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Plan is one way of splitting a price into equal installments
type Plan struct {
	N        int   `json:"n"`
	PerCents int64 `json:"per_cents"`
}

// Plans returns the installment plans for priceCents in ascending order.
// The single payment plan is always present. A plan with n > 1 installments
// is offered only while each installment is at least minPerCents.
func Plans(priceCents int64, maxInstallments int, minPerCents int64) []Plan {
	plans := []Plan{{N: 1, PerCents: priceCents}}
	for n := 2; n <= maxInstallments; n++ {
		per := float64(priceCents) / float64(n)
		if per < float64(minPerCents) {
			continue
		}
		plans = append(plans, Plan{N: n, PerCents: int64(math.RoundToEven(per))})
	}
	return plans
}

// Best returns the plan with the most installments out of plans as
// returned by Plans. An empty list yields the zero Plan.
func Best(plans []Plan) Plan {
	if len(plans) == 0 {
		return Plan{}
	}
	return plans[len(plans)-1]
}

// Money formats cents as Brazilian reais, e.g. "R$ 12,34"
func Money(cents int64) string {
	return "R$ " + strings.Replace(decimal.New(cents, -2).StringFixed(2), ".", ",", 1)
}

// ParseCents converts a price typed in currency units ("12.50" or "12,50")
// into cents. ok is false for empty or malformed input.
func ParseCents(s string) (cents int64, ok bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.Shift(2).Round(0).IntPart(), true
}

// ToUnits converts cents into a decimal amount in currency units
func ToUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
