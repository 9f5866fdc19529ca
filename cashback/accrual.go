/*
accrual.go - Pure cashback calculation

PURPOSE:
  Computes cashback owed for one purchase given the payer's tier and the
  rule catalog. Deterministic and side-effect free: no store access, no
  clock, no mutation. The ledger turns a positive quote into a Reward.

ALGORITHM:
  1. Look up the rule for the category (RuleNotFound if absent)
  2. Inactive rule -> 0 (purchase does not qualify; no error)
  3. amount < rule minimum -> 0
  4. raw = amount * basePercentage/100 * tierMultiplier, half-up to 2dp
  5. cashback = min(raw, cap)

GUARANTEES:
  - never negative
  - never exceeds the configured cap
  - a higher tier never earns less than a lower tier for the same purchase

SEE ALSO:
  - rules.go: Rule catalog and load-time validation
  - ledger.go: Reward creation from a positive quote
*/
package cashback

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// =============================================================================
// CALCULATOR
// =============================================================================

type Calculator struct {
	catalog *Catalog
}

func NewCalculator(catalog *Catalog) *Calculator {
	return &Calculator{catalog: catalog}
}

// Quote is the full accrual computation result. Cashback is zero when the
// purchase does not qualify; Qualifies distinguishes "earned nothing" from
// "earned a zero-rounded amount" only in that a non-qualifying purchase
// never creates a Reward.
type Quote struct {
	Cashback   decimal.Decimal
	Multiplier decimal.Decimal
	Rule       CashbackRule
	Qualifies  bool
}

// QuoteFor computes the cashback for one purchase.
func (c *Calculator) QuoteFor(tier Tier, amount decimal.Decimal, category Category) (Quote, error) {
	if !tier.Valid() {
		return Quote{}, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}

	rule, err := c.catalog.Lookup(category)
	if err != nil {
		return Quote{}, err
	}

	if !rule.Active || amount.LessThan(rule.MinTransactionAmount) {
		return Quote{Rule: rule, Multiplier: decimal.Zero, Cashback: decimal.Zero}, nil
	}

	multiplier, ok := rule.Multiplier(tier)
	if !ok {
		// Unreachable for catalog-validated rules.
		return Quote{}, fmt.Errorf("%w: rule %s has no multiplier for %s", ErrInvalidTier, category, tier)
	}

	raw := RoundMoney(amount.Mul(rule.BasePercentage).Div(hundred).Mul(multiplier))
	cashback := decimal.Min(raw, rule.MaxCashbackPerTransaction)

	return Quote{
		Cashback:   cashback,
		Multiplier: multiplier,
		Rule:       rule,
		Qualifies:  cashback.IsPositive(),
	}, nil
}

// Calculate returns only the cashback amount.
func (c *Calculator) Calculate(tier Tier, amount decimal.Decimal, category Category) (decimal.Decimal, error) {
	q, err := c.QuoteFor(tier, amount, category)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Cashback, nil
}
