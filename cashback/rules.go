/*
rules.go - Per-category cashback rule catalog

PURPOSE:
  Maps a spending category to its cashback configuration: base percentage,
  per-tier multiplier table, minimum qualifying amount, and maximum cashback
  cap. The catalog is read-only at runtime; all validation happens at load
  time so the accrual path never hits a half-configured rule.

VALIDATION AT LOAD:
  - basePercentage, minimum, and cap are non-negative
  - the multiplier table is complete over every tier (no silent
    fallthrough when a new tier is added)
  - multipliers are monotonically non-decreasing with tier, so a higher
    tier never earns less than a lower one for the same purchase

EXAMPLE:
  catalog, err := cashback.NewCatalog(cashback.CashbackRule{
      Category:                  cashback.CategoryGroceries,
      BasePercentage:            cashback.MustMoney("2.0"),
      TierMultipliers:           map[cashback.Tier]decimal.Decimal{...},
      MinTransactionAmount:      cashback.MustMoney("10.00"),
      MaxCashbackPerTransaction: cashback.MustMoney("50.00"),
      Active:                    true,
  })

SEE ALSO:
  - accrual.go: Consumes rules to compute cashback
*/
package cashback

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CASHBACK RULE - One per spending category
// =============================================================================

type CashbackRule struct {
	Category Category

	// BasePercentage is a percent figure, e.g. 2.0 means 2%.
	BasePercentage decimal.Decimal

	// TierMultipliers must cover every tier and be non-decreasing with rank.
	TierMultipliers map[Tier]decimal.Decimal

	// Purchases below this amount earn nothing.
	MinTransactionAmount decimal.Decimal

	// Cashback for a single purchase never exceeds this cap.
	MaxCashbackPerTransaction decimal.Decimal

	// Inactive rules earn nothing but are not an error.
	Active bool
}

// Multiplier returns the multiplier for a tier. The catalog guarantees
// completeness, so a miss can only happen on an unvalidated rule literal.
func (r CashbackRule) Multiplier(tier Tier) (decimal.Decimal, bool) {
	m, ok := r.TierMultipliers[tier]
	return m, ok
}

func validateRule(r CashbackRule) error {
	if r.Category == "" {
		return fmt.Errorf("rule without category")
	}
	if r.BasePercentage.IsNegative() {
		return fmt.Errorf("rule %s: negative base percentage", r.Category)
	}
	if r.MinTransactionAmount.IsNegative() {
		return fmt.Errorf("rule %s: negative minimum transaction amount", r.Category)
	}
	if r.MaxCashbackPerTransaction.IsNegative() {
		return fmt.Errorf("rule %s: negative cashback cap", r.Category)
	}

	prev := decimal.Zero
	for i, tier := range Tiers {
		m, ok := r.TierMultipliers[tier]
		if !ok {
			return fmt.Errorf("rule %s: missing multiplier for tier %s", r.Category, tier)
		}
		if m.IsNegative() {
			return fmt.Errorf("rule %s: negative multiplier for tier %s", r.Category, tier)
		}
		if i > 0 && m.LessThan(prev) {
			return fmt.Errorf("rule %s: multiplier for tier %s decreases", r.Category, tier)
		}
		prev = m
	}
	return nil
}

// =============================================================================
// CATALOG - Read-only rule lookup
// =============================================================================

type Catalog struct {
	rules map[Category]CashbackRule
}

// NewCatalog validates every rule and builds the lookup table.
// Duplicate categories are rejected.
func NewCatalog(rules ...CashbackRule) (*Catalog, error) {
	byCategory := make(map[Category]CashbackRule, len(rules))
	for _, r := range rules {
		if err := validateRule(r); err != nil {
			return nil, err
		}
		if _, exists := byCategory[r.Category]; exists {
			return nil, fmt.Errorf("duplicate rule for category %s", r.Category)
		}
		byCategory[r.Category] = r
	}
	return &Catalog{rules: byCategory}, nil
}

// Lookup returns the rule for a category.
func (c *Catalog) Lookup(category Category) (CashbackRule, error) {
	r, ok := c.rules[category]
	if !ok {
		return CashbackRule{}, &RuleNotFoundError{Category: category}
	}
	return r, nil
}

// Categories returns all configured categories, sorted.
func (c *Catalog) Categories() []Category {
	out := make([]Category, 0, len(c.rules))
	for cat := range c.rules {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// =============================================================================
// DEFAULT CATALOG - Prebuilt program configuration
// =============================================================================

func standardMultipliers() map[Tier]decimal.Decimal {
	return map[Tier]decimal.Decimal{
		TierBronze:   MustMoney("1.0"),
		TierSilver:   MustMoney("1.5"),
		TierGold:     MustMoney("2.0"),
		TierPlatinum: MustMoney("3.0"),
	}
}

// DefaultCatalog returns the standard program rules. Panics only on a
// programming error in the literals below, never on user input.
func DefaultCatalog() *Catalog {
	catalog, err := NewCatalog(
		CashbackRule{
			Category:                  CategoryGroceries,
			BasePercentage:            MustMoney("2.0"),
			TierMultipliers:           standardMultipliers(),
			MinTransactionAmount:      MustMoney("10.00"),
			MaxCashbackPerTransaction: MustMoney("50.00"),
			Active:                    true,
		},
		CashbackRule{
			Category:                  CategoryTravel,
			BasePercentage:            MustMoney("3.0"),
			TierMultipliers:           standardMultipliers(),
			MinTransactionAmount:      MustMoney("50.00"),
			MaxCashbackPerTransaction: MustMoney("200.00"),
			Active:                    true,
		},
		CashbackRule{
			Category:                  CategoryDining,
			BasePercentage:            MustMoney("2.5"),
			TierMultipliers:           standardMultipliers(),
			MinTransactionAmount:      MustMoney("5.00"),
			MaxCashbackPerTransaction: MustMoney("40.00"),
			Active:                    true,
		},
		CashbackRule{
			Category:                  CategoryFuel,
			BasePercentage:            MustMoney("1.5"),
			TierMultipliers:           standardMultipliers(),
			MinTransactionAmount:      MustMoney("15.00"),
			MaxCashbackPerTransaction: MustMoney("25.00"),
			Active:                    true,
		},
		CashbackRule{
			Category:                  CategoryElectronics,
			BasePercentage:            MustMoney("1.0"),
			TierMultipliers:           standardMultipliers(),
			MinTransactionAmount:      MustMoney("25.00"),
			MaxCashbackPerTransaction: MustMoney("100.00"),
			Active:                    true,
		},
		CashbackRule{
			// Seasonal promotion, currently switched off. Purchases in this
			// category earn nothing but do not error.
			Category:                  CategoryEntertainment,
			BasePercentage:            MustMoney("5.0"),
			TierMultipliers:           standardMultipliers(),
			MinTransactionAmount:      MustMoney("10.00"),
			MaxCashbackPerTransaction: MustMoney("30.00"),
			Active:                    false,
		},
	)
	if err != nil {
		panic(fmt.Sprintf("default catalog invalid: %v", err))
	}
	return catalog
}
