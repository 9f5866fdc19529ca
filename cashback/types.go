/*
Package cashback implements the cashback accrual, reward lifecycle, and
redemption engine.

PURPOSE:
  This package contains the domain types and algorithms for a tiered,
  category-weighted cashback program: computing cashback for a purchase,
  tracking each unit of earned cashback as an independent reward with its
  own expiration, and allocating redemption requests against a user's
  outstanding rewards while keeping aggregate balances consistent.

KEY CONCEPTS IN THIS FILE (types.go):
  - Tier: Ordered user classification driving the cashback multiplier
  - User: Program member with tier and running balances
  - Transaction: A purchase moving PENDING -> CONFIRMED | CANCELLED | REFUNDED
  - Reward: One unit of earned cashback, with its own lifecycle and expiry
  - Redemption: A payout that consumed one or more rewards

DESIGN PRINCIPLES:
  1. Precision: All money is decimal.Decimal, never float64
  2. Type Safety: Strong typing for IDs prevents mixing user/reward IDs
  3. One-way lifecycles: Reward and Transaction statuses only move forward
  4. Balances are derived: available == sum of ACTIVE reward amounts, always

SEE ALSO:
  - rules.go: Per-category cashback rule catalog
  - accrual.go: Pure cashback calculation
  - ledger.go: Reward creation and lifecycle transitions
  - engine.go: The operation surface consumed by transport layers
*/
package cashback

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Fixed-point decimal helpers
// =============================================================================

// RoundMoney rounds to 2 decimal places, half up. All amounts this engine
// produces are non-negative, so half-away-from-zero and half-up coincide.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// MustMoney parses a decimal string, returning zero on malformed input.
// Intended for literals in configuration and tests.
func MustMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type TransactionID string
type RewardID string
type RedemptionID string

// =============================================================================
// TIER - Ordered user classification
// =============================================================================

type Tier string

const (
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
)

// Tiers lists all tiers in ascending order.
var Tiers = []Tier{TierBronze, TierSilver, TierGold, TierPlatinum}

var tierRank = map[Tier]int{
	TierBronze:   0,
	TierSilver:   1,
	TierGold:     2,
	TierPlatinum: 3,
}

// Rank returns the tier's position in the ordering, -1 for unknown tiers.
func (t Tier) Rank() int {
	r, ok := tierRank[t]
	if !ok {
		return -1
	}
	return r
}

func (t Tier) Valid() bool { return t.Rank() >= 0 }

// Above reports whether t outranks other.
func (t Tier) Above(other Tier) bool { return t.Rank() > other.Rank() }

// =============================================================================
// CATEGORY - Spending category
// =============================================================================

type Category string

const (
	CategoryGroceries     Category = "GROCERIES"
	CategoryTravel        Category = "TRAVEL"
	CategoryDining        Category = "DINING"
	CategoryFuel          Category = "FUEL"
	CategoryElectronics   Category = "ELECTRONICS"
	CategoryEntertainment Category = "ENTERTAINMENT"
)

// =============================================================================
// USER - Program member with tier and running balances
// =============================================================================

// User balances are mutated only by the Ledger and the Redemption path,
// never directly by callers.
type User struct {
	ID    UserID
	Name  string
	Email string
	Tier  Tier

	// Running balances, incrementally maintained.
	//   Available   == sum of ACTIVE reward amounts
	//   TotalEarned == sum of all reward amounts ever created
	//   TotalSpent  == sum of CONFIRMED transaction amounts
	Available   decimal.Decimal
	TotalEarned decimal.Decimal
	TotalSpent  decimal.Decimal

	EnrolledAt time.Time
}

// =============================================================================
// TRANSACTION - A purchase with a forward-only status machine
// =============================================================================

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionConfirmed TransactionStatus = "CONFIRMED"
	TransactionCancelled TransactionStatus = "CANCELLED"
	TransactionRefunded  TransactionStatus = "REFUNDED"
)

type Transaction struct {
	ID       TransactionID
	UserID   UserID
	Amount   decimal.Decimal // always > 0
	Category Category
	Status   TransactionStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// transactionTransitions defines the forward-only status machine:
// PENDING -> CONFIRMED | CANCELLED, CONFIRMED -> REFUNDED.
var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionPending:   {TransactionConfirmed, TransactionCancelled},
	TransactionConfirmed: {TransactionRefunded},
}

// CanTransitionTo reports whether the status move is legal.
func (s TransactionStatus) CanTransitionTo(to TransactionStatus) bool {
	for _, next := range transactionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// =============================================================================
// REWARD - One unit of earned cashback
// =============================================================================

type RewardStatus string

const (
	RewardActive    RewardStatus = "ACTIVE"
	RewardRedeemed  RewardStatus = "REDEEMED"
	RewardExpired   RewardStatus = "EXPIRED"
	RewardCancelled RewardStatus = "CANCELLED"
)

// Reward is created exactly once per qualifying confirmed transaction and
// never re-created. Its status machine is one-directional:
// ACTIVE -> REDEEMED | EXPIRED | CANCELLED, all terminal.
type Reward struct {
	ID            RewardID
	UserID        UserID
	TransactionID TransactionID

	// ParentRewardID is set only on split remainders: when a redemption
	// crosses a reward boundary, the unconsumed portion is re-issued as a
	// new ACTIVE reward pointing at the reward it was split from.
	ParentRewardID RewardID

	Amount            decimal.Decimal // cashback currency units, 2dp
	Category          Category
	AppliedMultiplier decimal.Decimal

	Status    RewardStatus
	EarnedAt  time.Time
	ExpiresAt time.Time
}

// CanTransitionTo reports whether the status move is legal.
// Only ACTIVE has outgoing edges; no status re-enters ACTIVE.
func (s RewardStatus) CanTransitionTo(to RewardStatus) bool {
	if s != RewardActive {
		return false
	}
	switch to {
	case RewardRedeemed, RewardExpired, RewardCancelled:
		return true
	}
	return false
}

// Expired reports whether the reward is overdue at the given instant.
func (r Reward) Expired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// =============================================================================
// REDEMPTION - A payout record
// =============================================================================

type Redemption struct {
	ID          RedemptionID
	UserID      UserID
	Amount      decimal.Decimal
	Destination string
	RewardIDs   []RewardID // rewards consumed (fully or via split) by this payout
	CreatedAt   time.Time
}
