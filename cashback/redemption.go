/*
redemption.go - Allocating a cash-out request against outstanding rewards

PURPOSE:
  Converts ACTIVE reward value into a payout. Validation failures are
  business outcomes, returned as a structured RedemptionResult - never as
  errors - so transports map them to user messages uniformly.

ALLOCATION (greedy, earliest-earned-first):
  Walk the user's ACTIVE rewards in EarnedAt order. Each reward that fits
  entirely within the remaining request is consumed whole and marked
  REDEEMED. The reward that crosses the boundary is SPLIT: the consumed
  portion goes out REDEEMED and the remainder is re-issued as a new
  ACTIVE reward keeping its place in the earning order and its original
  expiry. Available then drops by exactly the requested amount, so
  "available == sum of ACTIVE rewards" holds after every redemption.

FAILURE MODES (no mutation in any of them):
  BELOW_MINIMUM_REDEMPTION - request under the configured floor
  INSUFFICIENT_BALANCE     - request exceeds Available
  INVALID_DESTINATION      - card-number destination fails the Luhn check

CONTRACT:
  A non-positive requested amount is a programming error and panics.
*/
package cashback

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// RESULT - Value-typed business outcome
// =============================================================================

type RedemptionReason string

const (
	ReasonBelowMinimum        RedemptionReason = "BELOW_MINIMUM_REDEMPTION"
	ReasonInsufficientBalance RedemptionReason = "INSUFFICIENT_BALANCE"
	ReasonInvalidDestination  RedemptionReason = "INVALID_DESTINATION"
)

type RedemptionResult struct {
	Success        bool
	RedeemedAmount decimal.Decimal
	NewBalance     decimal.Decimal
	Reason         RedemptionReason // set only on failure

	// Set only on success.
	RedemptionID    RedemptionID
	ConsumedRewards []RewardID
}

func redemptionFailure(reason RedemptionReason, balance decimal.Decimal) RedemptionResult {
	return RedemptionResult{
		Success:        false,
		RedeemedAmount: decimal.Zero,
		NewBalance:     balance,
		Reason:         reason,
	}
}

// =============================================================================
// DESTINATION VALIDATION
// =============================================================================

// validDestination accepts any non-card destination label (e.g. a linked
// account alias). A destination that looks like a card number - all
// digits, PAN-length - must pass the Luhn check.
func validDestination(dest string) bool {
	if len(dest) < 12 || len(dest) > 19 {
		return true
	}
	for i := 0; i < len(dest); i++ {
		if dest[i] < '0' || dest[i] > '9' {
			return true
		}
	}
	return luhnValid(dest)
}

// luhnValid computes the mod-10 checksum over the digit string. Full-length
// PANs overflow int64, so the sum runs over digits, never a parsed integer.
func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// =============================================================================
// REDEMPTION
// =============================================================================

// RedeemCashback satisfies a cash-out request from the user's outstanding
// rewards. All-or-nothing at the balance check: once validation passes the
// allocation always completes, and Available decreases by exactly the
// requested amount.
func (e *Engine) RedeemCashback(ctx context.Context, userID UserID, amount decimal.Decimal, destination string) (RedemptionResult, error) {
	if !amount.IsPositive() {
		panic("cashback: redeem called with non-positive amount")
	}
	amount = RoundMoney(amount)

	mu := e.lockUser(userID)
	defer mu.Unlock()

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return RedemptionResult{}, err
	}

	if amount.LessThan(e.minimumRedemption) {
		return redemptionFailure(ReasonBelowMinimum, user.Available), nil
	}
	if amount.GreaterThan(user.Available) {
		return redemptionFailure(ReasonInsufficientBalance, user.Available), nil
	}
	if !validDestination(destination) {
		return redemptionFailure(ReasonInvalidDestination, user.Available), nil
	}

	active, err := e.ledger.ActiveRewards(ctx, userID)
	if err != nil {
		return RedemptionResult{}, err
	}

	remaining := amount
	var consumed []RewardID
	for i := range active {
		if !remaining.IsPositive() {
			break
		}
		reward := &active[i]

		if reward.Amount.GreaterThan(remaining) {
			// Boundary reward: consume only the remaining request, re-issue
			// the rest so the balance invariant survives.
			if _, err := e.ledger.Split(ctx, reward, remaining); err != nil {
				return RedemptionResult{}, err
			}
			consumed = append(consumed, reward.ID)
			remaining = decimal.Zero
			break
		}

		if err := e.ledger.MarkRedeemed(ctx, reward); err != nil {
			return RedemptionResult{}, err
		}
		consumed = append(consumed, reward.ID)
		remaining = remaining.Sub(reward.Amount)
	}

	user.Available = user.Available.Sub(amount)
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return RedemptionResult{}, err
	}

	redemption := &Redemption{
		ID:          RedemptionID(newID("red")),
		UserID:      userID,
		Amount:      amount,
		Destination: destination,
		RewardIDs:   consumed,
		CreatedAt:   e.now(),
	}
	if err := e.store.CreateRedemption(ctx, redemption); err != nil {
		return RedemptionResult{}, err
	}

	e.log.Info("cashback redeemed",
		zap.String("user_id", string(userID)),
		zap.String("redemption_id", string(redemption.ID)),
		zap.String("amount", amount.StringFixed(2)),
		zap.Int("rewards_consumed", len(consumed)))

	return RedemptionResult{
		Success:         true,
		RedeemedAmount:  amount,
		NewBalance:      user.Available,
		RedemptionID:    redemption.ID,
		ConsumedRewards: consumed,
	}, nil
}
