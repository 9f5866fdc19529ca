/*
errors.go - Centralized error types for the cashback engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Business validation failures on redemption are NOT errors - they are
  returned as RedemptionResult values (see redemption.go) so the transport
  layer can map them to user-visible messages uniformly.

ERROR CATEGORIES:
  1. Not-found errors - unknown user / rule / transaction / reward
  2. Lifecycle errors - illegal status transitions, duplicate accrual
  3. Input errors - invalid tier, non-positive amounts

USAGE:
  if errors.Is(err, cashback.ErrRuleNotFound) {
      // unknown category: a configuration defect, log it
  }

SEE ALSO:
  - redemption.go: RedemptionResult (value-typed business failures)
*/
package cashback

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRuleNotFound is returned when no cashback rule exists for a
	// category. This is a configuration defect, fatal to the accrual attempt.
	ErrRuleNotFound = errors.New("cashback rule not found")

	// ErrUserNotFound is returned when a referenced user doesn't exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrTransactionNotFound is returned when a referenced transaction doesn't exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrRewardNotFound is returned when a referenced reward doesn't exist.
	ErrRewardNotFound = errors.New("reward not found")

	// ErrNoCashbackEarned is returned by accrual when the purchase did not
	// qualify (inactive rule or amount below the minimum). Not a defect -
	// a valid business outcome.
	ErrNoCashbackEarned = errors.New("no cashback earned")

	// ErrRewardAlreadyAccrued is returned when a reward already exists for
	// the originating transaction. Rewards are created exactly once.
	ErrRewardAlreadyAccrued = errors.New("reward already accrued for transaction")

	// ErrInvalidRewardTransition is returned on an illegal reward status move.
	ErrInvalidRewardTransition = errors.New("invalid reward status transition")

	// ErrInvalidTransactionTransition is returned on an illegal transaction status move.
	ErrInvalidTransactionTransition = errors.New("invalid transaction status transition")

	// ErrTierDowngrade is returned when an upgrade targets an equal or lower tier.
	ErrTierDowngrade = errors.New("tier can only be upgraded")

	// ErrInvalidTier is returned for a tier outside the known ordering.
	ErrInvalidTier = errors.New("invalid tier")

	// ErrNonPositiveAmount is returned when a transaction amount is zero or negative.
	ErrNonPositiveAmount = errors.New("amount must be positive")

	// ErrDuplicateID is returned when creating a record whose ID already exists.
	ErrDuplicateID = errors.New("duplicate id")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RuleNotFoundError identifies the unknown category.
type RuleNotFoundError struct {
	Category Category
}

func (e *RuleNotFoundError) Error() string {
	return fmt.Sprintf("cashback rule not found for category %q", e.Category)
}

func (e *RuleNotFoundError) Unwrap() error { return ErrRuleNotFound }

// TransitionError describes an illegal lifecycle move.
type TransitionError struct {
	Kind string // "reward" or "transaction"
	ID   string
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: illegal transition %s -> %s", e.Kind, e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	if e.Kind == "transaction" {
		return ErrInvalidTransactionTransition
	}
	return ErrInvalidRewardTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrRuleNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrRewardNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNoCashbackEarned) ||
		errors.Is(err, ErrRewardAlreadyAccrued) ||
		errors.Is(err, ErrInvalidRewardTransition) ||
		errors.Is(err, ErrInvalidTransactionTransition) ||
		errors.Is(err, ErrTierDowngrade) ||
		errors.Is(err, ErrInvalidTier) ||
		errors.Is(err, ErrNonPositiveAmount) ||
		errors.Is(err, ErrDuplicateID)
}
