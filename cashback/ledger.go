/*
ledger.go - Reward creation and lifecycle transitions

PURPOSE:
  The Ledger is the single source of truth for how much cashback exists
  and in what state. It creates one Reward per qualifying confirmed
  transaction and owns every lifecycle transition, keeping the user's
  running balances in step with each move:

    create          -> Available += amount, TotalEarned += amount
    redeem (whole)  -> status only; the allocator decrements Available
                       once by the requested payout amount
    split           -> consumed part REDEEMED, remainder re-issued ACTIVE
    expire / cancel -> Available -= amount

INVARIANTS:
  - ACTIVE -> REDEEMED | EXPIRED | CANCELLED only; all terminal
  - at most one accrued reward per transaction
  - Available always equals the sum of ACTIVE reward amounts
  - TotalEarned counts every reward ever created; a split does not change
    it (the original's amount shrinks by exactly the remainder's amount)

CALLERS:
  The engine serializes all calls for a given user, so the ledger performs
  its two-step writes (reward + user) without store-level transactions.

SEE ALSO:
  - redemption.go: Allocation strategy over ACTIVE rewards
  - sweeper.go: Batch expiration
*/
package cashback

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRewardValidity is the window from earning to expiry.
const DefaultRewardValidity = 90 * 24 * time.Hour

// =============================================================================
// ID GENERATION
// =============================================================================

var idSeq atomic.Uint64

// newID builds a unique identifier. Nanosecond timestamp plus a process-wide
// sequence keeps IDs unique under concurrent accrual.
func newID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), idSeq.Add(1))
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store    Store
	validity time.Duration
}

// NewLedger creates a ledger. A non-positive validity falls back to the
// 90-day default.
func NewLedger(store Store, validity time.Duration) *Ledger {
	if validity <= 0 {
		validity = DefaultRewardValidity
	}
	return &Ledger{store: store, validity: validity}
}

// Validity returns the configured earning-to-expiry window.
func (l *Ledger) Validity() time.Duration { return l.validity }

// CreateReward inserts a new ACTIVE reward for a qualifying purchase and
// increments the user's TotalEarned and Available. Fails with
// ErrNoCashbackEarned on a non-positive amount (callers should not reach
// the ledger for non-qualifying purchases) and ErrRewardAlreadyAccrued if
// the transaction already produced a reward.
func (l *Ledger) CreateReward(
	ctx context.Context,
	user *User,
	txID TransactionID,
	amount decimal.Decimal,
	category Category,
	multiplier decimal.Decimal,
	earnedAt time.Time,
) (*Reward, error) {
	if !amount.IsPositive() {
		return nil, ErrNoCashbackEarned
	}

	existing, err := l.store.GetAccruedReward(ctx, txID)
	if err != nil && !errors.Is(err, ErrRewardNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrRewardAlreadyAccrued, txID)
	}

	reward := &Reward{
		ID:                RewardID(newID("rwd")),
		UserID:            user.ID,
		TransactionID:     txID,
		Amount:            RoundMoney(amount),
		Category:          category,
		AppliedMultiplier: multiplier,
		Status:            RewardActive,
		EarnedAt:          earnedAt,
		ExpiresAt:         earnedAt.Add(l.validity),
	}

	if err := l.store.CreateReward(ctx, reward); err != nil {
		return nil, err
	}

	user.TotalEarned = user.TotalEarned.Add(reward.Amount)
	user.Available = user.Available.Add(reward.Amount)
	if err := l.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	return reward, nil
}

// ActiveRewards returns the user's ACTIVE rewards, earliest earned first.
func (l *Ledger) ActiveRewards(ctx context.Context, userID UserID) ([]Reward, error) {
	return l.store.ListRewardsByUser(ctx, userID, RewardActive)
}

// MarkRedeemed transitions a whole reward to REDEEMED. The balance
// decrement belongs to the redemption path, which subtracts the requested
// payout amount once.
func (l *Ledger) MarkRedeemed(ctx context.Context, reward *Reward) error {
	if err := l.transition(ctx, reward, RewardRedeemed); err != nil {
		return err
	}
	return l.store.UpdateReward(ctx, reward)
}

// Split consumes part of a reward for a redemption. The original shrinks
// to the consumed portion and is marked REDEEMED; the remainder is
// re-issued as a new ACTIVE reward that keeps the original EarnedAt (so
// its place in the earliest-earned-first order is preserved), ExpiresAt,
// category, multiplier, and transaction lineage.
func (l *Ledger) Split(ctx context.Context, reward *Reward, consumed decimal.Decimal) (*Reward, error) {
	if !consumed.IsPositive() || !consumed.LessThan(reward.Amount) {
		return nil, fmt.Errorf("split of reward %s: consumed %s out of range (0, %s)",
			reward.ID, consumed, reward.Amount)
	}

	remainderAmount := reward.Amount.Sub(consumed)

	if err := l.transition(ctx, reward, RewardRedeemed); err != nil {
		return nil, err
	}
	reward.Amount = consumed
	if err := l.store.UpdateReward(ctx, reward); err != nil {
		return nil, err
	}

	remainder := &Reward{
		ID:                RewardID(newID("rwd")),
		UserID:            reward.UserID,
		TransactionID:     reward.TransactionID,
		ParentRewardID:    reward.ID,
		Amount:            remainderAmount,
		Category:          reward.Category,
		AppliedMultiplier: reward.AppliedMultiplier,
		Status:            RewardActive,
		EarnedAt:          reward.EarnedAt,
		ExpiresAt:         reward.ExpiresAt,
	}
	if err := l.store.CreateReward(ctx, remainder); err != nil {
		return nil, err
	}
	return remainder, nil
}

// Expire transitions an overdue reward to EXPIRED and removes its amount
// from the user's Available balance.
func (l *Ledger) Expire(ctx context.Context, user *User, reward *Reward) error {
	if err := l.transition(ctx, reward, RewardExpired); err != nil {
		return err
	}
	if err := l.store.UpdateReward(ctx, reward); err != nil {
		return err
	}
	user.Available = user.Available.Sub(reward.Amount)
	return l.store.UpdateUser(ctx, user)
}

// Cancel reverses a reward administratively (refund clawback) and removes
// its amount from the user's Available balance.
func (l *Ledger) Cancel(ctx context.Context, user *User, reward *Reward) error {
	if err := l.transition(ctx, reward, RewardCancelled); err != nil {
		return err
	}
	if err := l.store.UpdateReward(ctx, reward); err != nil {
		return err
	}
	user.Available = user.Available.Sub(reward.Amount)
	return l.store.UpdateUser(ctx, user)
}

func (l *Ledger) transition(_ context.Context, reward *Reward, to RewardStatus) error {
	if !reward.Status.CanTransitionTo(to) {
		return &TransitionError{
			Kind: "reward",
			ID:   string(reward.ID),
			From: string(reward.Status),
			To:   string(to),
		}
	}
	reward.Status = to
	return nil
}
