/*
engine.go - The operation surface consumed by transport layers

PURPOSE:
  Bundles catalog, calculator, ledger, and store behind the operations a
  transport layer drives: enrollment, tier upgrades, the
  purchase lifecycle, accrual, redemption, expiration, and balance reads.
  All business rules live here and below; transports only translate.

CONCURRENCY:
  Every mutation for a given user runs under that user's lock (striped
  mutexes keyed by user ID hash). Accrual, redemption, the expiration
  sweep, refund clawback, and tier upgrades therefore serialize per user
  while cross-user operations proceed in parallel. No operation is
  long-running; nothing suspends.

ERROR POLICY:
  Business-rule failures on redemption are returned as RedemptionResult
  values, never as errors. Errors mean missing records, illegal lifecycle
  moves, or store failures. Contract violations (non-positive redemption
  amount) panic.

SEE ALSO:
  - redemption.go: RedeemCashback
  - sweeper.go: ExpireOldRewards
*/
package cashback

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultMinimumRedemption is the floor below which cash-out requests fail.
var DefaultMinimumRedemption = MustMoney("10.00")

// userLockStripes trades memory for contention; mutations for users whose
// IDs hash to the same stripe serialize unnecessarily but correctly.
const userLockStripes = 64

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store   Store
	catalog *Catalog
	calc    *Calculator
	ledger  *Ledger

	minimumRedemption decimal.Decimal
	log               *zap.Logger
	now               func() time.Time

	locks [userLockStripes]sync.Mutex
}

// Options configures an Engine. Zero values fall back to defaults:
// DefaultCatalog, the 90-day validity window, the 10.00 redemption floor,
// and a no-op logger.
type Options struct {
	Catalog           *Catalog
	RewardValidity    time.Duration
	MinimumRedemption decimal.Decimal
	Logger            *zap.Logger
}

func NewEngine(store Store, opts Options) *Engine {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	minimum := opts.MinimumRedemption
	if !minimum.IsPositive() {
		minimum = DefaultMinimumRedemption
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Engine{
		store:             store,
		catalog:           catalog,
		calc:              NewCalculator(catalog),
		ledger:            NewLedger(store, opts.RewardValidity),
		minimumRedemption: minimum,
		log:               log,
		now:               time.Now,
	}
}

// Catalog exposes the read-only rule catalog.
func (e *Engine) Catalog() *Catalog { return e.catalog }

func (e *Engine) lockUser(id UserID) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	mu := &e.locks[h.Sum32()%userLockStripes]
	mu.Lock()
	return mu
}

// =============================================================================
// USERS
// =============================================================================

// EnrollUser creates a program member with zero balances.
func (e *Engine) EnrollUser(ctx context.Context, id UserID, name, email string, tier Tier) (*User, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}
	user := &User{
		ID:          id,
		Name:        name,
		Email:       email,
		Tier:        tier,
		Available:   decimal.Zero,
		TotalEarned: decimal.Zero,
		TotalSpent:  decimal.Zero,
		EnrolledAt:  e.now(),
	}
	if err := e.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	e.log.Info("user enrolled",
		zap.String("user_id", string(id)),
		zap.String("tier", string(tier)))
	return user, nil
}

func (e *Engine) GetUser(ctx context.Context, id UserID) (*User, error) {
	return e.store.GetUser(ctx, id)
}

// UpgradeTier moves a user to a strictly higher tier. Downgrades and
// no-op "upgrades" fail with ErrTierDowngrade.
func (e *Engine) UpgradeTier(ctx context.Context, id UserID, newTier Tier) (*User, error) {
	if !newTier.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, newTier)
	}

	mu := e.lockUser(id)
	defer mu.Unlock()

	user, err := e.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !newTier.Above(user.Tier) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrTierDowngrade, user.Tier, newTier)
	}

	user.Tier = newTier
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	e.log.Info("tier upgraded",
		zap.String("user_id", string(id)),
		zap.String("tier", string(newTier)))
	return user, nil
}

// =============================================================================
// TRANSACTIONS - Purchase lifecycle driving accrual and clawback
// =============================================================================

// RecordTransaction registers a PENDING purchase.
func (e *Engine) RecordTransaction(ctx context.Context, userID UserID, amount decimal.Decimal, category Category) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	now := e.now()
	tx := &Transaction{
		ID:        TransactionID(newID("txn")),
		UserID:    userID,
		Amount:    RoundMoney(amount),
		Category:  category,
		Status:    TransactionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// ConfirmTransaction settles a pending purchase: it moves to CONFIRMED,
// counts toward TotalSpent, and triggers accrual. The returned reward is
// nil when the purchase did not qualify for cashback.
func (e *Engine) ConfirmTransaction(ctx context.Context, txID TransactionID) (*Transaction, *Reward, error) {
	tx, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, nil, err
	}

	mu := e.lockUser(tx.UserID)
	defer mu.Unlock()

	// Reload under the lock.
	tx, err = e.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, nil, err
	}
	if err := e.transitionTransaction(tx, TransactionConfirmed); err != nil {
		return nil, nil, err
	}
	if err := e.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, nil, err
	}

	user, err := e.store.GetUser(ctx, tx.UserID)
	if err != nil {
		return nil, nil, err
	}
	user.TotalSpent = user.TotalSpent.Add(tx.Amount)
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return nil, nil, err
	}

	reward, err := e.accrueLocked(ctx, user, tx.ID, tx.Amount, tx.Category)
	if err != nil {
		if errors.Is(err, ErrNoCashbackEarned) {
			return tx, nil, nil
		}
		return nil, nil, err
	}
	return tx, reward, nil
}

// CancelTransaction abandons a pending purchase. No balances move.
func (e *Engine) CancelTransaction(ctx context.Context, txID TransactionID) (*Transaction, error) {
	tx, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}

	mu := e.lockUser(tx.UserID)
	defer mu.Unlock()

	tx, err = e.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if err := e.transitionTransaction(tx, TransactionCancelled); err != nil {
		return nil, err
	}
	if err := e.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// RefundTransaction reverses a confirmed purchase. The amount leaves
// TotalSpent, and every reward in the purchase's lineage that is still
// ACTIVE - the accrued reward or a split remainder of it - is clawed
// back to CANCELLED. Rewards already REDEEMED or EXPIRED stay as they
// are: the payout happened or the value is already gone.
func (e *Engine) RefundTransaction(ctx context.Context, txID TransactionID) (*Transaction, error) {
	tx, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}

	mu := e.lockUser(tx.UserID)
	defer mu.Unlock()

	tx, err = e.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if err := e.transitionTransaction(tx, TransactionRefunded); err != nil {
		return nil, err
	}
	if err := e.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	user, err := e.store.GetUser(ctx, tx.UserID)
	if err != nil {
		return nil, err
	}
	user.TotalSpent = user.TotalSpent.Sub(tx.Amount)
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	// Claw back every ACTIVE reward in the purchase's lineage. Split
	// remainders keep the originating transaction's ID, so value that was
	// neither paid out nor expired is cancelled along with the original.
	active, err := e.store.ListRewardsByUser(ctx, user.ID, RewardActive)
	if err != nil {
		return nil, err
	}
	for i := range active {
		reward := &active[i]
		if reward.TransactionID != txID {
			continue
		}
		if err := e.ledger.Cancel(ctx, user, reward); err != nil {
			return nil, err
		}
		e.log.Info("reward clawed back on refund",
			zap.String("user_id", string(user.ID)),
			zap.String("reward_id", string(reward.ID)),
			zap.String("amount", reward.Amount.StringFixed(2)))
	}
	return tx, nil
}

func (e *Engine) transitionTransaction(tx *Transaction, to TransactionStatus) error {
	if !tx.Status.CanTransitionTo(to) {
		return &TransitionError{
			Kind: "transaction",
			ID:   string(tx.ID),
			From: string(tx.Status),
			To:   string(to),
		}
	}
	tx.Status = to
	tx.UpdatedAt = e.now()
	return nil
}

// =============================================================================
// ACCRUAL
// =============================================================================

// CalculateCashback quotes the cashback a purchase would earn for the
// user's current tier. Query only, no mutation.
func (e *Engine) CalculateCashback(ctx context.Context, userID UserID, amount decimal.Decimal, category Category) (decimal.Decimal, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return e.calc.Calculate(user.Tier, amount, category)
}

// AccrueReward computes and books cashback for a confirmed purchase.
// Intended for callers whose transactions live outside this engine;
// ConfirmTransaction drives the same path for engine-recorded purchases.
// Returns ErrNoCashbackEarned when the purchase does not qualify.
func (e *Engine) AccrueReward(ctx context.Context, userID UserID, txID TransactionID, amount decimal.Decimal, category Category) (*Reward, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	mu := e.lockUser(userID)
	defer mu.Unlock()

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.accrueLocked(ctx, user, txID, amount, category)
}

// accrueLocked books cashback for a purchase; the caller holds the user's lock.
func (e *Engine) accrueLocked(ctx context.Context, user *User, txID TransactionID, amount decimal.Decimal, category Category) (*Reward, error) {
	quote, err := e.calc.QuoteFor(user.Tier, amount, category)
	if err != nil {
		return nil, err
	}
	if !quote.Qualifies {
		return nil, ErrNoCashbackEarned
	}

	reward, err := e.ledger.CreateReward(ctx, user, txID, quote.Cashback, category, quote.Multiplier, e.now())
	if err != nil {
		return nil, err
	}
	e.log.Info("reward accrued",
		zap.String("user_id", string(user.ID)),
		zap.String("reward_id", string(reward.ID)),
		zap.String("category", string(category)),
		zap.String("amount", reward.Amount.StringFixed(2)))
	return reward, nil
}

// =============================================================================
// READS
// =============================================================================

// GetBalance returns the incrementally maintained balance view.
func (e *Engine) GetBalance(ctx context.Context, userID UserID) (BalanceView, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return BalanceView{}, err
	}
	return balanceOf(user), nil
}

// ListRewards returns the user's rewards, earliest earned first,
// optionally filtered by status.
func (e *Engine) ListRewards(ctx context.Context, userID UserID, statuses ...RewardStatus) ([]Reward, error) {
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return e.store.ListRewardsByUser(ctx, userID, statuses...)
}

// ListTransactions returns the user's purchases, oldest first.
func (e *Engine) ListTransactions(ctx context.Context, userID UserID) ([]Transaction, error) {
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return e.store.ListTransactionsByUser(ctx, userID)
}

// ListRedemptions returns the user's payout history, oldest first.
func (e *Engine) ListRedemptions(ctx context.Context, userID UserID) ([]Redemption, error) {
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return e.store.ListRedemptionsByUser(ctx, userID)
}
