package cashback_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cashback-engine/cashback"
	memstore "github.com/warp/cashback-engine/cashback/store"
)

// =============================================================================
// ENROLLMENT AND TIERS
// =============================================================================

func TestEnrollUser(t *testing.T) {
	st := memstore.NewMemory()
	engine := cashback.NewEngine(st, cashback.Options{})
	ctx := context.Background()

	user, err := engine.EnrollUser(ctx, "user-1", "Ada", "ada@example.com", cashback.TierSilver)
	require.NoError(t, err)

	assert.Equal(t, cashback.TierSilver, user.Tier)
	assert.True(t, user.Available.IsZero())
	assert.True(t, user.TotalEarned.IsZero())
	assert.True(t, user.TotalSpent.IsZero())
	assert.False(t, user.EnrolledAt.IsZero())

	_, err = engine.EnrollUser(ctx, "user-1", "Ada", "ada@example.com", cashback.TierSilver)
	assert.ErrorIs(t, err, cashback.ErrDuplicateID)
}

func TestEnrollUser_InvalidTier(t *testing.T) {
	st := memstore.NewMemory()
	engine := cashback.NewEngine(st, cashback.Options{})

	_, err := engine.EnrollUser(context.Background(), "user-1", "Ada", "ada@example.com", "DIAMOND")
	assert.ErrorIs(t, err, cashback.ErrInvalidTier)
}

func TestUpgradeTier(t *testing.T) {
	engine, _, user := newTestEngine(t)
	ctx := context.Background()

	upgraded, err := engine.UpgradeTier(ctx, user.ID, cashback.TierPlatinum)
	require.NoError(t, err)
	assert.Equal(t, cashback.TierPlatinum, upgraded.Tier)
}

func TestUpgradeTier_RejectsDowngradeAndNoop(t *testing.T) {
	engine, _, user := newTestEngine(t) // enrolled GOLD
	ctx := context.Background()

	_, err := engine.UpgradeTier(ctx, user.ID, cashback.TierBronze)
	assert.ErrorIs(t, err, cashback.ErrTierDowngrade)

	_, err = engine.UpgradeTier(ctx, user.ID, cashback.TierGold)
	assert.ErrorIs(t, err, cashback.ErrTierDowngrade)
}

// =============================================================================
// PURCHASE LIFECYCLE
// =============================================================================

func TestConfirmTransaction_AccruesReward(t *testing.T) {
	// GIVEN a GOLD user with a pending 100.00 groceries purchase
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	tx, err := engine.RecordTransaction(ctx, user.ID, money("100.00"), cashback.CategoryGroceries)
	require.NoError(t, err)
	assert.Equal(t, cashback.TransactionPending, tx.Status)

	// WHEN the purchase is confirmed
	confirmed, reward, err := engine.ConfirmTransaction(ctx, tx.ID)
	require.NoError(t, err)

	// THEN the purchase settles and 2.0% x2.0 = 4.00 accrues
	assert.Equal(t, cashback.TransactionConfirmed, confirmed.Status)
	require.NotNil(t, reward)
	assert.True(t, reward.Amount.Equal(money("4.00")), "reward = %v", reward.Amount)
	assert.Equal(t, cashback.RewardActive, reward.Status)
	assert.Equal(t, tx.ID, reward.TransactionID)
	assert.True(t, reward.AppliedMultiplier.Equal(money("2.0")))

	balance, err := engine.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, balance.Available.Equal(money("4.00")))
	assert.True(t, balance.TotalEarned.Equal(money("4.00")))
	assert.True(t, balance.TotalSpent.Equal(money("100.00")))

	assertBalancesAgree(t, st, user.ID)
}

func TestConfirmTransaction_NoCashbackBelowMinimum(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	// Groceries minimum is 10.00; a 5.00 purchase settles without a reward.
	tx, err := engine.RecordTransaction(ctx, user.ID, money("5.00"), cashback.CategoryGroceries)
	require.NoError(t, err)

	confirmed, reward, err := engine.ConfirmTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, cashback.TransactionConfirmed, confirmed.Status)
	assert.Nil(t, reward)

	balance, err := engine.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, balance.Available.IsZero())
	assert.True(t, balance.TotalSpent.Equal(money("5.00")), "settlement still counts as spend")

	assertBalancesAgree(t, st, user.ID)
}

func TestConfirmTransaction_Twice(t *testing.T) {
	engine, _, user := newTestEngine(t)
	ctx := context.Background()

	tx, err := engine.RecordTransaction(ctx, user.ID, money("100.00"), cashback.CategoryGroceries)
	require.NoError(t, err)

	_, _, err = engine.ConfirmTransaction(ctx, tx.ID)
	require.NoError(t, err)

	_, _, err = engine.ConfirmTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, cashback.ErrInvalidTransactionTransition)
}

func TestCancelTransaction(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	tx, err := engine.RecordTransaction(ctx, user.ID, money("100.00"), cashback.CategoryGroceries)
	require.NoError(t, err)

	cancelled, err := engine.CancelTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, cashback.TransactionCancelled, cancelled.Status)

	// No balances move for an abandoned purchase.
	balance, err := engine.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, balance.TotalSpent.IsZero())

	// A cancelled purchase cannot be confirmed afterwards.
	_, _, err = engine.ConfirmTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, cashback.ErrInvalidTransactionTransition)

	assertBalancesAgree(t, st, user.ID)
}

func TestRefundTransaction_ClawsBackActiveReward(t *testing.T) {
	// GIVEN a confirmed purchase whose reward is still ACTIVE
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	tx, err := engine.RecordTransaction(ctx, user.ID, money("100.00"), cashback.CategoryGroceries)
	require.NoError(t, err)
	_, reward, err := engine.ConfirmTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.NotNil(t, reward)

	// WHEN the purchase is refunded
	refunded, err := engine.RefundTransaction(ctx, tx.ID)
	require.NoError(t, err)

	// THEN the spend reverses and the reward is clawed back
	assert.Equal(t, cashback.TransactionRefunded, refunded.Status)

	stored, err := st.GetReward(ctx, reward.ID)
	require.NoError(t, err)
	assert.Equal(t, cashback.RewardCancelled, stored.Status)

	balance, err := engine.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, balance.Available.IsZero())
	assert.True(t, balance.TotalSpent.IsZero())

	assertBalancesAgree(t, st, user.ID)
}

func TestRefundTransaction_RedeemedRewardStays(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	tx, err := engine.RecordTransaction(ctx, user.ID, money("1000.00"), cashback.CategoryGroceries)
	require.NoError(t, err)
	_, reward, err := engine.ConfirmTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.NotNil(t, reward) // 1000 x 2.0% x 2.0 = 40.00

	result, err := engine.RedeemCashback(ctx, user.ID, money("40.00"), "savings-account")
	require.NoError(t, err)
	require.True(t, result.Success)

	// The payout already happened; a refund reverses the spend only.
	_, err = engine.RefundTransaction(ctx, tx.ID)
	require.NoError(t, err)

	stored, err := st.GetReward(ctx, reward.ID)
	require.NoError(t, err)
	assert.Equal(t, cashback.RewardRedeemed, stored.Status)

	balance, err := engine.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, balance.TotalSpent.IsZero())
	assert.True(t, balance.Available.IsZero())

	assertBalancesAgree(t, st, user.ID)
}

func TestRefundTransaction_ClawsBackSplitRemainder(t *testing.T) {
	// GIVEN a confirmed 200.00 TRAVEL purchase (reward 12.00) partially
	// redeemed for 10.00, leaving a 2.00 split remainder ACTIVE
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	tx, err := engine.RecordTransaction(ctx, user.ID, money("200.00"), cashback.CategoryTravel)
	require.NoError(t, err)
	_, reward, err := engine.ConfirmTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.NotNil(t, reward)
	require.True(t, reward.Amount.Equal(money("12.00")))

	result, err := engine.RedeemCashback(ctx, user.ID, money("10.00"), "savings-account")
	require.NoError(t, err)
	require.True(t, result.Success)

	active, err := st.ListRewardsByUser(ctx, user.ID, cashback.RewardActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	remainder := active[0]
	require.Equal(t, reward.ID, remainder.ParentRewardID)
	require.True(t, remainder.Amount.Equal(money("2.00")))

	// WHEN the purchase is refunded
	_, err = engine.RefundTransaction(ctx, tx.ID)
	require.NoError(t, err)

	// THEN the remainder is clawed back too; the paid-out portion stays
	stored, err := st.GetReward(ctx, remainder.ID)
	require.NoError(t, err)
	assert.Equal(t, cashback.RewardCancelled, stored.Status)

	stored, err = st.GetReward(ctx, reward.ID)
	require.NoError(t, err)
	assert.Equal(t, cashback.RewardRedeemed, stored.Status)

	balance, err := engine.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, balance.Available.IsZero(), "refunded value must not stay redeemable")
	assert.True(t, balance.TotalSpent.IsZero())

	assertBalancesAgree(t, st, user.ID)
}

func TestRefundTransaction_RequiresConfirmed(t *testing.T) {
	engine, _, user := newTestEngine(t)
	ctx := context.Background()

	tx, err := engine.RecordTransaction(ctx, user.ID, money("100.00"), cashback.CategoryGroceries)
	require.NoError(t, err)

	_, err = engine.RefundTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, cashback.ErrInvalidTransactionTransition)
}

func TestRecordTransaction_Validation(t *testing.T) {
	engine, _, user := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.RecordTransaction(ctx, user.ID, money("0"), cashback.CategoryGroceries)
	assert.ErrorIs(t, err, cashback.ErrNonPositiveAmount)

	_, err = engine.RecordTransaction(ctx, "ghost", money("10.00"), cashback.CategoryGroceries)
	assert.ErrorIs(t, err, cashback.ErrUserNotFound)
}

// =============================================================================
// QUOTES AND DIRECT ACCRUAL
// =============================================================================

func TestCalculateCashback_UsesUserTier(t *testing.T) {
	engine, _, user := newTestEngine(t) // GOLD
	ctx := context.Background()

	quote, err := engine.CalculateCashback(ctx, user.ID, money("100.00"), cashback.CategoryGroceries)
	require.NoError(t, err)
	assert.True(t, quote.Equal(money("4.00")), "quote = %v", quote)

	// A tier upgrade changes future quotes immediately.
	_, err = engine.UpgradeTier(ctx, user.ID, cashback.TierPlatinum)
	require.NoError(t, err)

	quote, err = engine.CalculateCashback(ctx, user.ID, money("100.00"), cashback.CategoryGroceries)
	require.NoError(t, err)
	assert.True(t, quote.Equal(money("6.00")), "quote = %v", quote)
}

func TestAccrueReward_ExternalTransaction(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	reward, err := engine.AccrueReward(ctx, user.ID, "ext-txn-1", money("200.00"), cashback.CategoryDining)
	require.NoError(t, err)
	assert.True(t, reward.Amount.Equal(money("10.00")), "200 x 2.5%% x2.0 = 10.00, got %v", reward.Amount)

	// One reward per transaction, ever.
	_, err = engine.AccrueReward(ctx, user.ID, "ext-txn-1", money("200.00"), cashback.CategoryDining)
	assert.ErrorIs(t, err, cashback.ErrRewardAlreadyAccrued)

	assertBalancesAgree(t, st, user.ID)
}

func TestAccrueReward_InactiveCategory(t *testing.T) {
	engine, _, user := newTestEngine(t)

	_, err := engine.AccrueReward(context.Background(), user.ID, "ext-txn-1", money("100.00"), cashback.CategoryEntertainment)
	assert.ErrorIs(t, err, cashback.ErrNoCashbackEarned)
}

// =============================================================================
// END TO END
// =============================================================================

func TestEngine_FullLifecycle(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	// Two settled purchases accrue 4.00 and 12.00.
	for _, p := range []struct {
		amount   string
		category cashback.Category
	}{
		{"100.00", cashback.CategoryGroceries}, // 2.0% x2.0 = 4.00
		{"200.00", cashback.CategoryTravel},    // 3.0% x2.0 = 12.00
	} {
		tx, err := engine.RecordTransaction(ctx, user.ID, money(p.amount), p.category)
		require.NoError(t, err)
		_, _, err = engine.ConfirmTransaction(ctx, tx.ID)
		require.NoError(t, err)
	}

	balance, err := engine.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, balance.Available.Equal(money("16.00")), "available = %v", balance.Available)

	// Redeem 10.00: the 4.00 reward goes whole, the 12.00 reward splits.
	result, err := engine.RedeemCashback(ctx, user.ID, money("10.00"), "savings-account")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.True(t, result.NewBalance.Equal(money("6.00")))

	active, err := engine.ListRewards(ctx, user.ID, cashback.RewardActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, active[0].Amount.Equal(money("6.00")))
	assert.NotEmpty(t, active[0].ParentRewardID)

	txs, err := engine.ListTransactions(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	assertBalancesAgree(t, st, user.ID)
}
