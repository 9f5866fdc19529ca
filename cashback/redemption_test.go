package cashback_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cashback-engine/cashback"
	memstore "github.com/warp/cashback-engine/cashback/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) (*cashback.Engine, *memstore.Memory, *cashback.User) {
	t.Helper()
	st := memstore.NewMemory()
	engine := cashback.NewEngine(st, cashback.Options{})

	user, err := engine.EnrollUser(context.Background(), "user-1", "Ada", "ada@example.com", cashback.TierGold)
	require.NoError(t, err)
	return engine, st, user
}

var seedSeq int

// seedReward books an ACTIVE reward with a controlled amount and earn time,
// bypassing the accrual calculation.
func seedReward(t *testing.T, st *memstore.Memory, userID cashback.UserID, amount string, earnedAt time.Time) *cashback.Reward {
	t.Helper()
	ctx := context.Background()

	user, err := st.GetUser(ctx, userID)
	require.NoError(t, err)

	seedSeq++
	ledger := cashback.NewLedger(st, 0)
	reward, err := ledger.CreateReward(
		ctx, user,
		cashback.TransactionID(fmt.Sprintf("seed-txn-%d", seedSeq)),
		money(amount), cashback.CategoryGroceries, money("2.0"), earnedAt,
	)
	require.NoError(t, err)
	return reward
}

func assertBalancesAgree(t *testing.T, st *memstore.Memory, userID cashback.UserID) {
	t.Helper()
	ctx := context.Background()

	user, err := st.GetUser(ctx, userID)
	require.NoError(t, err)
	recomputed, err := cashback.RecomputeBalance(ctx, st, userID)
	require.NoError(t, err)

	assert.True(t, user.Available.Equal(recomputed.Available),
		"available: counter %v vs recomputed %v", user.Available, recomputed.Available)
	assert.True(t, user.TotalEarned.Equal(recomputed.TotalEarned),
		"totalEarned: counter %v vs recomputed %v", user.TotalEarned, recomputed.TotalEarned)
	assert.True(t, user.TotalSpent.Equal(recomputed.TotalSpent),
		"totalSpent: counter %v vs recomputed %v", user.TotalSpent, recomputed.TotalSpent)
}

// =============================================================================
// ALLOCATION
// =============================================================================

func TestRedeemCashback_SplitsBoundaryReward(t *testing.T) {
	// GIVEN two ACTIVE rewards: 15.50 earned first, 8.20 earned later
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	now := time.Now()
	first := seedReward(t, st, user.ID, "15.50", now.Add(-48*time.Hour))
	second := seedReward(t, st, user.ID, "8.20", now.Add(-24*time.Hour))

	// WHEN the user redeems 10.00
	result, err := engine.RedeemCashback(ctx, user.ID, money("10.00"), "savings-account")
	require.NoError(t, err)

	// THEN the request succeeds against the earliest reward only
	assert.True(t, result.Success)
	assert.True(t, result.RedeemedAmount.Equal(money("10.00")))
	assert.True(t, result.NewBalance.Equal(money("13.70")), "new balance = %v", result.NewBalance)
	assert.Equal(t, []cashback.RewardID{first.ID}, result.ConsumedRewards)

	// The boundary reward shrank to the consumed portion and closed out.
	stored, err := st.GetReward(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, cashback.RewardRedeemed, stored.Status)
	assert.True(t, stored.Amount.Equal(money("10.00")))

	// The remainder came back as a fresh ACTIVE reward with the original's
	// earn time and expiry.
	active, err := st.ListRewardsByUser(ctx, user.ID, cashback.RewardActive)
	require.NoError(t, err)
	require.Len(t, active, 2)
	remainder := active[0]
	assert.Equal(t, first.ID, remainder.ParentRewardID)
	assert.True(t, remainder.Amount.Equal(money("5.50")))
	assert.True(t, remainder.EarnedAt.Equal(first.EarnedAt))
	assert.True(t, remainder.ExpiresAt.Equal(first.ExpiresAt))

	// The later reward is untouched.
	assert.Equal(t, second.ID, active[1].ID)
	assert.True(t, active[1].Amount.Equal(money("8.20")))

	assertBalancesAgree(t, st, user.ID)
}

func TestRedeemCashback_ConsumesWholeRewardsInEarnOrder(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	now := time.Now()
	first := seedReward(t, st, user.ID, "4.00", now.Add(-72*time.Hour))
	second := seedReward(t, st, user.ID, "6.00", now.Add(-48*time.Hour))
	third := seedReward(t, st, user.ID, "9.00", now.Add(-24*time.Hour))

	result, err := engine.RedeemCashback(ctx, user.ID, money("10.00"), "savings-account")
	require.NoError(t, err)

	require.True(t, result.Success)
	assert.Equal(t, []cashback.RewardID{first.ID, second.ID}, result.ConsumedRewards)
	assert.True(t, result.NewBalance.Equal(money("9.00")))

	active, err := st.ListRewardsByUser(ctx, user.ID, cashback.RewardActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, third.ID, active[0].ID)

	assertBalancesAgree(t, st, user.ID)
}

func TestRedeemCashback_ExactBalance(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	seedReward(t, st, user.ID, "15.50", time.Now().Add(-48*time.Hour))
	seedReward(t, st, user.ID, "8.20", time.Now().Add(-24*time.Hour))

	result, err := engine.RedeemCashback(ctx, user.ID, money("23.70"), "savings-account")
	require.NoError(t, err)

	require.True(t, result.Success)
	assert.True(t, result.NewBalance.IsZero())
	assert.Len(t, result.ConsumedRewards, 2)

	active, err := st.ListRewardsByUser(ctx, user.ID, cashback.RewardActive)
	require.NoError(t, err)
	assert.Empty(t, active)

	assertBalancesAgree(t, st, user.ID)
}

// =============================================================================
// FAILURE MODES - business outcomes, never errors, never mutations
// =============================================================================

func TestRedeemCashback_BelowMinimum(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	seedReward(t, st, user.ID, "20.00", time.Now().Add(-time.Hour))

	result, err := engine.RedeemCashback(ctx, user.ID, money("5.00"), "savings-account")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, cashback.ReasonBelowMinimum, result.Reason)
	assert.True(t, result.RedeemedAmount.IsZero())
	assert.True(t, result.NewBalance.Equal(money("20.00")), "balance must not move")

	active, err := st.ListRewardsByUser(ctx, user.ID, cashback.RewardActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, active[0].Amount.Equal(money("20.00")))
}

func TestRedeemCashback_InsufficientBalance(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	seedReward(t, st, user.ID, "20.00", time.Now().Add(-time.Hour))

	result, err := engine.RedeemCashback(ctx, user.ID, money("50.00"), "savings-account")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, cashback.ReasonInsufficientBalance, result.Reason)
	assert.True(t, result.NewBalance.Equal(money("20.00")))

	assertBalancesAgree(t, st, user.ID)
}

func TestRedeemCashback_InvalidCardDestination(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	seedReward(t, st, user.ID, "20.00", time.Now().Add(-time.Hour))

	// 16 digits failing the Luhn check.
	result, err := engine.RedeemCashback(ctx, user.ID, money("10.00"), "4111111111111112")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, cashback.ReasonInvalidDestination, result.Reason)
	assert.True(t, result.NewBalance.Equal(money("20.00")))
}

func TestRedeemCashback_ValidCardDestination(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	seedReward(t, st, user.ID, "20.00", time.Now().Add(-time.Hour))

	result, err := engine.RedeemCashback(ctx, user.ID, money("10.00"), "4111111111111111")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestRedeemCashback_FullLengthCardDestination(t *testing.T) {
	// 19-digit PANs exceed int64 range; the checksum must still apply.
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	seedReward(t, st, user.ID, "40.00", time.Now().Add(-time.Hour))

	result, err := engine.RedeemCashback(ctx, user.ID, money("10.00"), "9999999999999999999")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, cashback.ReasonInvalidDestination, result.Reason)

	result, err = engine.RedeemCashback(ctx, user.ID, money("10.00"), "9999999999999999998")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestRedeemCashback_UnknownUser(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.RedeemCashback(context.Background(), "ghost", money("10.00"), "savings-account")
	assert.ErrorIs(t, err, cashback.ErrUserNotFound)
}

func TestRedeemCashback_NonPositiveAmountPanics(t *testing.T) {
	engine, _, user := newTestEngine(t)

	assert.Panics(t, func() {
		_, _ = engine.RedeemCashback(context.Background(), user.ID, money("0"), "savings-account")
	})
}

// =============================================================================
// HISTORY
// =============================================================================

func TestRedeemCashback_RecordsRedemption(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	seedReward(t, st, user.ID, "20.00", time.Now().Add(-time.Hour))

	result, err := engine.RedeemCashback(ctx, user.ID, money("12.00"), "savings-account")
	require.NoError(t, err)
	require.True(t, result.Success)

	redemptions, err := engine.ListRedemptions(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, redemptions, 1)
	assert.Equal(t, result.RedemptionID, redemptions[0].ID)
	assert.True(t, redemptions[0].Amount.Equal(money("12.00")))
	assert.Equal(t, "savings-account", redemptions[0].Destination)
	assert.Equal(t, result.ConsumedRewards, redemptions[0].RewardIDs)
}
