package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/cashback-engine/api"
	"github.com/warp/cashback-engine/cashback"
	memstore "github.com/warp/cashback-engine/cashback/store"
)

func TestSweepScheduler_SweepsOnStart(t *testing.T) {
	st := memstore.NewMemory()
	engine := cashback.NewEngine(st, cashback.Options{})
	ctx := context.Background()

	user, err := engine.EnrollUser(ctx, "user-1", "Ada", "ada@example.com", cashback.TierGold)
	require.NoError(t, err)

	// Book a reward that is already past its 90-day expiry.
	ledger := cashback.NewLedger(st, 0)
	_, err = ledger.CreateReward(ctx, user, "txn-1", cashback.MustMoney("5.00"),
		cashback.CategoryGroceries, cashback.MustMoney("2.0"),
		time.Now().Add(-95*24*time.Hour))
	require.NoError(t, err)

	scheduler := api.NewSweepScheduler(engine, time.Hour, zap.NewNop())
	scheduler.Start()
	defer scheduler.Stop()

	// The first sweep runs immediately on Start; poll briefly for it.
	deadline := time.Now().Add(2 * time.Second)
	for {
		stored, err := st.GetUser(ctx, user.ID)
		require.NoError(t, err)
		if stored.Available.IsZero() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expired reward still counted in available: %v", stored.Available)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSweepScheduler_StopIsIdempotent(t *testing.T) {
	engine := cashback.NewEngine(memstore.NewMemory(), cashback.Options{})

	scheduler := api.NewSweepScheduler(engine, time.Hour, zap.NewNop())
	scheduler.Start()
	scheduler.Stop()

	assert.NotPanics(t, func() { scheduler.Stop() })
}

func TestSweepScheduler_Restart(t *testing.T) {
	st := memstore.NewMemory()
	engine := cashback.NewEngine(st, cashback.Options{})
	ctx := context.Background()

	user, err := engine.EnrollUser(ctx, "user-1", "Ada", "ada@example.com", cashback.TierGold)
	require.NoError(t, err)

	scheduler := api.NewSweepScheduler(engine, time.Hour, zap.NewNop())
	scheduler.Start()
	scheduler.Stop()

	// A restarted scheduler must run its sweep loop again, not exit
	// immediately on the previous cycle's closed stop channel.
	ledger := cashback.NewLedger(st, 0)
	_, err = ledger.CreateReward(ctx, user, "txn-1", cashback.MustMoney("5.00"),
		cashback.CategoryGroceries, cashback.MustMoney("2.0"),
		time.Now().Add(-95*24*time.Hour))
	require.NoError(t, err)

	scheduler.Start()
	defer scheduler.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		stored, err := st.GetUser(ctx, user.ID)
		require.NoError(t, err)
		if stored.Available.IsZero() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("restarted scheduler never swept")
		}
		time.Sleep(10 * time.Millisecond)
	}

	assert.NotPanics(t, func() { scheduler.Stop(); scheduler.Stop() })
}
