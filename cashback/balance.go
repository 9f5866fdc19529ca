/*
balance.go - Balance views and recompute-from-ledger equivalence

PURPOSE:
  Answers "how much cashback does this user have?" two ways:
  - the incrementally maintained counters on the User record (the hot path)
  - a full recomputation from the reward set and confirmed transactions

  Both must produce identical figures at all times; the tests assert that
  equivalence after every kind of mutation.

COMPONENTS:
  Available   = sum of ACTIVE reward amounts
  TotalEarned = sum of all reward amounts ever created (a split remainder
                does not add: the original's amount shrank by the same)
  TotalSpent  = sum of CONFIRMED transaction amounts (refunded purchases
                leave CONFIRMED and stop counting)
*/
package cashback

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE VIEW
// =============================================================================

type BalanceView struct {
	Available   decimal.Decimal
	TotalEarned decimal.Decimal
	TotalSpent  decimal.Decimal
}

func balanceOf(u *User) BalanceView {
	return BalanceView{
		Available:   u.Available,
		TotalEarned: u.TotalEarned,
		TotalSpent:  u.TotalSpent,
	}
}

// =============================================================================
// RECOMPUTATION - Derives the same figures from first principles
// =============================================================================

// RecomputeBalance derives the user's balances from the reward set and the
// transaction history instead of the incremental counters. The two views
// must agree; a divergence is a ledger defect.
func RecomputeBalance(ctx context.Context, store Store, userID UserID) (BalanceView, error) {
	rewards, err := store.ListRewardsByUser(ctx, userID)
	if err != nil {
		return BalanceView{}, err
	}

	available := decimal.Zero
	earned := decimal.Zero
	for _, r := range rewards {
		earned = earned.Add(r.Amount)
		if r.Status == RewardActive {
			available = available.Add(r.Amount)
		}
		// A split remainder's amount was carved out of its parent, which
		// already shrank by the same figure, so summing every reward row
		// still yields total earned.
	}

	txs, err := store.ListTransactionsByUser(ctx, userID)
	if err != nil {
		return BalanceView{}, err
	}

	spent := decimal.Zero
	for _, tx := range txs {
		if tx.Status == TransactionConfirmed {
			spent = spent.Add(tx.Amount)
		}
	}

	return BalanceView{Available: available, TotalEarned: earned, TotalSpent: spent}, nil
}
