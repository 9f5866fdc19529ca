/*
sweeper.go - Batch expiration of overdue rewards

PURPOSE:
  Transitions every ACTIVE reward whose ExpiresAt has passed to EXPIRED
  and removes its amount from the owner's Available balance. Runs on an
  external periodic trigger (see api/scheduler.go) and is idempotent:
  a second sweep at the same instant finds nothing ACTIVE to move.

ORDERING WITH REDEMPTIONS:
  The sweep takes each user's lock before touching that user's rewards,
  so it never interleaves with a concurrent redemption for the same user.
  Each reward is re-read under the lock and skipped if a redemption beat
  the sweep to it.
*/
package cashback

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ExpireOldRewards sweeps all overdue ACTIVE rewards and returns the
// number of rewards expired.
func (e *Engine) ExpireOldRewards(ctx context.Context, now time.Time) (int, error) {
	overdue, err := e.store.ListActiveExpiringBefore(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(overdue) == 0 {
		return 0, nil
	}

	// Group by user so each user's transitions run under one lock hold.
	byUser := make(map[UserID][]Reward)
	order := make([]UserID, 0)
	for _, r := range overdue {
		if _, seen := byUser[r.UserID]; !seen {
			order = append(order, r.UserID)
		}
		byUser[r.UserID] = append(byUser[r.UserID], r)
	}

	expired := 0
	for _, userID := range order {
		n, err := e.expireForUser(ctx, userID, byUser[userID], now)
		if err != nil {
			return expired, err
		}
		expired += n
	}

	if expired > 0 {
		e.log.Info("expiration sweep completed",
			zap.Int("expired", expired),
			zap.Time("as_of", now))
	}
	return expired, nil
}

func (e *Engine) expireForUser(ctx context.Context, userID UserID, candidates []Reward, now time.Time) (int, error) {
	mu := e.lockUser(userID)
	defer mu.Unlock()

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range candidates {
		// Re-read under the lock: a redemption may have consumed or split
		// this reward since the candidate list was taken.
		reward, err := e.store.GetReward(ctx, candidate.ID)
		if err != nil {
			if errors.Is(err, ErrRewardNotFound) {
				continue
			}
			return expired, err
		}
		if reward.Status != RewardActive || !reward.Expired(now) {
			continue
		}
		if err := e.ledger.Expire(ctx, user, reward); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}
