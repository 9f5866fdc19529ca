// Package store provides the in-memory cashback.Store implementation.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/cashback-engine/cashback"
)

// =============================================================================
// MEMORY STORE - Mutex-guarded maps (default store)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	users       map[cashback.UserID]cashback.User
	txs         map[cashback.TransactionID]cashback.Transaction
	rewards     map[cashback.RewardID]cashback.Reward
	redemptions map[cashback.UserID][]cashback.Redemption
}

func NewMemory() *Memory {
	return &Memory{
		users:       make(map[cashback.UserID]cashback.User),
		txs:         make(map[cashback.TransactionID]cashback.Transaction),
		rewards:     make(map[cashback.RewardID]cashback.Reward),
		redemptions: make(map[cashback.UserID][]cashback.Redemption),
	}
}

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

func (m *Memory) CreateUser(_ context.Context, u *cashback.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[u.ID]; exists {
		return fmt.Errorf("%w: user %s", cashback.ErrDuplicateID, u.ID)
	}
	m.users[u.ID] = *u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id cashback.UserID) (*cashback.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", cashback.ErrUserNotFound, id)
	}
	copied := u
	return &copied, nil
}

func (m *Memory) UpdateUser(_ context.Context, u *cashback.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.ID]; !ok {
		return fmt.Errorf("%w: %s", cashback.ErrUserNotFound, u.ID)
	}
	m.users[u.ID] = *u
	return nil
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

func (m *Memory) CreateTransaction(_ context.Context, tx *cashback.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.txs[tx.ID]; exists {
		return fmt.Errorf("%w: transaction %s", cashback.ErrDuplicateID, tx.ID)
	}
	m.txs[tx.ID] = *tx
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id cashback.TransactionID) (*cashback.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.txs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", cashback.ErrTransactionNotFound, id)
	}
	copied := tx
	return &copied, nil
}

func (m *Memory) UpdateTransaction(_ context.Context, tx *cashback.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.txs[tx.ID]; !ok {
		return fmt.Errorf("%w: %s", cashback.ErrTransactionNotFound, tx.ID)
	}
	m.txs[tx.ID] = *tx
	return nil
}

func (m *Memory) ListTransactionsByUser(_ context.Context, userID cashback.UserID) ([]cashback.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []cashback.Transaction
	for _, tx := range m.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Rewards
// -----------------------------------------------------------------------------

func (m *Memory) CreateReward(_ context.Context, r *cashback.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rewards[r.ID]; exists {
		return fmt.Errorf("%w: reward %s", cashback.ErrDuplicateID, r.ID)
	}
	m.rewards[r.ID] = *r
	return nil
}

func (m *Memory) GetReward(_ context.Context, id cashback.RewardID) (*cashback.Reward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rewards[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", cashback.ErrRewardNotFound, id)
	}
	copied := r
	return &copied, nil
}

func (m *Memory) UpdateReward(_ context.Context, r *cashback.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rewards[r.ID]; !ok {
		return fmt.Errorf("%w: %s", cashback.ErrRewardNotFound, r.ID)
	}
	m.rewards[r.ID] = *r
	return nil
}

func (m *Memory) ListRewardsByUser(_ context.Context, userID cashback.UserID, statuses ...cashback.RewardStatus) ([]cashback.Reward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []cashback.Reward
	for _, r := range m.rewards {
		if r.UserID != userID {
			continue
		}
		if len(statuses) > 0 && !statusIn(r.Status, statuses) {
			continue
		}
		out = append(out, r)
	}
	sortRewards(out)
	return out, nil
}

func (m *Memory) GetAccruedReward(_ context.Context, txID cashback.TransactionID) (*cashback.Reward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.rewards {
		if r.TransactionID == txID && r.ParentRewardID == "" {
			copied := r
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: no reward for transaction %s", cashback.ErrRewardNotFound, txID)
}

func (m *Memory) ListActiveExpiringBefore(_ context.Context, cutoff time.Time) ([]cashback.Reward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []cashback.Reward
	for _, r := range m.rewards {
		if r.Status == cashback.RewardActive && r.ExpiresAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		if out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].EarnedAt.Before(out[j].EarnedAt)
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Redemptions
// -----------------------------------------------------------------------------

func (m *Memory) CreateRedemption(_ context.Context, r *cashback.Redemption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *r
	copied.RewardIDs = append([]cashback.RewardID(nil), r.RewardIDs...)
	m.redemptions[r.UserID] = append(m.redemptions[r.UserID], copied)
	return nil
}

func (m *Memory) ListRedemptionsByUser(_ context.Context, userID cashback.UserID) ([]cashback.Redemption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]cashback.Redemption, len(m.redemptions[userID]))
	for i, r := range m.redemptions[userID] {
		r.RewardIDs = append([]cashback.RewardID(nil), r.RewardIDs...)
		out[i] = r
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func statusIn(s cashback.RewardStatus, statuses []cashback.RewardStatus) bool {
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

// sortRewards orders by EarnedAt ascending, ties broken by ID - the order
// the redemption allocator depends on.
func sortRewards(rewards []cashback.Reward) {
	sort.Slice(rewards, func(i, j int) bool {
		if rewards[i].EarnedAt.Equal(rewards[j].EarnedAt) {
			return rewards[i].ID < rewards[j].ID
		}
		return rewards[i].EarnedAt.Before(rewards[j].EarnedAt)
	})
}

// Compile-time interface check.
var _ cashback.Store = (*Memory)(nil)
