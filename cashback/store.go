/*
store.go - Persistence interfaces for users, transactions, rewards, payouts

PURPOSE:
  Defines the interface between domain logic and storage. The engine is
  handed a Store at construction - there is no hidden static state. Two
  implementations ship with this module:
  - cashback/store (memory.go): mutex-guarded maps, the default
  - store/sqlite: durable SQLite-backed store, same contract

CONSISTENCY CONTRACT:
  Individual store operations are atomic and readers never see a torn
  record. Multi-step invariants (reward transition + balance decrement)
  are the engine's responsibility: it serializes all mutations for a
  given user, so stores do not need cross-call transactions.

ORDERING:
  ListRewardsByUser returns rewards ordered by EarnedAt ascending (ties
  broken by ID) - the redemption allocator depends on this for its
  earliest-earned-first walk.
*/
package cashback

import (
	"context"
	"time"
)

// =============================================================================
// STORE INTERFACES
// =============================================================================

type UserStore interface {
	// CreateUser inserts a new user. ErrDuplicateID if the ID exists.
	CreateUser(ctx context.Context, u *User) error

	// GetUser returns a copy of the user. ErrUserNotFound if absent.
	GetUser(ctx context.Context, id UserID) (*User, error)

	// UpdateUser replaces the stored user. ErrUserNotFound if absent.
	UpdateUser(ctx context.Context, u *User) error
}

type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)
	UpdateTransaction(ctx context.Context, tx *Transaction) error

	// ListTransactionsByUser returns the user's transactions ordered by
	// CreatedAt ascending.
	ListTransactionsByUser(ctx context.Context, userID UserID) ([]Transaction, error)
}

type RewardStore interface {
	CreateReward(ctx context.Context, r *Reward) error
	GetReward(ctx context.Context, id RewardID) (*Reward, error)
	UpdateReward(ctx context.Context, r *Reward) error

	// ListRewardsByUser returns rewards ordered by EarnedAt ascending,
	// optionally filtered by status.
	ListRewardsByUser(ctx context.Context, userID UserID, statuses ...RewardStatus) ([]Reward, error)

	// GetAccruedReward returns the reward accrued for a transaction,
	// excluding split remainders. ErrRewardNotFound if none exists.
	GetAccruedReward(ctx context.Context, txID TransactionID) (*Reward, error)

	// ListActiveExpiringBefore returns ACTIVE rewards with ExpiresAt before
	// the cutoff, across all users, ordered by UserID then EarnedAt.
	ListActiveExpiringBefore(ctx context.Context, cutoff time.Time) ([]Reward, error)
}

type RedemptionStore interface {
	CreateRedemption(ctx context.Context, r *Redemption) error

	// ListRedemptionsByUser returns payouts ordered by CreatedAt ascending.
	ListRedemptionsByUser(ctx context.Context, userID UserID) ([]Redemption, error)
}

// Store bundles all persistence concerns the engine needs.
type Store interface {
	UserStore
	TransactionStore
	RewardStore
	RedemptionStore
}
