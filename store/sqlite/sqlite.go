/*
Package sqlite provides a SQLite-backed implementation of cashback.Store.

PURPOSE:
  Durable persistence for users, transactions, rewards, and redemptions.
  The same patterns apply to PostgreSQL - only minor SQL dialect
  differences. The engine serializes per-user mutations above this layer,
  so the store only guarantees that each individual operation is atomic.

KEY TABLES:
  users:         Program members with tier and running balances
  transactions:  Purchase lifecycle records
  rewards:       One row per reward (including split remainders)
  redemptions:   Payout history; consumed reward IDs as a JSON array

MONEY:
  All amounts are stored as TEXT and parsed with shopspring/decimal.
  Never store money as REAL.

INDEXES:
  idx_rewards_user_status_earned: the allocator's hot path (ACTIVE rewards
  for a user, earliest earned first)
  idx_rewards_status_expires: the expiration sweep scan

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't block
  and crash recovery is cleaner. Use ":memory:" for tests.

USAGE:
  store, err := sqlite.New("./data/cashback.db")
  if err != nil { ... }
  defer store.Close()
  engine := cashback.NewEngine(store, cashback.Options{})

SEE ALSO:
  - cashback/store.go: Interface definitions
  - cashback/store/memory.go: In-memory implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/cashback-engine/cashback"
)

// Store implements cashback.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		tier TEXT NOT NULL,
		available TEXT NOT NULL,
		total_earned TEXT NOT NULL,
		total_spent TEXT NOT NULL,
		enrolled_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		category TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user
		ON transactions(user_id, created_at);

	CREATE TABLE IF NOT EXISTS rewards (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		transaction_id TEXT NOT NULL,
		parent_reward_id TEXT,
		amount TEXT NOT NULL,
		category TEXT NOT NULL,
		applied_multiplier TEXT NOT NULL,
		status TEXT NOT NULL,
		earned_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);

	-- Allocator hot path: ACTIVE rewards for a user, earliest earned first.
	CREATE INDEX IF NOT EXISTS idx_rewards_user_status_earned
		ON rewards(user_id, status, earned_at);

	-- Expiration sweep scan.
	CREATE INDEX IF NOT EXISTS idx_rewards_status_expires
		ON rewards(status, expires_at);

	-- One accrued reward per transaction (split remainders carry a parent).
	CREATE UNIQUE INDEX IF NOT EXISTS idx_rewards_accrued_transaction
		ON rewards(transaction_id)
		WHERE parent_reward_id IS NULL;

	CREATE TABLE IF NOT EXISTS redemptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		destination TEXT NOT NULL,
		reward_ids_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_redemptions_user
		ON redemptions(user_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TIME / MONEY CODECS
// =============================================================================

func encodeTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func decodeTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

func decodeMoney(s string) (decimal.Decimal, error) { return decimal.NewFromString(s) }

// =============================================================================
// USERS
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, u *cashback.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, tier, available, total_earned, total_spent, enrolled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(u.ID), u.Name, u.Email, string(u.Tier),
		u.Available.String(), u.TotalEarned.String(), u.TotalSpent.String(),
		encodeTime(u.EnrolledAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s", cashback.ErrDuplicateID, u.ID)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id cashback.UserID) (*cashback.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, tier, available, total_earned, total_spent, enrolled_at
		FROM users WHERE id = ?`, string(id))
	return scanUser(row)
}

func (s *Store) UpdateUser(ctx context.Context, u *cashback.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET name = ?, email = ?, tier = ?, available = ?, total_earned = ?, total_spent = ?
		WHERE id = ?`,
		u.Name, u.Email, string(u.Tier),
		u.Available.String(), u.TotalEarned.String(), u.TotalSpent.String(),
		string(u.ID),
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireRow(res, fmt.Errorf("%w: %s", cashback.ErrUserNotFound, u.ID))
}

func scanUser(row *sql.Row) (*cashback.User, error) {
	var (
		u                    cashback.User
		id, tier             string
		avail, earned, spent string
		enrolledAt           string
	)
	err := row.Scan(&id, &u.Name, &u.Email, &tier, &avail, &earned, &spent, &enrolledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cashback.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	u.ID = cashback.UserID(id)
	u.Tier = cashback.Tier(tier)
	if u.Available, err = decodeMoney(avail); err != nil {
		return nil, fmt.Errorf("user %s available: %w", id, err)
	}
	if u.TotalEarned, err = decodeMoney(earned); err != nil {
		return nil, fmt.Errorf("user %s total_earned: %w", id, err)
	}
	if u.TotalSpent, err = decodeMoney(spent); err != nil {
		return nil, fmt.Errorf("user %s total_spent: %w", id, err)
	}
	if u.EnrolledAt, err = decodeTime(enrolledAt); err != nil {
		return nil, fmt.Errorf("user %s enrolled_at: %w", id, err)
	}
	return &u, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) CreateTransaction(ctx context.Context, tx *cashback.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, amount, category, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(tx.ID), string(tx.UserID), tx.Amount.String(), string(tx.Category),
		string(tx.Status), encodeTime(tx.CreatedAt), encodeTime(tx.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: transaction %s", cashback.ErrDuplicateID, tx.ID)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id cashback.TransactionID) (*cashback.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, category, status, created_at, updated_at
		FROM transactions WHERE id = ?`, string(id))
	if err != nil {
		return nil, fmt.Errorf("query transaction: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("%w: %s", cashback.ErrTransactionNotFound, id)
	}
	tx, err := scanTransaction(rows)
	if err != nil {
		return nil, err
	}
	return tx, rows.Err()
}

func (s *Store) UpdateTransaction(ctx context.Context, tx *cashback.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET status = ?, updated_at = ? WHERE id = ?`,
		string(tx.Status), encodeTime(tx.UpdatedAt), string(tx.ID),
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return requireRow(res, fmt.Errorf("%w: %s", cashback.ErrTransactionNotFound, tx.ID))
}

func (s *Store) ListTransactionsByUser(ctx context.Context, userID cashback.UserID) ([]cashback.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, category, status, created_at, updated_at
		FROM transactions WHERE user_id = ? ORDER BY created_at, id`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []cashback.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

func scanTransaction(rows *sql.Rows) (*cashback.Transaction, error) {
	var (
		tx                           cashback.Transaction
		id, userID, amount, category string
		status, createdAt, updatedAt string
	)
	if err := rows.Scan(&id, &userID, &amount, &category, &status, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	tx.ID = cashback.TransactionID(id)
	tx.UserID = cashback.UserID(userID)
	tx.Category = cashback.Category(category)
	tx.Status = cashback.TransactionStatus(status)

	var err error
	if tx.Amount, err = decodeMoney(amount); err != nil {
		return nil, fmt.Errorf("transaction %s amount: %w", id, err)
	}
	if tx.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("transaction %s created_at: %w", id, err)
	}
	if tx.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, fmt.Errorf("transaction %s updated_at: %w", id, err)
	}
	return &tx, nil
}

// =============================================================================
// REWARDS
// =============================================================================

const rewardColumns = `id, user_id, transaction_id, parent_reward_id, amount, category,
	applied_multiplier, status, earned_at, expires_at`

func (s *Store) CreateReward(ctx context.Context, r *cashback.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var parent any
	if r.ParentRewardID != "" {
		parent = string(r.ParentRewardID)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rewards (`+rewardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(r.ID), string(r.UserID), string(r.TransactionID), parent,
		r.Amount.String(), string(r.Category), r.AppliedMultiplier.String(),
		string(r.Status), encodeTime(r.EarnedAt), encodeTime(r.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", cashback.ErrRewardAlreadyAccrued, r.TransactionID)
		}
		return fmt.Errorf("insert reward: %w", err)
	}
	return nil
}

func (s *Store) GetReward(ctx context.Context, id cashback.RewardID) (*cashback.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryOneReward(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE id = ?`,
		fmt.Errorf("%w: %s", cashback.ErrRewardNotFound, id), string(id))
}

func (s *Store) UpdateReward(ctx context.Context, r *cashback.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE rewards SET amount = ?, status = ? WHERE id = ?`,
		r.Amount.String(), string(r.Status), string(r.ID),
	)
	if err != nil {
		return fmt.Errorf("update reward: %w", err)
	}
	return requireRow(res, fmt.Errorf("%w: %s", cashback.ErrRewardNotFound, r.ID))
}

func (s *Store) ListRewardsByUser(ctx context.Context, userID cashback.UserID, statuses ...cashback.RewardStatus) ([]cashback.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE user_id = ?`
	args := []any{string(userID)}
	if len(statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(",?", len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY earned_at, id`

	return s.queryRewards(ctx, query, args...)
}

func (s *Store) GetAccruedReward(ctx context.Context, txID cashback.TransactionID) (*cashback.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryOneReward(ctx, `
		SELECT `+rewardColumns+` FROM rewards
		WHERE transaction_id = ? AND parent_reward_id IS NULL`,
		fmt.Errorf("%w: no reward for transaction %s", cashback.ErrRewardNotFound, txID),
		string(txID))
}

func (s *Store) ListActiveExpiringBefore(ctx context.Context, cutoff time.Time) ([]cashback.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRewards(ctx, `
		SELECT `+rewardColumns+` FROM rewards
		WHERE status = ? AND expires_at < ?
		ORDER BY user_id, earned_at, id`,
		string(cashback.RewardActive), encodeTime(cutoff))
}

func (s *Store) queryOneReward(ctx context.Context, query string, notFound error, args ...any) (*cashback.Reward, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reward: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, notFound
	}
	r, err := scanReward(rows)
	if err != nil {
		return nil, err
	}
	return r, rows.Err()
}

func (s *Store) queryRewards(ctx context.Context, query string, args ...any) ([]cashback.Reward, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rewards: %w", err)
	}
	defer rows.Close()

	var out []cashback.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanReward(rows *sql.Rows) (*cashback.Reward, error) {
	var (
		r                           cashback.Reward
		id, userID, txID            string
		parent                      sql.NullString
		amount, category, mult      string
		status, earnedAt, expiresAt string
	)
	err := rows.Scan(&id, &userID, &txID, &parent, &amount, &category, &mult, &status, &earnedAt, &expiresAt)
	if err != nil {
		return nil, fmt.Errorf("scan reward: %w", err)
	}

	r.ID = cashback.RewardID(id)
	r.UserID = cashback.UserID(userID)
	r.TransactionID = cashback.TransactionID(txID)
	if parent.Valid {
		r.ParentRewardID = cashback.RewardID(parent.String)
	}
	r.Category = cashback.Category(category)
	r.Status = cashback.RewardStatus(status)

	if r.Amount, err = decodeMoney(amount); err != nil {
		return nil, fmt.Errorf("reward %s amount: %w", id, err)
	}
	if r.AppliedMultiplier, err = decodeMoney(mult); err != nil {
		return nil, fmt.Errorf("reward %s multiplier: %w", id, err)
	}
	if r.EarnedAt, err = decodeTime(earnedAt); err != nil {
		return nil, fmt.Errorf("reward %s earned_at: %w", id, err)
	}
	if r.ExpiresAt, err = decodeTime(expiresAt); err != nil {
		return nil, fmt.Errorf("reward %s expires_at: %w", id, err)
	}
	return &r, nil
}

// =============================================================================
// REDEMPTIONS
// =============================================================================

func (s *Store) CreateRedemption(ctx context.Context, r *cashback.Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rewardIDs, err := json.Marshal(r.RewardIDs)
	if err != nil {
		return fmt.Errorf("marshal reward ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO redemptions (id, user_id, amount, destination, reward_ids_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(r.ID), string(r.UserID), r.Amount.String(), r.Destination,
		string(rewardIDs), encodeTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert redemption: %w", err)
	}
	return nil
}

func (s *Store) ListRedemptionsByUser(ctx context.Context, userID cashback.UserID) ([]cashback.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, destination, reward_ids_json, created_at
		FROM redemptions WHERE user_id = ? ORDER BY created_at, id`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("query redemptions: %w", err)
	}
	defer rows.Close()

	var out []cashback.Redemption
	for rows.Next() {
		var (
			r                        cashback.Redemption
			id, uid, amount, dest    string
			rewardIDsJSON, createdAt string
		)
		if err := rows.Scan(&id, &uid, &amount, &dest, &rewardIDsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		r.ID = cashback.RedemptionID(id)
		r.UserID = cashback.UserID(uid)
		r.Destination = dest
		if r.Amount, err = decodeMoney(amount); err != nil {
			return nil, fmt.Errorf("redemption %s amount: %w", id, err)
		}
		if err := json.Unmarshal([]byte(rewardIDsJSON), &r.RewardIDs); err != nil {
			return nil, fmt.Errorf("redemption %s reward ids: %w", id, err)
		}
		if r.CreatedAt, err = decodeTime(createdAt); err != nil {
			return nil, fmt.Errorf("redemption %s created_at: %w", id, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// go-sqlite3 reports constraint violations in the error text; matching
	// the message avoids importing the driver's error types here.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Compile-time interface check.
var _ cashback.Store = (*Store)(nil)
