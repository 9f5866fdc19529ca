/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model from
  the wire contract. All monetary values travel as fixed-point decimal
  strings ("12.50"), never as JSON numbers, to avoid float rounding drift.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/cashback-engine/cashback"
)

// =============================================================================
// USERS
// =============================================================================

type UserDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Tier        string `json:"tier"`
	Available   string `json:"available"`
	TotalEarned string `json:"total_earned"`
	TotalSpent  string `json:"total_spent"`
	EnrolledAt  string `json:"enrolled_at"`
}

type EnrollUserRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Tier  string `json:"tier"`
}

type UpgradeTierRequest struct {
	Tier string `json:"tier"`
}

func toUserDTO(u *cashback.User) UserDTO {
	return UserDTO{
		ID:          string(u.ID),
		Name:        u.Name,
		Email:       u.Email,
		Tier:        string(u.Tier),
		Available:   u.Available.StringFixed(2),
		TotalEarned: u.TotalEarned.StringFixed(2),
		TotalSpent:  u.TotalSpent.StringFixed(2),
		EnrolledAt:  u.EnrolledAt.Format(time.RFC3339),
	}
}

// =============================================================================
// BALANCE
// =============================================================================

type BalanceDTO struct {
	Available   string `json:"available"`
	TotalEarned string `json:"total_earned"`
	TotalSpent  string `json:"total_spent"`
}

func toBalanceDTO(b cashback.BalanceView) BalanceDTO {
	return BalanceDTO{
		Available:   b.Available.StringFixed(2),
		TotalEarned: b.TotalEarned.StringFixed(2),
		TotalSpent:  b.TotalSpent.StringFixed(2),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type TransactionDTO struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Amount    string `json:"amount"`
	Category  string `json:"category"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type RecordTransactionRequest struct {
	Amount   string `json:"amount"`
	Category string `json:"category"`
}

func toTransactionDTO(tx *cashback.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:        string(tx.ID),
		UserID:    string(tx.UserID),
		Amount:    tx.Amount.StringFixed(2),
		Category:  string(tx.Category),
		Status:    string(tx.Status),
		CreatedAt: tx.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// REWARDS
// =============================================================================

type RewardDTO struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	TransactionID     string `json:"transaction_id"`
	ParentRewardID    string `json:"parent_reward_id,omitempty"`
	Amount            string `json:"amount"`
	Category          string `json:"category"`
	AppliedMultiplier string `json:"applied_multiplier"`
	Status            string `json:"status"`
	EarnedAt          string `json:"earned_at"`
	ExpiresAt         string `json:"expires_at"`
}

func toRewardDTO(r cashback.Reward) RewardDTO {
	return RewardDTO{
		ID:                string(r.ID),
		UserID:            string(r.UserID),
		TransactionID:     string(r.TransactionID),
		ParentRewardID:    string(r.ParentRewardID),
		Amount:            r.Amount.StringFixed(2),
		Category:          string(r.Category),
		AppliedMultiplier: r.AppliedMultiplier.String(),
		Status:            string(r.Status),
		EarnedAt:          r.EarnedAt.Format(time.RFC3339),
		ExpiresAt:         r.ExpiresAt.Format(time.RFC3339),
	}
}

func toRewardDTOs(rewards []cashback.Reward) []RewardDTO {
	dtos := make([]RewardDTO, 0, len(rewards))
	for _, r := range rewards {
		dtos = append(dtos, toRewardDTO(r))
	}
	return dtos
}

// =============================================================================
// REDEMPTION
// =============================================================================

type RedeemRequest struct {
	Amount      string `json:"amount"`
	Destination string `json:"destination"`
}

type RedemptionResultDTO struct {
	Success         bool     `json:"success"`
	RedeemedAmount  string   `json:"redeemed_amount"`
	NewBalance      string   `json:"new_balance"`
	Reason          string   `json:"reason,omitempty"`
	RedemptionID    string   `json:"redemption_id,omitempty"`
	ConsumedRewards []string `json:"consumed_rewards,omitempty"`
}

func toRedemptionResultDTO(res cashback.RedemptionResult) RedemptionResultDTO {
	dto := RedemptionResultDTO{
		Success:        res.Success,
		RedeemedAmount: res.RedeemedAmount.StringFixed(2),
		NewBalance:     res.NewBalance.StringFixed(2),
		Reason:         string(res.Reason),
		RedemptionID:   string(res.RedemptionID),
	}
	for _, id := range res.ConsumedRewards {
		dto.ConsumedRewards = append(dto.ConsumedRewards, string(id))
	}
	return dto
}

type RedemptionDTO struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	Amount      string   `json:"amount"`
	Destination string   `json:"destination"`
	RewardIDs   []string `json:"reward_ids"`
	CreatedAt   string   `json:"created_at"`
}

func toRedemptionDTO(r cashback.Redemption) RedemptionDTO {
	dto := RedemptionDTO{
		ID:          string(r.ID),
		UserID:      string(r.UserID),
		Amount:      r.Amount.StringFixed(2),
		Destination: r.Destination,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
	for _, id := range r.RewardIDs {
		dto.RewardIDs = append(dto.RewardIDs, string(id))
	}
	return dto
}

// =============================================================================
// QUOTES AND RULES
// =============================================================================

type QuoteDTO struct {
	Cashback string `json:"cashback"`
	Category string `json:"category"`
	Amount   string `json:"amount"`
}

type RuleDTO struct {
	Category                  string            `json:"category"`
	BasePercentage            string            `json:"base_percentage"`
	TierMultipliers           map[string]string `json:"tier_multipliers"`
	MinTransactionAmount      string            `json:"min_transaction_amount"`
	MaxCashbackPerTransaction string            `json:"max_cashback_per_transaction"`
	Active                    bool              `json:"active"`
}

func toRuleDTO(r cashback.CashbackRule) RuleDTO {
	multipliers := make(map[string]string, len(r.TierMultipliers))
	for tier, m := range r.TierMultipliers {
		multipliers[string(tier)] = m.String()
	}
	return RuleDTO{
		Category:                  string(r.Category),
		BasePercentage:            r.BasePercentage.String(),
		TierMultipliers:           multipliers,
		MinTransactionAmount:      r.MinTransactionAmount.StringFixed(2),
		MaxCashbackPerTransaction: r.MaxCashbackPerTransaction.StringFixed(2),
		Active:                    r.Active,
	}
}

// =============================================================================
// SWEEP AND ERRORS
// =============================================================================

type SweepResponse struct {
	Expired int    `json:"expired"`
	AsOf    string `json:"as_of"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
