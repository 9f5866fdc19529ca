/*
handlers.go - HTTP handlers for the cashback engine

PURPOSE:
  Exposes the engine's operation surface over REST. Handlers parse and
  validate input, delegate to the engine, and translate outcomes to JSON.
  No business rule lives here.

ENDPOINTS:
  Users:
    POST   /api/users                        Enroll a user
    GET    /api/users/{id}                   User details
    POST   /api/users/{id}/tier              Upgrade tier
    GET    /api/users/{id}/balance           Balance summary
    GET    /api/users/{id}/rewards           Rewards (optional ?status=)
    GET    /api/users/{id}/transactions      Purchase history
    POST   /api/users/{id}/transactions      Record a pending purchase
    GET    /api/users/{id}/redemptions       Payout history
    POST   /api/users/{id}/redemptions       Redeem cashback
    GET    /api/users/{id}/quote             Cashback quote (no mutation)

  Transactions:
    POST   /api/transactions/{id}/confirm    Settle (triggers accrual)
    POST   /api/transactions/{id}/cancel     Abandon a pending purchase
    POST   /api/transactions/{id}/refund     Refund (triggers clawback)

  Rules / admin:
    GET    /api/rules                        Rule catalog
    POST   /api/admin/sweep                  Run the expiration sweep now

ERROR HANDLING:
  - 400: invalid input, illegal lifecycle moves, non-qualifying accrual
  - 404: unknown user / transaction / rule
  - 409: duplicate IDs, duplicate accrual
  - 500: store failures
  Redemption validation failures are NOT HTTP errors: they come back 200
  with {"success": false, "reason": ...} exactly as the engine reports
  them.

SEE ALSO:
  - dto.go: Request/response types
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/cashback-engine/cashback"
)

// =============================================================================
// HANDLER
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *cashback.Engine
}

func NewHandler(engine *cashback.Engine) *Handler {
	return &Handler{Engine: engine}
}

// =============================================================================
// USER ENDPOINTS
// =============================================================================

// EnrollUser creates a program member.
// POST /api/users
func (h *Handler) EnrollUser(w http.ResponseWriter, r *http.Request) {
	var req EnrollUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	user, err := h.Engine.EnrollUser(r.Context(), cashback.UserID(req.ID), req.Name, req.Email, cashback.Tier(req.Tier))
	if err != nil {
		writeEngineError(w, "Failed to enroll user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

// GetUser returns user details.
// GET /api/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Engine.GetUser(r.Context(), cashback.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to get user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// UpgradeTier moves a user to a higher tier.
// POST /api/users/{id}/tier
func (h *Handler) UpgradeTier(w http.ResponseWriter, r *http.Request) {
	var req UpgradeTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	user, err := h.Engine.UpgradeTier(r.Context(), cashback.UserID(chi.URLParam(r, "id")), cashback.Tier(req.Tier))
	if err != nil {
		writeEngineError(w, "Failed to upgrade tier", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// GetBalance returns the user's balance summary.
// GET /api/users/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.Engine.GetBalance(r.Context(), cashback.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

// ListRewards returns the user's rewards, earliest earned first.
// GET /api/users/{id}/rewards?status=ACTIVE
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	var statuses []cashback.RewardStatus
	for _, s := range r.URL.Query()["status"] {
		statuses = append(statuses, cashback.RewardStatus(s))
	}

	rewards, err := h.Engine.ListRewards(r.Context(), cashback.UserID(chi.URLParam(r, "id")), statuses...)
	if err != nil {
		writeEngineError(w, "Failed to list rewards", err)
		return
	}
	writeJSON(w, http.StatusOK, toRewardDTOs(rewards))
}

// Quote computes cashback for a hypothetical purchase. No mutation.
// GET /api/users/{id}/quote?amount=100.00&category=GROCERIES
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	category := cashback.Category(r.URL.Query().Get("category"))

	cb, err := h.Engine.CalculateCashback(r.Context(), cashback.UserID(chi.URLParam(r, "id")), amount, category)
	if err != nil {
		writeEngineError(w, "Failed to calculate cashback", err)
		return
	}
	writeJSON(w, http.StatusOK, QuoteDTO{
		Cashback: cb.StringFixed(2),
		Category: string(category),
		Amount:   amount.StringFixed(2),
	})
}

// =============================================================================
// TRANSACTION ENDPOINTS
// =============================================================================

// RecordTransaction registers a pending purchase.
// POST /api/users/{id}/transactions
func (h *Handler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req RecordTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	tx, err := h.Engine.RecordTransaction(r.Context(), cashback.UserID(chi.URLParam(r, "id")), amount, cashback.Category(req.Category))
	if err != nil {
		writeEngineError(w, "Failed to record transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// ListTransactions returns the user's purchase history.
// GET /api/users/{id}/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Engine.ListTransactions(r.Context(), cashback.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to list transactions", err)
		return
	}
	dtos := make([]TransactionDTO, 0, len(txs))
	for i := range txs {
		dtos = append(dtos, toTransactionDTO(&txs[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ConfirmTransaction settles a purchase and accrues cashback.
// POST /api/transactions/{id}/confirm
func (h *Handler) ConfirmTransaction(w http.ResponseWriter, r *http.Request) {
	tx, reward, err := h.Engine.ConfirmTransaction(r.Context(), cashback.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to confirm transaction", err)
		return
	}

	resp := struct {
		Transaction TransactionDTO `json:"transaction"`
		Reward      *RewardDTO     `json:"reward,omitempty"`
	}{Transaction: toTransactionDTO(tx)}
	if reward != nil {
		dto := toRewardDTO(*reward)
		resp.Reward = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelTransaction abandons a pending purchase.
// POST /api/transactions/{id}/cancel
func (h *Handler) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Engine.CancelTransaction(r.Context(), cashback.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to cancel transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// RefundTransaction reverses a confirmed purchase, clawing back the
// originating reward if it is still active.
// POST /api/transactions/{id}/refund
func (h *Handler) RefundTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Engine.RefundTransaction(r.Context(), cashback.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to refund transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// =============================================================================
// REDEMPTION ENDPOINTS
// =============================================================================

// Redeem converts available cashback into a payout.
// POST /api/users/{id}/redemptions
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Amount must be a positive decimal", err)
		return
	}

	result, err := h.Engine.RedeemCashback(r.Context(), cashback.UserID(chi.URLParam(r, "id")), amount, req.Destination)
	if err != nil {
		writeEngineError(w, "Failed to redeem cashback", err)
		return
	}
	writeJSON(w, http.StatusOK, toRedemptionResultDTO(result))
}

// ListRedemptions returns the user's payout history.
// GET /api/users/{id}/redemptions
func (h *Handler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	redemptions, err := h.Engine.ListRedemptions(r.Context(), cashback.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to list redemptions", err)
		return
	}
	dtos := make([]RedemptionDTO, 0, len(redemptions))
	for _, red := range redemptions {
		dtos = append(dtos, toRedemptionDTO(red))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RULES AND ADMIN
// =============================================================================

// ListRules returns the rule catalog.
// GET /api/rules
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	catalog := h.Engine.Catalog()
	dtos := make([]RuleDTO, 0)
	for _, category := range catalog.Categories() {
		rule, err := catalog.Lookup(category)
		if err != nil {
			continue
		}
		dtos = append(dtos, toRuleDTO(rule))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Sweep runs the expiration sweep immediately.
// POST /api/admin/sweep
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	expired, err := h.Engine.ExpireOldRewards(r.Context(), now)
	if err != nil {
		writeEngineError(w, "Sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Expired: expired, AsOf: now.Format(time.RFC3339)})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps domain errors to HTTP status codes.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case cashback.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, cashback.ErrDuplicateID), errors.Is(err, cashback.ErrRewardAlreadyAccrued):
		writeError(w, http.StatusConflict, message, err)
	case cashback.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
