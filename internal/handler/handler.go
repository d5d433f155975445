// Package handler содержит HTTP-обработчики API сервиса govpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/govpoints-system/internal/middleware"
	"github.com/mmeshcher/govpoints-system/internal/model"
	"github.com/mmeshcher/govpoints-system/internal/registry"
	"github.com/mmeshcher/govpoints-system/internal/repository"
	"github.com/mmeshcher/govpoints-system/internal/service"
	"github.com/mmeshcher/govpoints-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	AwardVotePoints(ctx context.Context, wallet, proposalID, daoID string, earlyVote bool) (*model.PointTransaction, error)
	RedeemPoints(ctx context.Context, wallet string, amount int64, reason string) (*model.PointTransaction, error)
	AwardBonusPoints(ctx context.Context, wallet string, amount int64, reason string) (*model.PointTransaction, error)
	GetUserPoints(ctx context.Context, wallet string) (*model.PointsAccount, error)
	GetUserStats(ctx context.Context, wallet string) (*service.UserStats, error)
	GetUserTransactions(ctx context.Context, wallet string, limit int) ([]model.PointTransaction, error)
	GetLeaderboard(ctx context.Context, limit int) ([]model.PointsAccount, error)
	GetPlatformStats(ctx context.Context) (*service.PlatformStats, error)
	ListRewards(ctx context.Context, filter model.RewardFilter) ([]model.RewardItem, error)
	GetReward(ctx context.Context, id string) (*model.RewardItem, error)
	AddReward(ctx context.Context, item *model.RewardItem) error
	UpdateReward(ctx context.Context, id string, patch model.RewardPatch) (*model.RewardItem, error)
	Redeem(ctx context.Context, wallet, rewardID string) (*model.Redemption, error)
	ProcessRedemption(ctx context.Context, id string) (*model.Redemption, error)
	CancelRedemption(ctx context.Context, id string) (*model.Redemption, error)
	GetRedemption(ctx context.Context, id string) (*model.Redemption, error)
	GetUserRedemptions(ctx context.Context, wallet string, limit int) ([]model.Redemption, error)
	ListRedemptions(ctx context.Context, filter model.RedemptionFilter) ([]model.Redemption, error)
	GetPool(ctx context.Context) (*model.RewardPool, error)
	IncreaseBudget(ctx context.Context, amount int64) (*model.RewardPool, error)
	ListDAOs() []registry.DAO
	DAOTier(id string) registry.Tier
}

// Handler реализует HTTP-обработчики API сервиса govpoints.
type Handler struct {
	service   Service
	logger    *zap.Logger
	adminAuth *middleware.AdminAuth
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, adminAuth *middleware.AdminAuth) *Handler {
	return &Handler{
		service:   s,
		logger:    logger,
		adminAuth: adminAuth,
	}
}

// respondError преобразует доменные ошибки в HTTP-статусы.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var status int

	switch {
	case errors.Is(err, repository.ErrInsufficientPoints):
		status = http.StatusPaymentRequired
	case errors.Is(err, repository.ErrRewardNotFound),
		errors.Is(err, repository.ErrRedemptionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicateVote),
		errors.Is(err, repository.ErrRewardExists),
		errors.Is(err, repository.ErrRewardInactive),
		errors.Is(err, repository.ErrOutOfStock),
		errors.Is(err, repository.ErrAlreadyProcessed),
		errors.Is(err, repository.ErrAlreadyCompleted),
		errors.Is(err, repository.ErrAlreadyCancelled):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidAmount):
		status = http.StatusBadRequest
	default:
		h.logger.Error("internal error", zap.Error(err))
		status = http.StatusInternalServerError
		http.Error(w, http.StatusText(status), status)
		return
	}

	http.Error(w, err.Error(), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func queryLimit(r *http.Request) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

type accountResponse struct {
	Wallet          string `json:"wallet"`
	TotalPoints     int64  `json:"total_points"`
	AvailablePoints int64  `json:"available_points"`
	RedeemedPoints  int64  `json:"redeemed_points"`
	Level           int    `json:"level"`
	Streak          int    `json:"streak"`
	LastActivityAt  string `json:"last_activity_at,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func toAccountResponse(a *model.PointsAccount) accountResponse {
	resp := accountResponse{
		Wallet:          a.Wallet,
		TotalPoints:     a.TotalPoints,
		AvailablePoints: a.AvailablePoints,
		RedeemedPoints:  a.RedeemedPoints,
		Level:           a.Level,
		Streak:          a.Streak,
		CreatedAt:       a.CreatedAt.Format(time.RFC3339),
	}
	if !a.LastActivityAt.IsZero() {
		resp.LastActivityAt = a.LastActivityAt.Format(time.RFC3339)
	}
	return resp
}

type transactionResponse struct {
	ID        string              `json:"id"`
	Wallet    string              `json:"wallet"`
	Kind      string              `json:"kind"`
	Amount    int64               `json:"amount"`
	Reason    string              `json:"reason"`
	Metadata  *model.EarnMetadata `json:"metadata,omitempty"`
	CreatedAt string              `json:"created_at"`
}

func toTransactionResponse(trx *model.PointTransaction) transactionResponse {
	return transactionResponse{
		ID:        trx.ID,
		Wallet:    trx.Wallet,
		Kind:      string(trx.Kind),
		Amount:    trx.Amount,
		Reason:    trx.Reason,
		Metadata:  trx.Metadata,
		CreatedAt: trx.CreatedAt.Format(time.RFC3339),
	}
}

// GetPoints возвращает счёт баллов кошелька.
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !validation.IsValidWalletAddress(address) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	account, err := h.service.GetUserPoints(r.Context(), address)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// GetPointsStats возвращает сводную статистику активности кошелька.
func (h *Handler) GetPointsStats(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !validation.IsValidWalletAddress(address) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	stats, err := h.service.GetUserStats(r.Context(), address)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, struct {
		Account              accountResponse   `json:"account"`
		TotalVotes           int               `json:"total_votes"`
		UniqueDAOs           int               `json:"unique_daos"`
		AveragePointsPerVote int64             `json:"average_points_per_vote"`
		Level                service.LevelInfo `json:"level"`
	}{
		Account:              toAccountResponse(stats.Account),
		TotalVotes:           stats.TotalVotes,
		UniqueDAOs:           stats.UniqueDAOs,
		AveragePointsPerVote: stats.AveragePointsPerVote,
		Level:                stats.Level,
	})
}

// GetPointsHistory возвращает журнал операций кошелька.
func (h *Handler) GetPointsHistory(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !validation.IsValidWalletAddress(address) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	transactions, err := h.service.GetUserTransactions(r.Context(), address, queryLimit(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for i := range transactions {
		resp = append(resp, toTransactionResponse(&transactions[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetLeaderboard возвращает таблицу лидеров по заработанным баллам.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.GetLeaderboard(r.Context(), queryLimit(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	resp := make([]accountResponse, 0, len(accounts))
	for i := range accounts {
		resp = append(resp, toAccountResponse(&accounts[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetPlatformStats возвращает сводную статистику платформы.
func (h *Handler) GetPlatformStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetPlatformStats(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

type awardRequest struct {
	Wallet     string `json:"wallet"`
	ProposalID string `json:"proposal_id"`
	DAOID      string `json:"dao_id"`
	EarlyVote  bool   `json:"early_vote"`
}

// AwardPoints начисляет баллы за подтверждённый голос. Вызывается
// подсистемой голосования один раз на каждый подтверждённый голос.
func (h *Handler) AwardPoints(w http.ResponseWriter, r *http.Request) {
	var req awardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.ProposalID == "" || req.DAOID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidWalletAddress(req.Wallet) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	trx, err := h.service.AwardVotePoints(r.Context(), req.Wallet, req.ProposalID, req.DAOID, req.EarlyVote)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toTransactionResponse(trx))
}

type redeemPointsRequest struct {
	Wallet string `json:"wallet"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// RedeemPoints списывает доступные баллы со счёта кошелька.
func (h *Handler) RedeemPoints(w http.ResponseWriter, r *http.Request) {
	var req redeemPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidWalletAddress(req.Wallet) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	trx, err := h.service.RedeemPoints(r.Context(), req.Wallet, req.Amount, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toTransactionResponse(trx))
}

type bonusRequest struct {
	Wallet string `json:"wallet"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// AwardBonus начисляет бонусные баллы. Операторская операция.
func (h *Handler) AwardBonus(w http.ResponseWriter, r *http.Request) {
	var req bonusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidWalletAddress(req.Wallet) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	trx, err := h.service.AwardBonusPoints(r.Context(), req.Wallet, req.Amount, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toTransactionResponse(trx))
}

// ListDAOs возвращает каталог отслеживаемых DAO.
func (h *Handler) ListDAOs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.ListDAOs())
}

// GetDAOTier возвращает уровень DAO и базовые баллы за голос.
func (h *Handler) GetDAOTier(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.DAOTier(chi.URLParam(r, "id")))
}
