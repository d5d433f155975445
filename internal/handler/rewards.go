package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mmeshcher/govpoints-system/internal/model"
	"github.com/mmeshcher/govpoints-system/internal/validation"
)

type rewardResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Type        string               `json:"type"`
	PointsCost  int64                `json:"points_cost"`
	Stock       int64                `json:"stock"`
	IsActive    bool                 `json:"is_active"`
	Metadata    model.RewardMetadata `json:"metadata"`
	CreatedAt   string               `json:"created_at"`
	UpdatedAt   string               `json:"updated_at"`
}

func toRewardResponse(item *model.RewardItem) rewardResponse {
	return rewardResponse{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		Type:        string(item.Type),
		PointsCost:  item.PointsCost,
		Stock:       item.Stock,
		IsActive:    item.IsActive,
		Metadata:    item.Metadata,
		CreatedAt:   item.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   item.UpdatedAt.Format(time.RFC3339),
	}
}

type redemptionResponse struct {
	ID          string             `json:"id"`
	Wallet      string             `json:"wallet"`
	RewardID    string             `json:"reward_id"`
	RewardName  string             `json:"reward_name"`
	RewardType  string             `json:"reward_type"`
	PointsSpent int64              `json:"points_spent"`
	Status      string             `json:"status"`
	Fulfillment *model.Fulfillment `json:"fulfillment,omitempty"`
	ErrorMsg    string             `json:"error_message,omitempty"`
	CreatedAt   string             `json:"created_at"`
	UpdatedAt   string             `json:"updated_at"`
	CompletedAt string             `json:"completed_at,omitempty"`
}

func toRedemptionResponse(red *model.Redemption) redemptionResponse {
	resp := redemptionResponse{
		ID:          red.ID,
		Wallet:      red.Wallet,
		RewardID:    red.RewardID,
		RewardName:  red.RewardName,
		RewardType:  string(red.RewardType),
		PointsSpent: red.PointsSpent,
		Status:      string(red.Status),
		Fulfillment: red.Fulfillment,
		ErrorMsg:    red.ErrorMsg,
		CreatedAt:   red.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   red.UpdatedAt.Format(time.RFC3339),
	}
	if red.CompletedAt != nil {
		resp.CompletedAt = red.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

// ListRewards возвращает каталог вознаграждений. Поддерживаются фильтры
// type, active и max_points.
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := model.RewardFilter{
		Type:       model.RewardType(query.Get("type")),
		ActiveOnly: query.Get("active") == "true",
	}
	if v := query.Get("max_points"); v != "" {
		maxCost, err := strconv.ParseInt(v, 10, 64)
		if err != nil || maxCost < 0 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		filter.MaxPointsCost = maxCost
	}

	rewards, err := h.service.ListRewards(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}

	resp := make([]rewardResponse, 0, len(rewards))
	for i := range rewards {
		resp = append(resp, toRewardResponse(&rewards[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetReward возвращает позицию каталога по идентификатору.
func (h *Handler) GetReward(w http.ResponseWriter, r *http.Request) {
	reward, err := h.service.GetReward(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toRewardResponse(reward))
}

type addRewardRequest struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Type        string               `json:"type"`
	PointsCost  int64                `json:"points_cost"`
	Stock       int64                `json:"stock"`
	IsActive    *bool                `json:"is_active"`
	Metadata    model.RewardMetadata `json:"metadata"`
}

// AddReward добавляет позицию в каталог вознаграждений. Операторская операция.
func (h *Handler) AddReward(w http.ResponseWriter, r *http.Request) {
	var req addRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.Type == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	item := model.RewardItem{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Type:        model.RewardType(req.Type),
		PointsCost:  req.PointsCost,
		Stock:       req.Stock,
		IsActive:    true,
		Metadata:    req.Metadata,
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}

	if err := h.service.AddReward(r.Context(), &item); err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toRewardResponse(&item))
}

type updateRewardRequest struct {
	Name        *string               `json:"name"`
	Description *string               `json:"description"`
	PointsCost  *int64                `json:"points_cost"`
	Stock       *int64                `json:"stock"`
	IsActive    *bool                 `json:"is_active"`
	Metadata    *model.RewardMetadata `json:"metadata"`
}

// UpdateReward частично обновляет позицию каталога. Операторская операция.
func (h *Handler) UpdateReward(w http.ResponseWriter, r *http.Request) {
	var req updateRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	reward, err := h.service.UpdateReward(r.Context(), chi.URLParam(r, "id"), model.RewardPatch{
		Name:        req.Name,
		Description: req.Description,
		PointsCost:  req.PointsCost,
		Stock:       req.Stock,
		IsActive:    req.IsActive,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toRewardResponse(reward))
}

type redeemRequest struct {
	Wallet string `json:"wallet"`
}

// Redeem обменивает баллы кошелька на вознаграждение.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidWalletAddress(req.Wallet) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	red, err := h.service.Redeem(r.Context(), req.Wallet, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toRedemptionResponse(red))
}

// GetRedemption возвращает запись обмена по идентификатору.
func (h *Handler) GetRedemption(w http.ResponseWriter, r *http.Request) {
	red, err := h.service.GetRedemption(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toRedemptionResponse(red))
}

// GetUserRedemptions возвращает историю обменов кошелька.
func (h *Handler) GetUserRedemptions(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !validation.IsValidWalletAddress(address) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	redemptions, err := h.service.GetUserRedemptions(r.Context(), address, queryLimit(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	resp := make([]redemptionResponse, 0, len(redemptions))
	for i := range redemptions {
		resp = append(resp, toRedemptionResponse(&redemptions[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ListRedemptions возвращает историю обменов по фильтру. Операторская операция.
func (h *Handler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	redemptions, err := h.service.ListRedemptions(r.Context(), model.RedemptionFilter{
		Status: model.RedemptionStatus(query.Get("status")),
		Type:   model.RewardType(query.Get("type")),
		Limit:  queryLimit(r),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	resp := make([]redemptionResponse, 0, len(redemptions))
	for i := range redemptions {
		resp = append(resp, toRedemptionResponse(&redemptions[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ProcessRedemption исполняет ожидающий обмен. Операторская операция.
func (h *Handler) ProcessRedemption(w http.ResponseWriter, r *http.Request) {
	red, err := h.service.ProcessRedemption(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toRedemptionResponse(red))
}

// CancelRedemption отменяет обмен с возвратом баллов.
func (h *Handler) CancelRedemption(w http.ResponseWriter, r *http.Request) {
	red, err := h.service.CancelRedemption(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toRedemptionResponse(red))
}

// GetPool возвращает состояние пула вознаграждений.
func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := h.service.GetPool(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, pool)
}

type addBudgetRequest struct {
	Amount int64 `json:"amount"`
}

// AddBudget увеличивает бюджет пула вознаграждений. Операторская операция.
func (h *Handler) AddBudget(w http.ResponseWriter, r *http.Request) {
	var req addBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	pool, err := h.service.IncreaseBudget(r.Context(), req.Amount)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, pool)
}
