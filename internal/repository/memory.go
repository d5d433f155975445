package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/govpoints-system/internal/model"
	"github.com/mmeshcher/govpoints-system/internal/points"
)

// MemoryRepository хранит данные в памяти процесса. Используется в режиме
// разработки (пустой DATABASE_URI) и в тестах. Все операции выполняются
// под общим мьютексом, что даёт посерийность изменений каждого счёта.
type MemoryRepository struct {
	mu sync.Mutex

	accounts     map[string]*model.PointsAccount
	accountOrder []string
	transactions []model.PointTransaction
	votes        map[string]struct{}

	rewards     map[string]*model.RewardItem
	rewardOrder []string

	redemptions    map[string]*model.Redemption
	redemptionList []string

	pool model.RewardPool
}

// NewMemoryRepository создаёт пустое in-memory хранилище с указанным
// бюджетом пула вознаграждений.
func NewMemoryRepository(initialBudget int64) *MemoryRepository {
	return &MemoryRepository{
		accounts:    make(map[string]*model.PointsAccount),
		votes:       make(map[string]struct{}),
		rewards:     make(map[string]*model.RewardItem),
		redemptions: make(map[string]*model.Redemption),
		pool: model.RewardPool{
			TotalBudget: initialBudget,
			Remaining:   initialBudget,
		},
	}
}

// Close освобождает ресурсы хранилища.
func (r *MemoryRepository) Close() error {
	return nil
}

func (r *MemoryRepository) getOrCreateLocked(wallet string) *model.PointsAccount {
	if a, ok := r.accounts[wallet]; ok {
		return a
	}

	a := &model.PointsAccount{
		Wallet:    wallet,
		Level:     1,
		CreatedAt: time.Now().UTC(),
	}
	r.accounts[wallet] = a
	r.accountOrder = append(r.accountOrder, wallet)
	return a
}

// GetOrCreateAccount возвращает счёт баллов кошелька, при отсутствии создаёт
// пустой счёт первого уровня.
func (r *MemoryRepository) GetOrCreateAccount(_ context.Context, wallet string) (*model.PointsAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := *r.getOrCreateLocked(wallet)
	return &a, nil
}

func (r *MemoryRepository) appendTransactionLocked(trx model.PointTransaction) {
	r.transactions = append(r.transactions, trx)
}

// AwardVote начисляет баллы за подтверждённый голос.
func (r *MemoryRepository) AwardVote(_ context.Context, award VoteAward) (*model.PointTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	voteKey := award.Wallet + "|" + award.ProposalID
	if _, ok := r.votes[voteKey]; ok {
		return nil, fmt.Errorf("%w: proposal %s", ErrDuplicateVote, award.ProposalID)
	}

	a := r.getOrCreateLocked(award.Wallet)
	now := time.Now().UTC()

	a.Streak = points.AdvanceStreak(a.LastActivityAt, now, a.Streak)
	breakdown := points.ComputeAward(award.Base, award.EarlyVote, a.Streak)

	a.TotalPoints += breakdown.Total
	a.AvailablePoints += breakdown.Total
	a.LastActivityAt = now
	a.Level = points.LevelFor(a.TotalPoints)

	trx := model.PointTransaction{
		ID:     uuid.NewString(),
		Wallet: award.Wallet,
		Kind:   model.TransactionEarn,
		Amount: breakdown.Total,
		Reason: award.Reason,
		Metadata: &model.EarnMetadata{
			ProposalID:     award.ProposalID,
			DAOID:          award.DAOID,
			DAOTier:        award.DAOTier,
			EarlyVoteBonus: award.EarlyVote,
			StreakBonus:    breakdown.StreakPercent,
		},
		CreatedAt: now,
	}

	r.votes[voteKey] = struct{}{}
	r.appendTransactionLocked(trx)

	return &trx, nil
}

func (r *MemoryRepository) debitLocked(wallet string, amount int64, reason string) (*model.PointTransaction, error) {
	a := r.getOrCreateLocked(wallet)

	if a.AvailablePoints < amount {
		return nil, fmt.Errorf("%w: available %d, required %d", ErrInsufficientPoints, a.AvailablePoints, amount)
	}

	a.AvailablePoints -= amount
	a.RedeemedPoints += amount

	trx := model.PointTransaction{
		ID:        uuid.NewString(),
		Wallet:    wallet,
		Kind:      model.TransactionRedeem,
		Amount:    -amount,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	r.appendTransactionLocked(trx)

	return &trx, nil
}

// DebitPoints списывает баллы со счёта.
func (r *MemoryRepository) DebitPoints(_ context.Context, wallet string, amount int64, reason string) (*model.PointTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.debitLocked(wallet, amount, reason)
}

func (r *MemoryRepository) creditBonusLocked(wallet string, amount int64, reason string) *model.PointTransaction {
	a := r.getOrCreateLocked(wallet)

	a.TotalPoints += amount
	a.AvailablePoints += amount
	a.Level = points.LevelFor(a.TotalPoints)

	trx := model.PointTransaction{
		ID:        uuid.NewString(),
		Wallet:    wallet,
		Kind:      model.TransactionBonus,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	r.appendTransactionLocked(trx)

	return &trx
}

// CreditBonus безусловно начисляет бонусные баллы на счёт кошелька.
func (r *MemoryRepository) CreditBonus(_ context.Context, wallet string, amount int64, reason string) (*model.PointTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.creditBonusLocked(wallet, amount, reason), nil
}

// TransactionsByWallet возвращает журнал операций кошелька, новые записи первыми.
func (r *MemoryRepository) TransactionsByWallet(_ context.Context, wallet string, limit int) ([]model.PointTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.PointTransaction
	for i := len(r.transactions) - 1; i >= 0 && len(res) < limit; i-- {
		if r.transactions[i].Wallet == wallet {
			res = append(res, r.transactions[i])
		}
	}

	return res, nil
}

// Leaderboard возвращает счета с наибольшим числом заработанных баллов.
// При равенстве баллов порядок создания счетов сохраняется.
func (r *MemoryRepository) Leaderboard(_ context.Context, limit int) ([]model.PointsAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]model.PointsAccount, 0, len(r.accountOrder))
	for _, wallet := range r.accountOrder {
		res = append(res, *r.accounts[wallet])
	}

	sort.SliceStable(res, func(i, j int) bool {
		return res[i].TotalPoints > res[j].TotalPoints
	})

	if len(res) > limit {
		res = res[:limit]
	}

	return res, nil
}

// AccountStatsSummary возвращает сводные показатели по всем счетам.
func (r *MemoryRepository) AccountStatsSummary(_ context.Context) (*AccountStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &AccountStats{ByLevel: make(map[int]int64)}
	for _, a := range r.accounts {
		stats.Accounts++
		stats.ByLevel[a.Level]++
		stats.TotalPoints += a.TotalPoints
		stats.RedeemedPoints += a.RedeemedPoints
	}

	for _, trx := range r.transactions {
		if trx.Kind == model.TransactionEarn && trx.Metadata != nil && trx.Metadata.ProposalID != "" {
			stats.Votes++
		}
	}

	return stats, nil
}

// ListRewards возвращает позиции каталога по фильтру, отсортированные
// по возрастанию стоимости в баллах.
func (r *MemoryRepository) ListRewards(_ context.Context, filter model.RewardFilter) ([]model.RewardItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.RewardItem
	for _, id := range r.rewardOrder {
		item := r.rewards[id]
		if filter.Type != "" && item.Type != filter.Type {
			continue
		}
		if filter.ActiveOnly && (!item.IsActive || !item.HasStock()) {
			continue
		}
		if filter.MaxPointsCost > 0 && item.PointsCost > filter.MaxPointsCost {
			continue
		}
		res = append(res, *item)
	}

	sort.SliceStable(res, func(i, j int) bool {
		return res[i].PointsCost < res[j].PointsCost
	})

	return res, nil
}

// GetReward возвращает позицию каталога по идентификатору.
func (r *MemoryRepository) GetReward(_ context.Context, id string) (*model.RewardItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.rewards[id]
	if !ok {
		return nil, ErrRewardNotFound
	}

	res := *item
	return &res, nil
}

// AddReward добавляет позицию в каталог; занятый идентификатор — ошибка.
func (r *MemoryRepository) AddReward(_ context.Context, item *model.RewardItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rewards[item.ID]; ok {
		return fmt.Errorf("%w: %s", ErrRewardExists, item.ID)
	}

	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	stored := *item
	r.rewards[item.ID] = &stored
	r.rewardOrder = append(r.rewardOrder, item.ID)

	return nil
}

// UpdateReward частично обновляет позицию каталога.
func (r *MemoryRepository) UpdateReward(_ context.Context, id string, patch model.RewardPatch) (*model.RewardItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.rewards[id]
	if !ok {
		return nil, ErrRewardNotFound
	}

	if patch.Name != nil {
		item.Name = *patch.Name
	}
	if patch.Description != nil {
		item.Description = *patch.Description
	}
	if patch.PointsCost != nil {
		item.PointsCost = *patch.PointsCost
	}
	if patch.Stock != nil {
		item.Stock = *patch.Stock
	}
	if patch.IsActive != nil {
		item.IsActive = *patch.IsActive
	}
	if patch.Metadata != nil {
		item.Metadata = *patch.Metadata
	}
	item.UpdatedAt = time.Now().UTC()

	res := *item
	return &res, nil
}

// CreateRedemption проводит обмен баллов на вознаграждение: проверки позиции
// в фиксированном порядке, списание, уменьшение запаса, учёт в пуле.
func (r *MemoryRepository) CreateRedemption(_ context.Context, wallet, rewardID string) (*model.Redemption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.rewards[rewardID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRewardNotFound, rewardID)
	}
	if !item.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrRewardInactive, rewardID)
	}
	if item.Stock == 0 {
		return nil, fmt.Errorf("%w: %s", ErrOutOfStock, rewardID)
	}

	if _, err := r.debitLocked(wallet, item.PointsCost, model.RedeemReason(item.Name)); err != nil {
		return nil, err
	}

	if item.Stock > 0 {
		item.Stock--
	}

	r.pool.Distributed += item.PointsCost
	r.pool.Remaining -= item.PointsCost

	now := time.Now().UTC()
	red := &model.Redemption{
		ID:          uuid.NewString(),
		Wallet:      wallet,
		RewardID:    rewardID,
		RewardName:  item.Name,
		RewardType:  item.Type,
		PointsSpent: item.PointsCost,
		Status:      model.RedemptionPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.redemptions[red.ID] = red
	r.redemptionList = append(r.redemptionList, red.ID)

	res := *red
	return &res, nil
}

// MarkRedemptionProcessing переводит обмен из pending в processing.
func (r *MemoryRepository) MarkRedemptionProcessing(_ context.Context, id string) (*model.Redemption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	red, ok := r.redemptions[id]
	if !ok {
		return nil, ErrRedemptionNotFound
	}

	if red.Status != model.RedemptionPending {
		return nil, fmt.Errorf("%w: status %s", ErrAlreadyProcessed, red.Status)
	}

	red.Status = model.RedemptionProcessing
	red.UpdatedAt = time.Now().UTC()

	res := *red
	return &res, nil
}

// FinishRedemption фиксирует результат исполнения обмена. Баллы при неудаче
// не возвращаются, возврат выполняется только явной отменой.
func (r *MemoryRepository) FinishRedemption(_ context.Context, id string, fulfillment *model.Fulfillment, errMsg string) (*model.Redemption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	red, ok := r.redemptions[id]
	if !ok {
		return nil, ErrRedemptionNotFound
	}

	now := time.Now().UTC()
	red.UpdatedAt = now

	if errMsg != "" {
		red.Status = model.RedemptionFailed
		red.ErrorMsg = errMsg
	} else {
		red.Status = model.RedemptionCompleted
		red.Fulfillment = fulfillment
		red.CompletedAt = &now
	}

	res := *red
	return &res, nil
}

// CancelRedemption отменяет обмен с возвратом баллов и восстановлением запаса.
func (r *MemoryRepository) CancelRedemption(_ context.Context, id string) (*model.Redemption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	red, ok := r.redemptions[id]
	if !ok {
		return nil, ErrRedemptionNotFound
	}

	switch red.Status {
	case model.RedemptionCompleted:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyCompleted, id)
	case model.RedemptionCancelled:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyCancelled, id)
	}

	r.creditBonusLocked(red.Wallet, red.PointsSpent, model.RefundReason(red.RewardName))

	if item, ok := r.rewards[red.RewardID]; ok && item.Stock >= 0 {
		item.Stock++
	}

	r.pool.Distributed -= red.PointsSpent
	r.pool.Remaining += red.PointsSpent

	red.Status = model.RedemptionCancelled
	red.UpdatedAt = time.Now().UTC()

	res := *red
	return &res, nil
}

// GetRedemption возвращает запись обмена по идентификатору.
func (r *MemoryRepository) GetRedemption(_ context.Context, id string) (*model.Redemption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	red, ok := r.redemptions[id]
	if !ok {
		return nil, ErrRedemptionNotFound
	}

	res := *red
	return &res, nil
}

// RedemptionsByWallet возвращает историю обменов кошелька, новые записи первыми.
func (r *MemoryRepository) RedemptionsByWallet(_ context.Context, wallet string, limit int) ([]model.Redemption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Redemption
	for i := len(r.redemptionList) - 1; i >= 0 && len(res) < limit; i-- {
		red := r.redemptions[r.redemptionList[i]]
		if red.Wallet == wallet {
			res = append(res, *red)
		}
	}

	return res, nil
}

// ListRedemptions возвращает историю обменов по фильтру, новые записи первыми.
func (r *MemoryRepository) ListRedemptions(_ context.Context, filter model.RedemptionFilter) ([]model.Redemption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Redemption
	for i := len(r.redemptionList) - 1; i >= 0; i-- {
		red := r.redemptions[r.redemptionList[i]]
		if filter.Status != "" && red.Status != filter.Status {
			continue
		}
		if filter.Type != "" && red.RewardType != filter.Type {
			continue
		}
		res = append(res, *red)
		if filter.Limit > 0 && len(res) >= filter.Limit {
			break
		}
	}

	return res, nil
}

// RedemptionStatsSummary возвращает сводные показатели по обменам.
func (r *MemoryRepository) RedemptionStatsSummary(_ context.Context) (*RedemptionStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &RedemptionStats{
		ByStatus: make(map[model.RedemptionStatus]int64),
		ByType:   make(map[model.RewardType]int64),
	}

	for _, id := range r.redemptionList {
		red := r.redemptions[id]
		stats.Total++
		stats.ByStatus[red.Status]++
		stats.ByType[red.RewardType]++
	}

	return stats, nil
}

// GetPool возвращает состояние пула вознаграждений.
func (r *MemoryRepository) GetPool(_ context.Context) (*model.RewardPool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pool := r.pool
	return &pool, nil
}

// IncreaseBudget увеличивает общий бюджет пула вознаграждений.
func (r *MemoryRepository) IncreaseBudget(_ context.Context, amount int64) (*model.RewardPool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pool.TotalBudget += amount
	r.pool.Remaining += amount

	pool := r.pool
	return &pool, nil
}

// ReconcilePool пересчитывает распределённые баллы по журналу обменов.
func (r *MemoryRepository) ReconcilePool(_ context.Context) (*model.RewardPool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var distributed int64
	for _, id := range r.redemptionList {
		red := r.redemptions[id]
		if red.Status != model.RedemptionCancelled {
			distributed += red.PointsSpent
		}
	}

	r.pool.Distributed = distributed
	r.pool.Remaining = r.pool.TotalBudget - distributed

	pool := r.pool
	return &pool, nil
}
