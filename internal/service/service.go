// Package service реализует бизнес-логику сервиса govpoints: начисление
// баллов за участие в голосованиях DAO, обмен баллов на вознаграждения
// и учёт бюджета пула вознаграждений.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mmeshcher/govpoints-system/internal/model"
	"github.com/mmeshcher/govpoints-system/internal/points"
	"github.com/mmeshcher/govpoints-system/internal/registry"
	"github.com/mmeshcher/govpoints-system/internal/repository"
	"github.com/mmeshcher/govpoints-system/internal/validation"
)

// ErrInvalidAmount возвращается при неположительной сумме операции.
var ErrInvalidAmount = errors.New("amount must be positive")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetOrCreateAccount(ctx context.Context, wallet string) (*model.PointsAccount, error)
	AwardVote(ctx context.Context, award repository.VoteAward) (*model.PointTransaction, error)
	DebitPoints(ctx context.Context, wallet string, amount int64, reason string) (*model.PointTransaction, error)
	CreditBonus(ctx context.Context, wallet string, amount int64, reason string) (*model.PointTransaction, error)
	TransactionsByWallet(ctx context.Context, wallet string, limit int) ([]model.PointTransaction, error)
	Leaderboard(ctx context.Context, limit int) ([]model.PointsAccount, error)
	AccountStatsSummary(ctx context.Context) (*repository.AccountStats, error)
	ListRewards(ctx context.Context, filter model.RewardFilter) ([]model.RewardItem, error)
	GetReward(ctx context.Context, id string) (*model.RewardItem, error)
	AddReward(ctx context.Context, item *model.RewardItem) error
	UpdateReward(ctx context.Context, id string, patch model.RewardPatch) (*model.RewardItem, error)
	CreateRedemption(ctx context.Context, wallet, rewardID string) (*model.Redemption, error)
	MarkRedemptionProcessing(ctx context.Context, id string) (*model.Redemption, error)
	FinishRedemption(ctx context.Context, id string, fulfillment *model.Fulfillment, errMsg string) (*model.Redemption, error)
	CancelRedemption(ctx context.Context, id string) (*model.Redemption, error)
	GetRedemption(ctx context.Context, id string) (*model.Redemption, error)
	RedemptionsByWallet(ctx context.Context, wallet string, limit int) ([]model.Redemption, error)
	ListRedemptions(ctx context.Context, filter model.RedemptionFilter) ([]model.Redemption, error)
	RedemptionStatsSummary(ctx context.Context) (*repository.RedemptionStats, error)
	GetPool(ctx context.Context) (*model.RewardPool, error)
	IncreaseBudget(ctx context.Context, amount int64) (*model.RewardPool, error)
	ReconcilePool(ctx context.Context) (*model.RewardPool, error)
}

const (
	defaultHistoryLimit     = 50
	defaultLeaderboardLimit = 100
)

// Service содержит бизнес-логику сервиса govpoints.
type Service struct {
	repo     Repository
	registry *registry.Registry
}

// NewService создаёт новый сервис с указанным репозиторием и реестром DAO.
func NewService(repo Repository, reg *registry.Registry) *Service {
	return &Service{
		repo:     repo,
		registry: reg,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// AwardVotePoints начисляет баллы за подтверждённый голос. База определяется
// уровнем DAO; признак раннего голоса задаёт вызывающая сторона. Повторное
// начисление за тот же голос отклоняется.
func (s *Service) AwardVotePoints(ctx context.Context, wallet, proposalID, daoID string, earlyVote bool) (*model.PointTransaction, error) {
	tier := s.registry.TierOf(daoID)

	return s.repo.AwardVote(ctx, repository.VoteAward{
		Wallet:     validation.NormalizeWallet(wallet),
		Base:       tier.BasePoints,
		EarlyVote:  earlyVote,
		ProposalID: proposalID,
		DAOID:      daoID,
		DAOTier:    tier.Tier,
		Reason:     model.VoteReason(daoID),
	})
}

// RedeemPoints списывает доступные баллы со счёта кошелька.
func (s *Service) RedeemPoints(ctx context.Context, wallet string, amount int64, reason string) (*model.PointTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.repo.DebitPoints(ctx, validation.NormalizeWallet(wallet), amount, reason)
}

// AwardBonusPoints безусловно начисляет бонусные баллы на счёт кошелька.
func (s *Service) AwardBonusPoints(ctx context.Context, wallet string, amount int64, reason string) (*model.PointTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.repo.CreditBonus(ctx, validation.NormalizeWallet(wallet), amount, reason)
}

// GetUserPoints возвращает счёт баллов кошелька, создавая его при отсутствии.
func (s *Service) GetUserPoints(ctx context.Context, wallet string) (*model.PointsAccount, error) {
	return s.repo.GetOrCreateAccount(ctx, validation.NormalizeWallet(wallet))
}

// LevelInfo описывает текущий уровень счёта и продвижение к следующему.
type LevelInfo struct {
	Level     int    `json:"level"`
	Name      string `json:"name"`
	NextName  string `json:"next_name,omitempty"`
	NextLevel int    `json:"next_level,omitempty"`
	Progress  int    `json:"progress"`
}

// UserStats содержит сводную статистику активности кошелька.
type UserStats struct {
	Account              *model.PointsAccount `json:"account"`
	TotalVotes           int                  `json:"total_votes"`
	UniqueDAOs           int                  `json:"unique_daos"`
	AveragePointsPerVote int64                `json:"average_points_per_vote"`
	Level                LevelInfo            `json:"level"`
}

// GetUserStats возвращает статистику активности кошелька по журналу операций.
func (s *Service) GetUserStats(ctx context.Context, wallet string) (*UserStats, error) {
	normalized := validation.NormalizeWallet(wallet)

	account, err := s.repo.GetOrCreateAccount(ctx, normalized)
	if err != nil {
		return nil, err
	}

	transactions, err := s.repo.TransactionsByWallet(ctx, normalized, defaultHistoryLimit)
	if err != nil {
		return nil, err
	}

	stats := &UserStats{Account: account}
	daos := make(map[string]struct{})
	for _, trx := range transactions {
		if trx.Kind != model.TransactionEarn || trx.Metadata == nil {
			continue
		}
		if trx.Metadata.ProposalID != "" {
			stats.TotalVotes++
		}
		if trx.Metadata.DAOID != "" {
			daos[trx.Metadata.DAOID] = struct{}{}
		}
	}
	stats.UniqueDAOs = len(daos)

	if stats.TotalVotes > 0 {
		stats.AveragePointsPerVote = account.TotalPoints / int64(stats.TotalVotes)
	}

	stats.Level = LevelInfo{
		Level:    account.Level,
		Name:     points.LevelName(account.Level),
		Progress: points.LevelProgress(account.TotalPoints),
	}
	if account.Level < points.MaxLevel() {
		stats.Level.NextLevel = account.Level + 1
		stats.Level.NextName = points.LevelName(account.Level + 1)
	}

	return stats, nil
}

// GetUserTransactions возвращает журнал операций кошелька, новые записи первыми.
func (s *Service) GetUserTransactions(ctx context.Context, wallet string, limit int) ([]model.PointTransaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.repo.TransactionsByWallet(ctx, validation.NormalizeWallet(wallet), limit)
}

// GetLeaderboard возвращает счета с наибольшим числом заработанных баллов.
func (s *Service) GetLeaderboard(ctx context.Context, limit int) ([]model.PointsAccount, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	return s.repo.Leaderboard(ctx, limit)
}

// ListRewards возвращает каталог вознаграждений по фильтру.
func (s *Service) ListRewards(ctx context.Context, filter model.RewardFilter) ([]model.RewardItem, error) {
	return s.repo.ListRewards(ctx, filter)
}

// GetReward возвращает позицию каталога по идентификатору.
func (s *Service) GetReward(ctx context.Context, id string) (*model.RewardItem, error) {
	return s.repo.GetReward(ctx, id)
}

// AddReward добавляет позицию в каталог вознаграждений.
func (s *Service) AddReward(ctx context.Context, item *model.RewardItem) error {
	if item.PointsCost <= 0 {
		return ErrInvalidAmount
	}
	return s.repo.AddReward(ctx, item)
}

// UpdateReward частично обновляет позицию каталога.
func (s *Service) UpdateReward(ctx context.Context, id string, patch model.RewardPatch) (*model.RewardItem, error) {
	if patch.PointsCost != nil && *patch.PointsCost <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.repo.UpdateReward(ctx, id, patch)
}

// Redeem обменивает баллы кошелька на вознаграждение. Ваучеры и привилегии
// исполняются сразу; токены и NFT остаются в статусе pending до отдельного
// шага обработки.
func (s *Service) Redeem(ctx context.Context, wallet, rewardID string) (*model.Redemption, error) {
	red, err := s.repo.CreateRedemption(ctx, validation.NormalizeWallet(wallet), rewardID)
	if err != nil {
		return nil, err
	}

	if red.RewardType == model.RewardVoucher || red.RewardType == model.RewardBenefit {
		return s.ProcessRedemption(ctx, red.ID)
	}

	return red, nil
}

// ProcessRedemption исполняет обмен: переводит его в processing, выполняет
// действие по типу вознаграждения и фиксирует результат. Внутренняя ошибка
// исполнения записывается в статус failed, баллы при этом не возвращаются.
func (s *Service) ProcessRedemption(ctx context.Context, id string) (*model.Redemption, error) {
	red, err := s.repo.MarkRedemptionProcessing(ctx, id)
	if err != nil {
		return nil, err
	}

	fulfillment, err := fulfill(red.RewardType)
	if err != nil {
		return s.repo.FinishRedemption(ctx, id, nil, err.Error())
	}

	return s.repo.FinishRedemption(ctx, id, fulfillment, "")
}

// fulfill выполняет действие по типу вознаграждения: для токенов и NFT —
// расчётную ссылку (хэш транзакции при боевой интеграции с сетью), для
// ваучеров и привилегий — код выдачи; денежная выплата проводится вне сервиса.
func fulfill(rewardType model.RewardType) (*model.Fulfillment, error) {
	switch rewardType {
	case model.RewardToken, model.RewardNFT:
		hash, err := randomTxHash()
		if err != nil {
			return nil, err
		}
		return &model.Fulfillment{TxHash: hash}, nil
	case model.RewardVoucher, model.RewardBenefit:
		code, err := randomVoucherCode()
		if err != nil {
			return nil, err
		}
		return &model.Fulfillment{DeliveryCode: code}, nil
	case model.RewardCash:
		return &model.Fulfillment{}, nil
	default:
		return nil, fmt.Errorf("unknown reward type: %s", rewardType)
	}
}

func randomTxHash() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate tx hash: %w", err)
	}
	return "0x" + hex.EncodeToString(buf), nil
}

const voucherAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func randomVoucherCode() (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate voucher code: %w", err)
	}
	for i, b := range buf {
		buf[i] = voucherAlphabet[int(b)%len(voucherAlphabet)]
	}
	return "VOUCHER-" + string(buf), nil
}

// CancelRedemption отменяет обмен с возвратом баллов. Завершённый обмен
// отменить нельзя.
func (s *Service) CancelRedemption(ctx context.Context, id string) (*model.Redemption, error) {
	return s.repo.CancelRedemption(ctx, id)
}

// GetRedemption возвращает запись обмена по идентификатору.
func (s *Service) GetRedemption(ctx context.Context, id string) (*model.Redemption, error) {
	return s.repo.GetRedemption(ctx, id)
}

// GetUserRedemptions возвращает историю обменов кошелька.
func (s *Service) GetUserRedemptions(ctx context.Context, wallet string, limit int) ([]model.Redemption, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.repo.RedemptionsByWallet(ctx, validation.NormalizeWallet(wallet), limit)
}

// ListRedemptions возвращает историю обменов по фильтру.
func (s *Service) ListRedemptions(ctx context.Context, filter model.RedemptionFilter) ([]model.Redemption, error) {
	return s.repo.ListRedemptions(ctx, filter)
}

// GetPool возвращает состояние пула вознаграждений.
func (s *Service) GetPool(ctx context.Context) (*model.RewardPool, error) {
	return s.repo.GetPool(ctx)
}

// IncreaseBudget увеличивает бюджет пула вознаграждений.
func (s *Service) IncreaseBudget(ctx context.Context, amount int64) (*model.RewardPool, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.repo.IncreaseBudget(ctx, amount)
}

// ReconcilePool пересчитывает счётчики пула по журналу обменов.
func (s *Service) ReconcilePool(ctx context.Context) (*model.RewardPool, error) {
	return s.repo.ReconcilePool(ctx)
}

// ListDAOs возвращает каталог отслеживаемых DAO.
func (s *Service) ListDAOs() []registry.DAO {
	return s.registry.ListAll()
}

// DAOTier возвращает уровень DAO и базовые баллы за голос.
func (s *Service) DAOTier(id string) registry.Tier {
	return s.registry.TierOf(id)
}

// LevelCount описывает число счетов на одном уровне.
type LevelCount struct {
	Level int    `json:"level"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// PlatformStats содержит сводную статистику платформы.
type PlatformStats struct {
	Accounts         int64                            `json:"accounts"`
	AccountsByLevel  []LevelCount                     `json:"accounts_by_level"`
	PointsEarned     int64                            `json:"points_earned"`
	PointsRedeemed   int64                            `json:"points_redeemed"`
	TotalVotes       int64                            `json:"total_votes"`
	Redemptions      int64                            `json:"redemptions"`
	RedemptionStatus map[model.RedemptionStatus]int64 `json:"redemptions_by_status"`
	RedemptionTypes  map[model.RewardType]int64       `json:"redemptions_by_type"`
	Pool             *model.RewardPool                `json:"pool"`
}

// GetPlatformStats возвращает сводную статистику по счетам, обменам и пулу.
func (s *Service) GetPlatformStats(ctx context.Context) (*PlatformStats, error) {
	accounts, err := s.repo.AccountStatsSummary(ctx)
	if err != nil {
		return nil, err
	}

	redemptions, err := s.repo.RedemptionStatsSummary(ctx)
	if err != nil {
		return nil, err
	}

	pool, err := s.repo.GetPool(ctx)
	if err != nil {
		return nil, err
	}

	stats := &PlatformStats{
		Accounts:         accounts.Accounts,
		PointsEarned:     accounts.TotalPoints,
		PointsRedeemed:   accounts.RedeemedPoints,
		TotalVotes:       accounts.Votes,
		Redemptions:      redemptions.Total,
		RedemptionStatus: redemptions.ByStatus,
		RedemptionTypes:  redemptions.ByType,
		Pool:             pool,
	}

	for level := 1; level <= points.MaxLevel(); level++ {
		stats.AccountsByLevel = append(stats.AccountsByLevel, LevelCount{
			Level: level,
			Name:  points.LevelName(level),
			Count: accounts.ByLevel[level],
		})
	}

	return stats, nil
}
