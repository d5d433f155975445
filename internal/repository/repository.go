// Package repository содержит реализации хранилища данных сервиса govpoints:
// PostgreSQL для боевого режима и in-memory для разработки и тестов.
package repository

import (
	"errors"

	"github.com/mmeshcher/govpoints-system/internal/model"
)

// ErrInsufficientPoints возвращается при попытке списать больше доступных баллов.
var (
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrDuplicateVote возвращается при повторном начислении за тот же голос.
	ErrDuplicateVote = errors.New("vote already rewarded")
	// ErrRewardNotFound возвращается, если позиция каталога не найдена.
	ErrRewardNotFound = errors.New("reward not found")
	// ErrRewardExists возвращается при добавлении позиции с занятым идентификатором.
	ErrRewardExists = errors.New("reward already exists")
	// ErrRewardInactive возвращается при обмене на отключённую позицию.
	ErrRewardInactive = errors.New("reward is not active")
	// ErrOutOfStock возвращается при обмене на позицию с исчерпанным запасом.
	ErrOutOfStock = errors.New("reward is out of stock")
	// ErrRedemptionNotFound возвращается, если запись обмена не найдена.
	ErrRedemptionNotFound = errors.New("redemption not found")
	// ErrAlreadyProcessed возвращается при повторной обработке обмена.
	ErrAlreadyProcessed = errors.New("redemption already processed")
	// ErrAlreadyCompleted возвращается при отмене завершённого обмена.
	ErrAlreadyCompleted = errors.New("redemption already completed")
	// ErrAlreadyCancelled возвращается при повторной отмене обмена.
	ErrAlreadyCancelled = errors.New("redemption already cancelled")
)

// VoteAward описывает параметры начисления баллов за подтверждённый голос.
// Базовые баллы и признак раннего голоса определяет вызывающая сторона;
// надбавка за серию дней рассчитывается внутри транзакции хранилища.
type VoteAward struct {
	Wallet     string
	Base       int64
	EarlyVote  bool
	ProposalID string
	DAOID      string
	DAOTier    int
	Reason     string
}

// AccountStats содержит сводные показатели по счетам баллов.
type AccountStats struct {
	Accounts       int64
	ByLevel        map[int]int64
	TotalPoints    int64
	RedeemedPoints int64
	Votes          int64
}

// RedemptionStats содержит сводные показатели по обменам.
type RedemptionStats struct {
	Total    int64
	ByStatus map[model.RedemptionStatus]int64
	ByType   map[model.RewardType]int64
}
