// Package model содержит доменные сущности сервиса govpoints.
package model

import "time"

// PointsAccount представляет счёт баллов, привязанный к адресу кошелька.
// Адрес нормализуется к нижнему регистру и служит идентификатором счёта.
type PointsAccount struct {
	Wallet          string
	TotalPoints     int64
	AvailablePoints int64
	RedeemedPoints  int64
	Level           int
	Streak          int
	LastActivityAt  time.Time
	CreatedAt       time.Time
}

// TransactionKind описывает тип операции со счётом баллов.
type TransactionKind string

const (
	TransactionEarn   TransactionKind = "earn"
	TransactionRedeem TransactionKind = "redeem"
	TransactionBonus  TransactionKind = "bonus"
)

// EarnMetadata содержит сведения о начислении за голосование.
// Заполняется только для операций типа earn.
type EarnMetadata struct {
	ProposalID     string `json:"proposal_id,omitempty"`
	DAOID          string `json:"dao_id,omitempty"`
	DAOTier        int    `json:"dao_tier,omitempty"`
	EarlyVoteBonus bool   `json:"early_vote_bonus,omitempty"`
	StreakBonus    int    `json:"streak_bonus,omitempty"`
}

// PointTransaction описывает запись журнала операций со счётом.
// Записи неизменяемы: журнал только дополняется.
type PointTransaction struct {
	ID        string
	Wallet    string
	Kind      TransactionKind
	Amount    int64
	Reason    string
	Metadata  *EarnMetadata
	CreatedAt time.Time
}

// RewardType описывает тип вознаграждения в каталоге.
type RewardType string

const (
	RewardToken   RewardType = "token"
	RewardNFT     RewardType = "nft"
	RewardVoucher RewardType = "voucher"
	RewardCash    RewardType = "cash"
	RewardBenefit RewardType = "benefit"
)

// UnlimitedStock — значение поля Stock для неограниченного запаса.
const UnlimitedStock = -1

// TokenMetadata описывает параметры токенового вознаграждения.
type TokenMetadata struct {
	TokenAddress string `json:"token_address"`
	TokenAmount  string `json:"token_amount"`
	TokenSymbol  string `json:"token_symbol"`
	Chain        string `json:"chain"`
}

// NFTMetadata описывает параметры NFT-вознаграждения.
type NFTMetadata struct {
	Contract string `json:"contract"`
	TokenID  string `json:"token_id,omitempty"`
	Standard string `json:"standard"`
	Chain    string `json:"chain"`
}

// VoucherMetadata описывает параметры ваучера или привилегии.
type VoucherMetadata struct {
	ExpiresAt    string `json:"expires_at,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// CashMetadata описывает параметры денежного вознаграждения.
type CashMetadata struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// RewardMetadata содержит параметры вознаграждения, зависящие от его типа.
// Заполняется ровно одно поле, соответствующее типу вознаграждения.
type RewardMetadata struct {
	Token   *TokenMetadata   `json:"token,omitempty"`
	NFT     *NFTMetadata     `json:"nft,omitempty"`
	Voucher *VoucherMetadata `json:"voucher,omitempty"`
	Cash    *CashMetadata    `json:"cash,omitempty"`
}

// RewardItem описывает позицию каталога вознаграждений.
type RewardItem struct {
	ID          string
	Name        string
	Description string
	Type        RewardType
	PointsCost  int64
	Stock       int64
	IsActive    bool
	Metadata    RewardMetadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasStock сообщает, доступна ли позиция для обмена по запасу.
func (r *RewardItem) HasStock() bool {
	return r.Stock == UnlimitedStock || r.Stock > 0
}

// RewardPatch описывает частичное обновление позиции каталога.
// Нулевой указатель означает «поле не меняется».
type RewardPatch struct {
	Name        *string
	Description *string
	PointsCost  *int64
	Stock       *int64
	IsActive    *bool
	Metadata    *RewardMetadata
}

// RedemptionStatus описывает статус жизненного цикла обмена баллов.
type RedemptionStatus string

const (
	RedemptionPending    RedemptionStatus = "pending"
	RedemptionProcessing RedemptionStatus = "processing"
	RedemptionCompleted  RedemptionStatus = "completed"
	RedemptionFailed     RedemptionStatus = "failed"
	RedemptionCancelled  RedemptionStatus = "cancelled"
)

// Fulfillment содержит результат исполнения обмена.
type Fulfillment struct {
	TxHash       string `json:"tx_hash,omitempty"`
	DeliveryCode string `json:"delivery_code,omitempty"`
}

// Redemption фиксирует одну попытку обмена баллов на вознаграждение.
// Снимок названия и типа вознаграждения делается в момент обмена
// и не зависит от последующих правок каталога.
type Redemption struct {
	ID          string
	Wallet      string
	RewardID    string
	RewardName  string
	RewardType  RewardType
	PointsSpent int64
	Status      RedemptionStatus
	Fulfillment *Fulfillment
	ErrorMsg    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// RewardPool содержит сводный бюджет вознаграждений платформы.
type RewardPool struct {
	TotalBudget int64 `json:"total_budget"`
	Distributed int64 `json:"distributed"`
	Remaining   int64 `json:"remaining"`
}

// RewardFilter описывает фильтры выборки каталога вознаграждений.
type RewardFilter struct {
	Type          RewardType
	ActiveOnly    bool
	MaxPointsCost int64
}

// RedemptionFilter описывает фильтры выборки истории обменов.
type RedemptionFilter struct {
	Status RedemptionStatus
	Type   RewardType
	Limit  int
}
