package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/mmeshcher/govpoints-system/internal/model"
)

const (
	testWallet      = "0x742d35cc6634c0532925a3b844bc9e7595f8fa8b"
	otherTestWallet = "0x1111111111111111111111111111111111111111"
)

func newTestRepo() *MemoryRepository {
	return NewMemoryRepository(1_000_000)
}

func award(t *testing.T, repo *MemoryRepository, wallet, proposalID string, base int64, earlyVote bool) *model.PointTransaction {
	t.Helper()

	trx, err := repo.AwardVote(context.Background(), VoteAward{
		Wallet:     wallet,
		Base:       base,
		EarlyVote:  earlyVote,
		ProposalID: proposalID,
		DAOID:      "aave.eth",
		DAOTier:    1,
		Reason:     model.VoteReason("aave.eth"),
	})
	if err != nil {
		t.Fatalf("AwardVote error: %v", err)
	}
	return trx
}

func addTestReward(t *testing.T, repo *MemoryRepository, id string, cost, stock int64) {
	t.Helper()

	err := repo.AddReward(context.Background(), &model.RewardItem{
		ID:         id,
		Name:       "Test Reward " + id,
		Type:       model.RewardToken,
		PointsCost: cost,
		Stock:      stock,
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("AddReward error: %v", err)
	}
}

func TestAwardVote_EarlyVoteBonus(t *testing.T) {
	repo := newTestRepo()

	trx := award(t, repo, testWallet, "prop-1", 100, true)
	if trx.Amount != 120 {
		t.Fatalf("Amount = %d, want 120 (base 100 + 20%% early vote)", trx.Amount)
	}
	if trx.Metadata == nil || !trx.Metadata.EarlyVoteBonus {
		t.Fatalf("earn metadata must record the early vote bonus")
	}

	account, err := repo.GetOrCreateAccount(context.Background(), testWallet)
	if err != nil {
		t.Fatalf("GetOrCreateAccount error: %v", err)
	}
	if account.TotalPoints != 120 || account.AvailablePoints != 120 {
		t.Fatalf("account = %d/%d, want 120/120", account.TotalPoints, account.AvailablePoints)
	}
	if account.Streak != 1 {
		t.Fatalf("Streak = %d, want 1 after first vote", account.Streak)
	}
}

func TestAwardVote_DuplicateProposalRejected(t *testing.T) {
	repo := newTestRepo()

	award(t, repo, testWallet, "prop-1", 100, false)

	_, err := repo.AwardVote(context.Background(), VoteAward{
		Wallet:     testWallet,
		Base:       100,
		ProposalID: "prop-1",
		DAOID:      "aave.eth",
		DAOTier:    1,
	})
	if !errors.Is(err, ErrDuplicateVote) {
		t.Fatalf("expected ErrDuplicateVote, got %v", err)
	}

	// Повторный голос не должен менять счёт.
	account, _ := repo.GetOrCreateAccount(context.Background(), testWallet)
	if account.TotalPoints != 100 {
		t.Fatalf("TotalPoints = %d, want 100", account.TotalPoints)
	}

	// Тот же proposal от другого кошелька проходит.
	if trx := award(t, repo, otherTestWallet, "prop-1", 100, false); trx.Amount != 100 {
		t.Fatalf("Amount = %d, want 100", trx.Amount)
	}
}

func TestAwardVote_SameDayKeepsStreak(t *testing.T) {
	repo := newTestRepo()

	award(t, repo, testWallet, "prop-1", 100, false)
	trx := award(t, repo, testWallet, "prop-2", 100, false)

	// Обе операции в один день: серия остаётся 1, надбавки за серию нет.
	if trx.Amount != 100 {
		t.Fatalf("Amount = %d, want 100 without streak bonus", trx.Amount)
	}

	account, _ := repo.GetOrCreateAccount(context.Background(), testWallet)
	if account.Streak != 1 {
		t.Fatalf("Streak = %d, want 1", account.Streak)
	}
}

func TestDebitPoints_Insufficient(t *testing.T) {
	repo := newTestRepo()

	award(t, repo, testWallet, "prop-1", 100, false)

	_, err := repo.DebitPoints(context.Background(), testWallet, 500, "manual")
	if !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}

	account, _ := repo.GetOrCreateAccount(context.Background(), testWallet)
	if account.AvailablePoints != 100 || account.RedeemedPoints != 0 {
		t.Fatalf("failed debit must not touch the account, got %d/%d", account.AvailablePoints, account.RedeemedPoints)
	}
}

func TestDebitPoints_RecordsNegativeAmount(t *testing.T) {
	repo := newTestRepo()

	award(t, repo, testWallet, "prop-1", 100, false)

	trx, err := repo.DebitPoints(context.Background(), testWallet, 40, "manual")
	if err != nil {
		t.Fatalf("DebitPoints error: %v", err)
	}
	if trx.Amount != -40 {
		t.Fatalf("Amount = %d, want -40", trx.Amount)
	}

	account, _ := repo.GetOrCreateAccount(context.Background(), testWallet)
	if account.TotalPoints != 100 || account.AvailablePoints != 60 || account.RedeemedPoints != 40 {
		t.Fatalf("account = %d/%d/%d, want 100/60/40", account.TotalPoints, account.AvailablePoints, account.RedeemedPoints)
	}
}

func TestCreditBonus_RaisesLevel(t *testing.T) {
	repo := newTestRepo()

	_, err := repo.CreditBonus(context.Background(), testWallet, 600, "promo")
	if err != nil {
		t.Fatalf("CreditBonus error: %v", err)
	}

	account, _ := repo.GetOrCreateAccount(context.Background(), testWallet)
	if account.Level != 2 {
		t.Fatalf("Level = %d, want 2 after 600 points", account.Level)
	}
	if account.Streak != 0 {
		t.Fatalf("bonus must not advance the activity streak, got %d", account.Streak)
	}
}

func TestTransactionsByWallet_NewestFirst(t *testing.T) {
	repo := newTestRepo()

	award(t, repo, testWallet, "prop-1", 100, false)
	award(t, repo, otherTestWallet, "prop-2", 100, false)
	if _, err := repo.DebitPoints(context.Background(), testWallet, 30, "manual"); err != nil {
		t.Fatalf("DebitPoints error: %v", err)
	}

	transactions, err := repo.TransactionsByWallet(context.Background(), testWallet, 10)
	if err != nil {
		t.Fatalf("TransactionsByWallet error: %v", err)
	}
	if len(transactions) != 2 {
		t.Fatalf("len = %d, want 2", len(transactions))
	}
	if transactions[0].Kind != model.TransactionRedeem || transactions[1].Kind != model.TransactionEarn {
		t.Fatalf("unexpected order: %s, %s", transactions[0].Kind, transactions[1].Kind)
	}
	if transactions[1].Metadata == nil {
		t.Fatalf("earn transaction must carry metadata")
	}
}

func TestLeaderboard_StableOnTies(t *testing.T) {
	repo := newTestRepo()

	award(t, repo, testWallet, "prop-1", 100, false)
	award(t, repo, otherTestWallet, "prop-2", 100, false)

	third := "0x2222222222222222222222222222222222222222"
	award(t, repo, third, "prop-3", 80, false)

	board, err := repo.Leaderboard(context.Background(), 10)
	if err != nil {
		t.Fatalf("Leaderboard error: %v", err)
	}
	if len(board) != 3 {
		t.Fatalf("len = %d, want 3", len(board))
	}
	// При равных баллах первым идёт счёт, созданный раньше.
	if board[0].Wallet != testWallet || board[1].Wallet != otherTestWallet || board[2].Wallet != third {
		t.Fatalf("unexpected order: %s, %s, %s", board[0].Wallet, board[1].Wallet, board[2].Wallet)
	}

	board, _ = repo.Leaderboard(context.Background(), 2)
	if len(board) != 2 {
		t.Fatalf("limit not applied, len = %d", len(board))
	}
}

func TestListRewards_Filters(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()

	addTestReward(t, repo, "cheap", 100, 5)
	addTestReward(t, repo, "expensive", 900, 5)
	addTestReward(t, repo, "sold-out", 50, 0)

	inactive := false
	if _, err := repo.UpdateReward(ctx, "expensive", model.RewardPatch{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateReward error: %v", err)
	}

	all, err := repo.ListRewards(ctx, model.RewardFilter{})
	if err != nil {
		t.Fatalf("ListRewards error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	// Сортировка по возрастанию стоимости.
	if all[0].ID != "sold-out" || all[2].ID != "expensive" {
		t.Fatalf("unexpected order: %s ... %s", all[0].ID, all[2].ID)
	}

	active, _ := repo.ListRewards(ctx, model.RewardFilter{ActiveOnly: true})
	if len(active) != 1 || active[0].ID != "cheap" {
		t.Fatalf("ActiveOnly must hide inactive and sold out items, got %+v", active)
	}

	capped, _ := repo.ListRewards(ctx, model.RewardFilter{MaxPointsCost: 100})
	if len(capped) != 2 {
		t.Fatalf("MaxPointsCost filter: len = %d, want 2", len(capped))
	}
}

func TestAddReward_DuplicateID(t *testing.T) {
	repo := newTestRepo()

	addTestReward(t, repo, "dup", 100, 5)

	err := repo.AddReward(context.Background(), &model.RewardItem{
		ID: "dup", Name: "Again", Type: model.RewardToken, PointsCost: 1, Stock: 1, IsActive: true,
	})
	if !errors.Is(err, ErrRewardExists) {
		t.Fatalf("expected ErrRewardExists, got %v", err)
	}
}

func TestCreateRedemption_CheckOrder(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()

	award(t, repo, testWallet, "prop-1", 100, false)

	_, err := repo.CreateRedemption(ctx, testWallet, "missing")
	if !errors.Is(err, ErrRewardNotFound) {
		t.Fatalf("expected ErrRewardNotFound, got %v", err)
	}

	addTestReward(t, repo, "inactive", 50, 5)
	off := false
	if _, err := repo.UpdateReward(ctx, "inactive", model.RewardPatch{IsActive: &off}); err != nil {
		t.Fatalf("UpdateReward error: %v", err)
	}
	if _, err := repo.CreateRedemption(ctx, testWallet, "inactive"); !errors.Is(err, ErrRewardInactive) {
		t.Fatalf("expected ErrRewardInactive, got %v", err)
	}

	addTestReward(t, repo, "empty", 50, 0)
	if _, err := repo.CreateRedemption(ctx, testWallet, "empty"); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}

	addTestReward(t, repo, "pricey", 10_000, 5)
	if _, err := repo.CreateRedemption(ctx, testWallet, "pricey"); !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}

	// Неудачные попытки не должны затронуть счёт, запас и пул.
	account, _ := repo.GetOrCreateAccount(ctx, testWallet)
	if account.AvailablePoints != 100 || account.RedeemedPoints != 0 {
		t.Fatalf("account touched by failed redemption: %d/%d", account.AvailablePoints, account.RedeemedPoints)
	}
	pool, _ := repo.GetPool(ctx)
	if pool.Distributed != 0 {
		t.Fatalf("pool touched by failed redemption: %d", pool.Distributed)
	}
}

func TestRedemptionLifecycle(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()

	award(t, repo, testWallet, "prop-1", 100, false)
	addTestReward(t, repo, "reward-1", 60, 3)

	red, err := repo.CreateRedemption(ctx, testWallet, "reward-1")
	if err != nil {
		t.Fatalf("CreateRedemption error: %v", err)
	}
	if red.Status != model.RedemptionPending {
		t.Fatalf("Status = %s, want pending", red.Status)
	}
	if red.PointsSpent != 60 {
		t.Fatalf("PointsSpent = %d, want 60", red.PointsSpent)
	}

	item, _ := repo.GetReward(ctx, "reward-1")
	if item.Stock != 2 {
		t.Fatalf("Stock = %d, want 2 after redemption", item.Stock)
	}
	pool, _ := repo.GetPool(ctx)
	if pool.Distributed != 60 || pool.Remaining != 1_000_000-60 {
		t.Fatalf("pool = %d/%d, want 60 distributed", pool.Distributed, pool.Remaining)
	}

	red, err = repo.MarkRedemptionProcessing(ctx, red.ID)
	if err != nil {
		t.Fatalf("MarkRedemptionProcessing error: %v", err)
	}
	if red.Status != model.RedemptionProcessing {
		t.Fatalf("Status = %s, want processing", red.Status)
	}

	if _, err := repo.MarkRedemptionProcessing(ctx, red.ID); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}

	red, err = repo.FinishRedemption(ctx, red.ID, &model.Fulfillment{TxHash: "0xabc"}, "")
	if err != nil {
		t.Fatalf("FinishRedemption error: %v", err)
	}
	if red.Status != model.RedemptionCompleted {
		t.Fatalf("Status = %s, want completed", red.Status)
	}
	if red.CompletedAt == nil {
		t.Fatalf("CompletedAt must be set")
	}
	if red.Fulfillment == nil || red.Fulfillment.TxHash != "0xabc" {
		t.Fatalf("fulfillment not recorded: %+v", red.Fulfillment)
	}

	// Завершённый обмен отменить нельзя.
	if _, err := repo.CancelRedemption(ctx, red.ID); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestFinishRedemption_FailureKeepsPoints(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()

	award(t, repo, testWallet, "prop-1", 100, false)
	addTestReward(t, repo, "reward-1", 60, 3)

	red, _ := repo.CreateRedemption(ctx, testWallet, "reward-1")
	if _, err := repo.MarkRedemptionProcessing(ctx, red.ID); err != nil {
		t.Fatalf("MarkRedemptionProcessing error: %v", err)
	}

	red, err := repo.FinishRedemption(ctx, red.ID, nil, "transfer failed")
	if err != nil {
		t.Fatalf("FinishRedemption error: %v", err)
	}
	if red.Status != model.RedemptionFailed || red.ErrorMsg != "transfer failed" {
		t.Fatalf("got %s/%q, want failed status with error message", red.Status, red.ErrorMsg)
	}

	// Автоматического возврата нет: баллы остаются списанными.
	account, _ := repo.GetOrCreateAccount(ctx, testWallet)
	if account.AvailablePoints != 40 || account.RedeemedPoints != 60 {
		t.Fatalf("account = %d/%d, want 40/60", account.AvailablePoints, account.RedeemedPoints)
	}

	// Неудавшийся обмен всё ещё можно отменить явно.
	if _, err := repo.CancelRedemption(ctx, red.ID); err != nil {
		t.Fatalf("CancelRedemption error: %v", err)
	}
}

func TestCancelRedemption_RefundsExactly(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()

	award(t, repo, testWallet, "prop-1", 100, false)
	addTestReward(t, repo, "reward-1", 60, 3)

	red, _ := repo.CreateRedemption(ctx, testWallet, "reward-1")

	// Подорожание после обмена не влияет на сумму возврата.
	newCost := int64(500)
	if _, err := repo.UpdateReward(ctx, "reward-1", model.RewardPatch{PointsCost: &newCost}); err != nil {
		t.Fatalf("UpdateReward error: %v", err)
	}

	cancelled, err := repo.CancelRedemption(ctx, red.ID)
	if err != nil {
		t.Fatalf("CancelRedemption error: %v", err)
	}
	if cancelled.Status != model.RedemptionCancelled {
		t.Fatalf("Status = %s, want cancelled", cancelled.Status)
	}

	account, _ := repo.GetOrCreateAccount(ctx, testWallet)
	if account.AvailablePoints != 100 {
		t.Fatalf("AvailablePoints = %d, want 100 after refund", account.AvailablePoints)
	}
	// Возврат проводится бонусом: заработанные баллы растут, списанные не уменьшаются.
	if account.TotalPoints != 160 || account.RedeemedPoints != 60 {
		t.Fatalf("account = %d/%d, want total 160 and redeemed 60", account.TotalPoints, account.RedeemedPoints)
	}

	item, _ := repo.GetReward(ctx, "reward-1")
	if item.Stock != 3 {
		t.Fatalf("Stock = %d, want 3 after restore", item.Stock)
	}

	pool, _ := repo.GetPool(ctx)
	if pool.Distributed != 0 || pool.Remaining != 1_000_000 {
		t.Fatalf("pool = %d/%d, want refund reflected", pool.Distributed, pool.Remaining)
	}

	if _, err := repo.CancelRedemption(ctx, red.ID); !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("expected ErrAlreadyCancelled, got %v", err)
	}
}

func TestRedemption_UnlimitedStock(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()

	award(t, repo, testWallet, "prop-1", 100, false)
	addTestReward(t, repo, "endless", 10, model.UnlimitedStock)

	red, err := repo.CreateRedemption(ctx, testWallet, "endless")
	if err != nil {
		t.Fatalf("CreateRedemption error: %v", err)
	}

	item, _ := repo.GetReward(ctx, "endless")
	if item.Stock != model.UnlimitedStock {
		t.Fatalf("Stock = %d, unlimited stock must stay unchanged", item.Stock)
	}

	if _, err := repo.CancelRedemption(ctx, red.ID); err != nil {
		t.Fatalf("CancelRedemption error: %v", err)
	}
	item, _ = repo.GetReward(ctx, "endless")
	if item.Stock != model.UnlimitedStock {
		t.Fatalf("Stock = %d after cancel, want unchanged unlimited", item.Stock)
	}
}

func TestReconcilePool(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()

	award(t, repo, testWallet, "prop-1", 100, false)
	addTestReward(t, repo, "reward-1", 30, 10)

	first, _ := repo.CreateRedemption(ctx, testWallet, "reward-1")
	if _, err := repo.CreateRedemption(ctx, testWallet, "reward-1"); err != nil {
		t.Fatalf("CreateRedemption error: %v", err)
	}
	if _, err := repo.CancelRedemption(ctx, first.ID); err != nil {
		t.Fatalf("CancelRedemption error: %v", err)
	}

	pool, err := repo.ReconcilePool(ctx)
	if err != nil {
		t.Fatalf("ReconcilePool error: %v", err)
	}
	// Отменённые обмены в распределённое не входят.
	if pool.Distributed != 30 {
		t.Fatalf("Distributed = %d, want 30", pool.Distributed)
	}
	if pool.Remaining != pool.TotalBudget-30 {
		t.Fatalf("Remaining = %d, want %d", pool.Remaining, pool.TotalBudget-30)
	}
}

func TestIncreaseBudget(t *testing.T) {
	repo := newTestRepo()

	pool, err := repo.IncreaseBudget(context.Background(), 500)
	if err != nil {
		t.Fatalf("IncreaseBudget error: %v", err)
	}
	if pool.TotalBudget != 1_000_500 || pool.Remaining != 1_000_500 {
		t.Fatalf("pool = %d/%d, want budget raised by 500", pool.TotalBudget, pool.Remaining)
	}
}

func TestStatsSummaries(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()

	award(t, repo, testWallet, "prop-1", 100, false)
	award(t, repo, otherTestWallet, "prop-2", 100, false)
	if _, err := repo.CreditBonus(ctx, testWallet, 600, "promo"); err != nil {
		t.Fatalf("CreditBonus error: %v", err)
	}

	addTestReward(t, repo, "reward-1", 30, 10)
	if _, err := repo.CreateRedemption(ctx, testWallet, "reward-1"); err != nil {
		t.Fatalf("CreateRedemption error: %v", err)
	}

	accounts, err := repo.AccountStatsSummary(ctx)
	if err != nil {
		t.Fatalf("AccountStatsSummary error: %v", err)
	}
	if accounts.Accounts != 2 || accounts.Votes != 2 {
		t.Fatalf("accounts/votes = %d/%d, want 2/2", accounts.Accounts, accounts.Votes)
	}
	if accounts.ByLevel[2] != 1 || accounts.ByLevel[1] != 1 {
		t.Fatalf("unexpected level distribution: %v", accounts.ByLevel)
	}
	if accounts.TotalPoints != 800 || accounts.RedeemedPoints != 30 {
		t.Fatalf("points = %d/%d, want 800/30", accounts.TotalPoints, accounts.RedeemedPoints)
	}

	redemptions, err := repo.RedemptionStatsSummary(ctx)
	if err != nil {
		t.Fatalf("RedemptionStatsSummary error: %v", err)
	}
	if redemptions.Total != 1 || redemptions.ByStatus[model.RedemptionPending] != 1 {
		t.Fatalf("unexpected redemption stats: %+v", redemptions)
	}
	if redemptions.ByType[model.RewardToken] != 1 {
		t.Fatalf("ByType = %v, want one token redemption", redemptions.ByType)
	}
}
