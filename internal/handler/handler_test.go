package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/govpoints-system/internal/middleware"
	"github.com/mmeshcher/govpoints-system/internal/model"
	"github.com/mmeshcher/govpoints-system/internal/registry"
	"github.com/mmeshcher/govpoints-system/internal/repository"
	"github.com/mmeshcher/govpoints-system/internal/service"
)

const (
	testWallet     = "0x742d35cc6634c0532925a3b844bc9e7595f8fa8b"
	testAdminToken = "test-admin-token"
)

func newTestRouter(t *testing.T) (http.Handler, *service.Service) {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	svc := service.NewService(repository.NewMemoryRepository(1_000_000), registry.New())
	h := NewHandler(svc, logger, middleware.NewAdminAuth(testAdminToken))

	return h.SetupRouter(), svc
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, admin bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if admin {
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func awardVote(t *testing.T, router http.Handler, wallet, proposalID, daoID string, earlyVote bool) {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/api/points/award", awardRequest{
		Wallet:     wallet,
		ProposalID: proposalID,
		DAOID:      daoID,
		EarlyVote:  earlyVote,
	}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("award status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
}

func TestGetPoints(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/points/"+testWallet, nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp accountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Wallet != testWallet || resp.Level != 1 {
		t.Fatalf("unexpected account: %+v", resp)
	}
}

func TestGetPoints_InvalidAddress(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/points/not-a-wallet", nil, false)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}

func TestAwardPoints_RequiresAdminToken(t *testing.T) {
	router, _ := newTestRouter(t)

	body := awardRequest{Wallet: testWallet, ProposalID: "prop-1", DAOID: "aave.eth"}

	rec := doJSON(t, router, http.MethodPost, "/api/points/award", body, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/points/award", body, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status with token = %d, want %d", rec.Code, http.StatusCreated)
	}

	var resp transactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Amount != 100 || resp.Kind != "earn" {
		t.Fatalf("unexpected transaction: %+v", resp)
	}
}

func TestAwardPoints_DuplicateConflict(t *testing.T) {
	router, _ := newTestRouter(t)

	awardVote(t, router, testWallet, "prop-1", "aave.eth", false)

	rec := doJSON(t, router, http.MethodPost, "/api/points/award", awardRequest{
		Wallet: testWallet, ProposalID: "prop-1", DAOID: "aave.eth",
	}, true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestRedeemPoints_Insufficient(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/points/redeem", redeemPointsRequest{
		Wallet: testWallet, Amount: 500, Reason: "manual",
	}, true)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusPaymentRequired)
	}
}

func TestAwardBonus_InvalidAmount(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/points/bonus", bonusRequest{
		Wallet: testWallet, Amount: -10, Reason: "promo",
	}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRewardCatalogCRUD(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/rewards", addRewardRequest{
		ID:         "reward-1",
		Name:       "Test Reward",
		Type:       "token",
		PointsCost: 100,
		Stock:      5,
	}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	// Повторный идентификатор отклоняется.
	rec = doJSON(t, router, http.MethodPost, "/api/rewards", addRewardRequest{
		ID: "reward-1", Name: "Again", Type: "token", PointsCost: 1,
	}, true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want %d", rec.Code, http.StatusConflict)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/rewards/reward-1", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", rec.Code, http.StatusOK)
	}

	newCost := int64(200)
	rec = doJSON(t, router, http.MethodPut, "/api/rewards/reward-1", updateRewardRequest{
		PointsCost: &newCost,
	}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, want %d", rec.Code, http.StatusOK)
	}

	var updated rewardResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if updated.PointsCost != 200 {
		t.Fatalf("PointsCost = %d, want 200", updated.PointsCost)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/rewards/missing", nil, false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing reward status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRedeemFlow(t *testing.T) {
	router, _ := newTestRouter(t)

	awardVote(t, router, testWallet, "prop-1", "aave.eth", true)

	rec := doJSON(t, router, http.MethodPost, "/api/rewards", addRewardRequest{
		ID: "voucher-1", Name: "Gas Voucher", Type: "voucher", PointsCost: 100, Stock: -1,
	}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add reward status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/rewards/voucher-1/redeem", redeemRequest{Wallet: testWallet}, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("redeem status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var red redemptionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &red); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// Ваучер исполняется сразу.
	if red.Status != string(model.RedemptionCompleted) {
		t.Fatalf("Status = %s, want completed", red.Status)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/redemptions/"+red.ID, nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("get redemption status = %d, want %d", rec.Code, http.StatusOK)
	}

	// Завершённый обмен отменить нельзя.
	rec = doJSON(t, router, http.MethodPost, "/api/redemptions/"+red.ID+"/cancel", nil, false)
	if rec.Code != http.StatusConflict {
		t.Fatalf("cancel completed status = %d, want %d", rec.Code, http.StatusConflict)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/redemptions/user/"+testWallet, nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("user redemptions status = %d, want %d", rec.Code, http.StatusOK)
	}

	var list []redemptionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
}

func TestCancelRedemption_RefundVisibleInAccount(t *testing.T) {
	router, svc := newTestRouter(t)

	awardVote(t, router, testWallet, "prop-1", "aave.eth", false)

	rec := doJSON(t, router, http.MethodPost, "/api/rewards", addRewardRequest{
		ID: "token-1", Name: "Tokens", Type: "token", PointsCost: 60, Stock: 3,
	}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add reward status = %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/rewards/token-1/redeem", redeemRequest{Wallet: testWallet}, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("redeem status = %d: %s", rec.Code, rec.Body.String())
	}

	var red redemptionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &red); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if red.Status != string(model.RedemptionPending) {
		t.Fatalf("Status = %s, want pending for token", red.Status)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/redemptions/"+red.ID+"/cancel", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	account, err := svc.GetUserPoints(context.Background(), testWallet)
	if err != nil {
		t.Fatalf("GetUserPoints error: %v", err)
	}
	if account.AvailablePoints != 100 {
		t.Fatalf("AvailablePoints = %d, want 100 after refund", account.AvailablePoints)
	}
}

func TestPoolEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/reward-pool", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("get pool status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/reward-pool/add-budget", addBudgetRequest{Amount: 500}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("add budget status = %d, want %d", rec.Code, http.StatusOK)
	}

	var pool model.RewardPool
	if err := json.Unmarshal(rec.Body.Bytes(), &pool); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if pool.TotalBudget != 1_000_500 {
		t.Fatalf("TotalBudget = %d, want 1000500", pool.TotalBudget)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/reward-pool/add-budget", addBudgetRequest{Amount: 0}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("zero amount status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestDAOEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/daos", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("daos status = %d, want %d", rec.Code, http.StatusOK)
	}

	var daos []registry.DAO
	if err := json.Unmarshal(rec.Body.Bytes(), &daos); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(daos) != 20 {
		t.Fatalf("len = %d, want 20", len(daos))
	}

	rec = doJSON(t, router, http.MethodGet, "/api/daos/aave.eth/tier", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("tier status = %d, want %d", rec.Code, http.StatusOK)
	}

	var tier registry.Tier
	if err := json.Unmarshal(rec.Body.Bytes(), &tier); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tier.Tier != 1 || tier.BasePoints != 100 {
		t.Fatalf("unexpected tier: %+v", tier)
	}
}

func TestListRedemptions_AdminOnly(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/redemptions", nil, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/redemptions?status=pending", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with token = %d, want %d", rec.Code, http.StatusOK)
	}
}
