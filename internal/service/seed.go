package service

import (
	"context"
	"errors"

	"github.com/mmeshcher/govpoints-system/internal/model"
	"github.com/mmeshcher/govpoints-system/internal/repository"
)

// defaultRewards — стартовый каталог вознаграждений платформы.
var defaultRewards = []model.RewardItem{
	{
		ID:          "reward-usdc-10",
		Name:        "10 USDC",
		Description: "Receive 10 USDC directly to your wallet",
		Type:        model.RewardToken,
		PointsCost:  1000,
		Stock:       100,
		IsActive:    true,
		Metadata: model.RewardMetadata{Token: &model.TokenMetadata{
			TokenAddress: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			TokenAmount:  "10000000",
			TokenSymbol:  "USDC",
			Chain:        "ethereum",
		}},
	},
	{
		ID:          "reward-usdc-50",
		Name:        "50 USDC",
		Description: "Receive 50 USDC directly to your wallet",
		Type:        model.RewardToken,
		PointsCost:  4500,
		Stock:       50,
		IsActive:    true,
		Metadata: model.RewardMetadata{Token: &model.TokenMetadata{
			TokenAddress: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			TokenAmount:  "50000000",
			TokenSymbol:  "USDC",
			Chain:        "ethereum",
		}},
	},
	{
		ID:          "reward-arb-5",
		Name:        "5 ARB Tokens",
		Description: "Receive 5 ARB tokens on Arbitrum",
		Type:        model.RewardToken,
		PointsCost:  500,
		Stock:       200,
		IsActive:    true,
		Metadata: model.RewardMetadata{Token: &model.TokenMetadata{
			TokenAddress: "0x912CE59144191C1204E64559FE8253a0e49E6548",
			TokenAmount:  "5000000000000000000",
			TokenSymbol:  "ARB",
			Chain:        "arbitrum",
		}},
	},
	{
		ID:          "reward-nft-bronze",
		Name:        "Bronze Governance Badge",
		Description: "Exclusive NFT badge for active governance participants",
		Type:        model.RewardNFT,
		PointsCost:  2000,
		Stock:       500,
		IsActive:    true,
		Metadata: model.RewardMetadata{NFT: &model.NFTMetadata{
			Standard: "erc721",
			Chain:    "ethereum",
		}},
	},
	{
		ID:          "reward-nft-silver",
		Name:        "Silver Governance Badge",
		Description: "Rare NFT badge for dedicated voters",
		Type:        model.RewardNFT,
		PointsCost:  5000,
		Stock:       100,
		IsActive:    true,
		Metadata: model.RewardMetadata{NFT: &model.NFTMetadata{
			Standard: "erc721",
			Chain:    "ethereum",
		}},
	},
	{
		ID:          "reward-nft-gold",
		Name:        "Gold Governance Badge",
		Description: "Ultra-rare NFT badge for governance legends",
		Type:        model.RewardNFT,
		PointsCost:  15000,
		Stock:       20,
		IsActive:    true,
		Metadata: model.RewardMetadata{NFT: &model.NFTMetadata{
			Standard: "erc721",
			Chain:    "ethereum",
		}},
	},
	{
		ID:          "reward-voucher-gas",
		Name:        "Gas Fee Voucher",
		Description: "Get reimbursed for 10 transactions worth of gas",
		Type:        model.RewardVoucher,
		PointsCost:  300,
		Stock:       model.UnlimitedStock,
		IsActive:    true,
		Metadata: model.RewardMetadata{Voucher: &model.VoucherMetadata{
			ExpiresAt:    "2027-12-31",
			Instructions: "Submit transaction hashes for reimbursement",
		}},
	},
	{
		ID:          "reward-voucher-premium",
		Name:        "1 Month Premium Membership",
		Description: "Unlock premium features including advanced analytics and priority support",
		Type:        model.RewardBenefit,
		PointsCost:  1500,
		Stock:       model.UnlimitedStock,
		IsActive:    true,
		Metadata: model.RewardMetadata{Voucher: &model.VoucherMetadata{
			Instructions: "Automatically applied to your account upon redemption",
		}},
	},
	{
		ID:          "reward-discount-20",
		Name:        "20% Platform Fee Discount",
		Description: "Get 20% discount on all platform fees for 3 months",
		Type:        model.RewardBenefit,
		PointsCost:  800,
		Stock:       model.UnlimitedStock,
		IsActive:    true,
		Metadata: model.RewardMetadata{Voucher: &model.VoucherMetadata{
			ExpiresAt:    "90 days from redemption",
			Instructions: "Automatically applied to your transactions",
		}},
	},
}

// EnsureDefaultRewards наполняет пустой каталог стартовым набором
// вознаграждений. Уже существующие позиции не перезаписываются.
func (s *Service) EnsureDefaultRewards(ctx context.Context) (int, error) {
	added := 0
	for _, item := range defaultRewards {
		reward := item
		if err := s.repo.AddReward(ctx, &reward); err != nil {
			if errors.Is(err, repository.ErrRewardExists) {
				continue
			}
			return added, err
		}
		added++
	}
	return added, nil
}
