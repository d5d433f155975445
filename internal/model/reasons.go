package model

// VoteReason формирует описание операции начисления за голос.
func VoteReason(daoID string) string {
	return "Voted on " + daoID + " proposal"
}

// RedeemReason формирует описание операции списания при обмене.
func RedeemReason(rewardName string) string {
	return "Redeemed: " + rewardName
}

// RefundReason формирует описание операции возврата при отмене обмена.
func RefundReason(rewardName string) string {
	return "Refund: Cancelled redemption of " + rewardName
}
