package fees

// All amounts are in microSTX.
const (
	// TolerancePercent is the accepted underpayment margin. A transfer of
	// at least 95% of the expected amount still confirms the payment.
	TolerancePercent = 5

	// DustThreshold is the minimum transfer amount the ingestion pipeline
	// considers at all. Smaller transfers are discarded.
	DustThreshold = 1_000

	// SettlementFeeAllowance and TransferFeeAllowance are the fixed
	// network-fee allowances folded into the expected amount, so the
	// customer rather than the merchant bears network fees.
	SettlementFeeAllowance = 180_000
	TransferFeeAllowance   = 180_000
)

// ComputeTotal computes the total amount the customer must send for a
// payment. The platform fee is floored, which favors the merchant's
// customers on sub-percent remainders.
//
//	platformFee   = baseAmount * feeRatePercent / 100
//	totalExpected = baseAmount + platformFee + both allowances
func ComputeTotal(baseAmount, feeRatePercent, settlementFeeAllowance, transferFeeAllowance int64) (totalExpected, platformFee int64) {
	platformFee = baseAmount * feeRatePercent / 100
	totalExpected = baseAmount + platformFee + settlementFeeAllowance + transferFeeAllowance
	return totalExpected, platformFee
}

// SettlementSplit computes the actual fee and net proceeds at settlement
// time from the funds actually received. The fee is floored so that
// feeAmount + netAmount == receivedAmount holds exactly for every input.
func SettlementSplit(receivedAmount, feeRatePercent int64) (feeAmount, netAmount int64) {
	feeAmount = receivedAmount * feeRatePercent / 100
	netAmount = receivedAmount - feeAmount
	return feeAmount, netAmount
}

// MeetsTolerance reports whether a received amount is close enough to the
// expected amount to confirm the payment. The comparison is exact integer
// math: received must be at least (100 - TolerancePercent)% of expected.
func MeetsTolerance(receivedAmount, expectedAmount int64) bool {
	return receivedAmount*100 >= expectedAmount*(100-TolerancePercent)
}
