package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeTotal(t *testing.T) {
	tests := []struct {
		name         string
		baseAmount   int64
		ratePercent  int64
		wantTotal    int64
		wantPlatform int64
	}{
		{
			name:         "one million at one percent",
			baseAmount:   1_000_000,
			ratePercent:  1,
			wantTotal:    1_370_000,
			wantPlatform: 10_000,
		},
		{
			name:         "zero rate collects only allowances on top",
			baseAmount:   500_000,
			ratePercent:  0,
			wantTotal:    860_000,
			wantPlatform: 0,
		},
		{
			name:         "platform fee floors",
			baseAmount:   999,
			ratePercent:  1,
			wantTotal:    999 + 9 + 360_000,
			wantPlatform: 9,
		},
		{
			name:         "higher rate",
			baseAmount:   2_000_000,
			ratePercent:  3,
			wantTotal:    2_000_000 + 60_000 + 360_000,
			wantPlatform: 60_000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, platform := ComputeTotal(tt.baseAmount, tt.ratePercent, SettlementFeeAllowance, TransferFeeAllowance)
			assert.Equal(t, tt.wantTotal, total)
			assert.Equal(t, tt.wantPlatform, platform)
		})
	}
}

func TestSettlementSplit(t *testing.T) {
	tests := []struct {
		name        string
		received    int64
		ratePercent int64
		wantFee     int64
		wantNet     int64
	}{
		{
			name:        "happy path settlement",
			received:    1_370_000,
			ratePercent: 1,
			wantFee:     13_700,
			wantNet:     1_356_300,
		},
		{
			name:        "fee floors on odd amounts",
			received:    1_000_001,
			ratePercent: 1,
			wantFee:     10_000,
			wantNet:     990_001,
		},
		{
			name:        "zero rate passes everything through",
			received:    777_777,
			ratePercent: 0,
			wantFee:     0,
			wantNet:     777_777,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, net := SettlementSplit(tt.received, tt.ratePercent)
			assert.Equal(t, tt.wantFee, fee)
			assert.Equal(t, tt.wantNet, net)
		})
	}
}

func TestSettlementSplitConservesFunds(t *testing.T) {
	// Conservation must be exact for awkward amounts, not just round ones.
	amounts := []int64{1, 2, 3, 7, 97, 1_009, 99_991, 1_299_709, 15_485_863, 2_038_074_743}
	rates := []int64{0, 1, 2, 3, 5, 7, 100}

	for _, amount := range amounts {
		for _, rate := range rates {
			fee, net := SettlementSplit(amount, rate)
			assert.Equal(t, amount, fee+net, "received=%d rate=%d", amount, rate)
			assert.GreaterOrEqual(t, fee, int64(0))
			assert.GreaterOrEqual(t, net, int64(0))
		}
	}
}

func TestMeetsTolerance(t *testing.T) {
	tests := []struct {
		name     string
		received int64
		expected int64
		want     bool
	}{
		{
			name:     "full amount confirms",
			received: 1_370_000,
			expected: 1_370_000,
			want:     true,
		},
		{
			name:     "exactly 95 percent confirms",
			received: 1_301_500,
			expected: 1_370_000,
			want:     true,
		},
		{
			name:     "one micro below 95 percent does not confirm",
			received: 1_301_499,
			expected: 1_370_000,
			want:     false,
		},
		{
			name:     "overpayment confirms",
			received: 2_000_000,
			expected: 1_370_000,
			want:     true,
		},
		{
			name:     "boundary rounds against the payer when not divisible",
			received: 951,
			expected: 1_001,
			want:     true,
		},
		{
			name:     "below the rounded boundary does not confirm",
			received: 950,
			expected: 1_001,
			want:     false,
		},
		{
			name:     "zero received never confirms a positive expectation",
			received: 0,
			expected: 1,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MeetsTolerance(tt.received, tt.expected))
		})
	}
}
