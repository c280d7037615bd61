package settings

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opay-dz/opay/internal/fees"
)

func TestApplyMergesFeeOverrides(t *testing.T) {
	s := Defaults()
	require.NoError(t, Apply(&s, KeyFees, []byte(`{"flexy":{"fee_percentage":7},"merchant_tiers":{"gold":4.5}}`)))

	assert.True(t, decimal.NewFromInt(7).Equal(s.Fees.Flexy.FeePercentage))
	assert.True(t, decimal.RequireFromString("4.5").Equal(s.Fees.MerchantTiers[fees.TierGold]))
	assert.True(t, decimal.NewFromInt(2).Equal(s.Fees.MerchantTiers[fees.TierBronze]), "untouched tier keeps default")
	assert.True(t, decimal.NewFromInt(2).Equal(s.Fees.P2PFeePercentage), "untouched schedule keeps default")
}

func TestApplyScalars(t *testing.T) {
	s := Defaults()
	require.NoError(t, Apply(&s, KeyPaymentWindow, []byte(`30`)))
	require.NoError(t, Apply(&s, KeyReferralReward, []byte(`"250"`)))
	require.NoError(t, Apply(&s, KeyExchangeRate, []byte(`240.5`)))
	require.NoError(t, Apply(&s, "unknown_key", []byte(`{}`)))

	assert.Equal(t, 30*time.Minute, s.PaymentWindow)
	assert.True(t, decimal.NewFromInt(250).Equal(s.ReferralReward))
	assert.True(t, decimal.RequireFromString("240.5").Equal(s.ExchangeRate))

	assert.Error(t, Apply(&s, KeyPaymentWindow, []byte(`"soon"`)))
}

func TestStatic(t *testing.T) {
	var src Source = Static(Defaults())
	assert.Equal(t, 15*time.Minute, src.Current().PaymentWindow)
}
