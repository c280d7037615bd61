package wallet

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opay-dz/opay/internal/fees"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPlanTransfer(t *testing.T) {
	s := fees.DefaultConfig().Transfer

	p, err := PlanTransfer("a", "b", d("5000"), s)
	require.NoError(t, err)
	assert.True(t, d("50").Equal(p.Fee))
	assert.True(t, d("5050").Equal(p.Total))

	p, err = PlanTransfer("a", "b", d("200"), s)
	require.NoError(t, err)
	assert.True(t, d("10").Equal(p.Fee), "minimum fee applies")

	_, err = PlanTransfer("a", "a", d("200"), s)
	assert.ErrorIs(t, err, ErrSelfTransfer)
	_, err = PlanTransfer("a", "b", d("0"), s)
	assert.ErrorIs(t, err, ErrNonPositive)
}

func TestPlanDepositFlexy(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	cfg := fees.FlexyFees{FeePercentage: d("5")}

	p, err := PlanDeposit("u", MethodFlexy, "0612345678", "", d("1000"), cfg, nil, now)
	require.NoError(t, err)
	assert.True(t, d("50").Equal(p.Fee))
	assert.True(t, d("950").Equal(p.Net))

	_, err = PlanDeposit("u", MethodFlexy, "0712345678", "", d("1000"), cfg, nil, now)
	assert.ErrorIs(t, err, fees.ErrInvalidPhone)

	recent := []fees.FlexyRequest{{UserID: "u", Amount: d("1000"), Phone: "0612345678", CreatedAt: now.Add(-4 * time.Minute)}}
	_, err = PlanDeposit("u", MethodFlexy, "0612345678", "", d("1000"), cfg, recent, now)
	assert.ErrorIs(t, err, ErrDuplicateDeposit)

	recent[0].CreatedAt = now.Add(-6 * time.Minute)
	_, err = PlanDeposit("u", MethodFlexy, "0612345678", "", d("1000"), cfg, recent, now)
	assert.NoError(t, err)
}

func TestPlanDepositBank(t *testing.T) {
	now := time.Now()
	cfg := fees.FlexyFees{FeePercentage: d("5")}

	_, err := PlanDeposit("u", MethodCCP, "", "", d("1000"), cfg, nil, now)
	assert.ErrorIs(t, err, ErrProofRequired)

	p, err := PlanDeposit("u", MethodBaridiMob, "", "https://cdn/proof.jpg", d("1000"), cfg, nil, now)
	require.NoError(t, err)
	assert.True(t, p.Fee.IsZero())
	assert.True(t, d("1000").Equal(p.Net))

	_, err = PlanDeposit("u", "cash", "", "x", d("1000"), cfg, nil, now)
	assert.ErrorIs(t, err, ErrUnknownMethod)
	_, err = PlanDeposit("u", MethodCCP, "", "x", d("-1"), cfg, nil, now)
	assert.ErrorIs(t, err, ErrNonPositive)
}
