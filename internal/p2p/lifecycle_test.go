package p2p

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNext(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	open := now.Add(10 * time.Minute)
	passed := now.Add(-time.Second)

	tests := []struct {
		name     string
		status   Status
		deadline time.Time
		role     Role
		action   Action
		want     Status
	}{
		{"buyer marks paid", StatusEscrowLocked, open, RoleBuyer, ActionMarkPaid, StatusPaymentSent},
		{"seller cannot mark paid", StatusEscrowLocked, open, RoleSeller, ActionMarkPaid, ""},
		{"mark paid twice", StatusPaymentSent, open, RoleBuyer, ActionMarkPaid, ""},
		{"seller confirms", StatusPaymentSent, open, RoleSeller, ActionConfirm, StatusPaymentConfirmed},
		{"buyer cannot confirm", StatusPaymentSent, open, RoleBuyer, ActionConfirm, ""},
		{"seller releases after payment", StatusPaymentSent, open, RoleSeller, ActionRelease, StatusCompleted},
		{"seller releases after confirm", StatusPaymentConfirmed, open, RoleSeller, ActionRelease, StatusCompleted},
		{"release before payment", StatusEscrowLocked, open, RoleSeller, ActionRelease, ""},
		{"buyer cannot release", StatusPaymentSent, open, RoleBuyer, ActionRelease, ""},
		{"buyer disputes locked", StatusEscrowLocked, open, RoleBuyer, ActionDispute, StatusDisputed},
		{"seller disputes paid", StatusPaymentSent, open, RoleSeller, ActionDispute, StatusDisputed},
		{"buyer disputes after confirm", StatusPaymentConfirmed, open, RoleBuyer, ActionDispute, StatusDisputed},
		{"seller disputes after confirm", StatusPaymentConfirmed, passed, RoleSeller, ActionDispute, StatusDisputed},
		{"no cancel after confirm", StatusPaymentConfirmed, passed, RoleBuyer, ActionCancel, ""},
		{"no dispute after completion", StatusCompleted, open, RoleBuyer, ActionDispute, ""},
		{"buyer cancels before deadline", StatusEscrowLocked, open, RoleBuyer, ActionCancel, StatusCancelled},
		{"seller cannot cancel before deadline", StatusEscrowLocked, open, RoleSeller, ActionCancel, ""},
		{"seller cancels after deadline", StatusEscrowLocked, passed, RoleSeller, ActionCancel, StatusCancelled},
		{"seller cancels exactly at deadline", StatusEscrowLocked, now, RoleSeller, ActionCancel, StatusCancelled},
		{"sweeper cancels after deadline", StatusEscrowLocked, passed, RoleSystem, ActionCancel, StatusCancelled},
		{"sweeper waits for deadline", StatusEscrowLocked, open, RoleSystem, ActionCancel, ""},
		{"no cancel once paid", StatusPaymentSent, passed, RoleBuyer, ActionCancel, ""},
		{"admin resolves", StatusDisputed, open, RoleAdmin, ActionResolve, StatusDisputeResolved},
		{"participant cannot resolve", StatusDisputed, open, RoleBuyer, ActionResolve, ""},
		{"resolve undisputed", StatusPaymentSent, open, RoleAdmin, ActionResolve, ""},
		{"stranger", StatusEscrowLocked, open, RoleNone, ActionMarkPaid, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(Order{Status: tt.status, PaymentDeadline: tt.deadline}, tt.role, tt.action, now)
			if tt.want == "" {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTerminalStatusesAcceptNothing(t *testing.T) {
	now := time.Now()
	actions := []Action{ActionMarkPaid, ActionConfirm, ActionRelease, ActionDispute, ActionCancel, ActionResolve}
	roles := []Role{RoleBuyer, RoleSeller, RoleAdmin, RoleSystem}
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusDisputeResolved} {
		assert.True(t, s.Terminal())
		for _, a := range actions {
			for _, r := range roles {
				_, err := Next(Order{Status: s, PaymentDeadline: now.Add(-time.Hour)}, r, a, now)
				assert.ErrorIs(t, err, ErrInvalidTransition, "%s %s %d", s, a, r)
			}
		}
	}
}

func sellAd() Ad {
	return Ad{
		ID: "ad-1", UserID: "owner", AdType: AdSell, Amount: d("500"),
		MinAmount: d("10"), MaxAmount: d("200"), PricePerUnit: d("240"),
		PaymentMethods: []string{"baridimob"}, PaymentWindowMinutes: 15, IsActive: true,
	}
}

func TestPlanOrder(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	o, err := PlanOrder(sellAd(), "taker", d("100"), d("2"), now)
	require.NoError(t, err)
	assert.Equal(t, "owner", o.SellerID)
	assert.Equal(t, "taker", o.BuyerID)
	assert.Equal(t, StatusEscrowLocked, o.Status)
	assert.True(t, d("24000").Equal(o.TotalPrice))
	assert.True(t, d("480").Equal(o.PlatformFee))
	assert.Equal(t, now.Add(15*time.Minute), o.PaymentDeadline)
	assert.True(t, d("2").Equal(o.FeeUnits()))

	buy := sellAd()
	buy.AdType = AdBuy
	buy.PaymentWindowMinutes = 0
	o, err = PlanOrder(buy, "taker", d("10"), d("2"), now)
	require.NoError(t, err)
	assert.Equal(t, "owner", o.BuyerID)
	assert.Equal(t, "taker", o.SellerID)
	assert.Equal(t, now.Add(15*time.Minute), o.PaymentDeadline)
}

func TestPlanOrderRejections(t *testing.T) {
	now := time.Now()
	inactive := sellAd()
	inactive.IsActive = false
	drained := sellAd()
	drained.Amount = d("50")

	tests := []struct {
		name   string
		ad     Ad
		taker  string
		amount string
		err    error
	}{
		{"self trade", sellAd(), "owner", "100", ErrSelfTrade},
		{"inactive", inactive, "taker", "100", ErrAdInactive},
		{"below min", sellAd(), "taker", "9.99", ErrBelowMinimum},
		{"above max", sellAd(), "taker", "200.01", ErrAboveMaximum},
		{"above remaining", drained, "taker", "60", ErrAboveAvailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanOrder(tt.ad, tt.taker, d(tt.amount), d("2"), now)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestValidateAd(t *testing.T) {
	assert.NoError(t, ValidateAd(sellAd()))

	bad := []func(*Ad){
		func(a *Ad) { a.AdType = "swap" },
		func(a *Ad) { a.MinAmount = d("0") },
		func(a *Ad) { a.MinAmount = d("300") },
		func(a *Ad) { a.MaxAmount = d("600") },
		func(a *Ad) { a.PricePerUnit = d("0") },
	}
	for i, mutate := range bad {
		ad := sellAd()
		mutate(&ad)
		assert.ErrorIs(t, ValidateAd(ad), ErrInvalidAd, "case %d", i)
	}

	ad := sellAd()
	ad.PaymentMethods = []string{" "}
	assert.ErrorIs(t, ValidateAd(ad), ErrNoPaymentMethods)
}

func TestRemainingSecondsUsesServerClock(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	o := Order{Status: StatusEscrowLocked, PaymentDeadline: now.Add(90 * time.Second)}
	assert.EqualValues(t, 90, o.withRemaining(now).RemainingSeconds)
	assert.EqualValues(t, 0, o.withRemaining(now.Add(2*time.Minute)).RemainingSeconds)

	o.Status = StatusPaymentSent
	assert.EqualValues(t, 0, o.withRemaining(now).RemainingSeconds)
}
