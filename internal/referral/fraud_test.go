package referral

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSuspiciousReferrals(t *testing.T) {
	refs := []Referred{
		{ReferralID: "r1", Phone: "0550123456"},
		{ReferralID: "r2", Phone: "+213 550 12 34 56"},
		{ReferralID: "r3", Phone: "0661000000"},
		{ReferralID: "r4", Phone: ""},
		{ReferralID: "r5", Phone: ""},
		{ReferralID: "r6", Phone: "661000000"},
		{ReferralID: "r7", Phone: "0770000000"},
	}
	got := SuspiciousReferrals(refs)
	assert.Equal(t, map[string][]string{
		"0550123456": {"r1", "r2"},
		"0661000000": {"r3", "r6"},
	}, got)
}

func TestSuspiciousReferralsNoDuplicates(t *testing.T) {
	assert.Empty(t, SuspiciousReferrals([]Referred{{ReferralID: "a", Phone: "0550000001"}, {ReferralID: "b", Phone: "0550000002"}}))
	assert.Empty(t, SuspiciousReferrals(nil))
}

func TestNewCode(t *testing.T) {
	code := NewCode()
	assert.Len(t, code, CodeLength)
	assert.Regexp(t, `^[0-9A-F]{8}$`, code)
}

func TestPayableSkipsPendingAndFlaggedReferrals(t *testing.T) {
	fifty := decimal.NewFromInt(50)
	rewards := []Reward{
		{ID: "w1", Amount: fifty, ReferralStatus: "active"},
		{ID: "w2", Amount: fifty, ReferralStatus: "pending"},
		{ID: "w3", Amount: fifty, ReferralStatus: "active", Flagged: true},
		{ID: "w4", Amount: decimal.NewFromInt(25), ReferralStatus: "active"},
		{ID: "w5", Amount: fifty, ReferralStatus: "cancelled"},
	}
	total, ids := Payable(rewards)
	assert.True(t, decimal.NewFromInt(75).Equal(total), total.String())
	assert.Equal(t, []string{"w1", "w4"}, ids)

	total, ids = Payable([]Reward{{ID: "p", Amount: fifty, ReferralStatus: "pending"}})
	assert.True(t, total.IsZero())
	assert.Empty(t, ids)
}
