// Package referral manages referral codes, rewards and the admin tools
// against referral farming.
package referral

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CodeLength is the length of a referral code.
const CodeLength = 8

// NewCode returns a random upper-case hex code of CodeLength characters.
func NewCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:CodeLength]
}

// Referred is one referral as seen by the fraud check.
type Referred struct {
	ReferralID string
	Phone      string
}

// normalizePhone maps +213 and 0-prefixed forms of the same number together.
func normalizePhone(p string) string {
	p = strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, p)
	switch {
	case strings.HasPrefix(p, "213") && len(p) == 12:
		return "0" + p[3:]
	case len(p) == 9:
		return "0" + p
	}
	return p
}

// SuspiciousReferrals returns the ids of referrals whose referred user shares
// a phone number with another referral of the same referrer, grouped by phone.
// Referrals without a phone are never flagged.
func SuspiciousReferrals(refs []Referred) map[string][]string {
	byPhone := map[string][]string{}
	for _, r := range refs {
		p := normalizePhone(r.Phone)
		if p == "" {
			continue
		}
		byPhone[p] = append(byPhone[p], r.ReferralID)
	}
	out := map[string][]string{}
	for phone, ids := range byPhone {
		if len(ids) > 1 {
			sort.Strings(ids)
			out[phone] = ids
		}
	}
	return out
}

// Reward is one earned reward with the state of the referral behind it.
type Reward struct {
	ID             string
	Amount         decimal.Decimal
	ReferralStatus string
	Flagged        bool
}

// Payable sums the rewards whose referral is active and unflagged and returns
// their ids. Pending referrals have no approved deposit yet.
func Payable(rewards []Reward) (decimal.Decimal, []string) {
	total := decimal.Zero
	var ids []string
	for _, r := range rewards {
		if r.ReferralStatus != "active" || r.Flagged {
			continue
		}
		total = total.Add(r.Amount)
		ids = append(ids, r.ID)
	}
	return total, ids
}
