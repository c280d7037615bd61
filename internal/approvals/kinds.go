// Package approvals implements the admin review of user requests that need a
// human decision: purchases fulfilled by hand, deposits, withdrawals and
// identity verification.
package approvals

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/opay-dz/opay/internal/wallet"
)

// Effect is what a decision does to the owner's wallet.
type Effect string

const (
	// EffectHold: funds are held at submission; approve consumes, reject refunds.
	EffectHold Effect = "hold"
	// EffectCredit: approve credits the stored credit amount; reject moves nothing.
	EffectCredit Effect = "credit"
	// EffectNone: approve marks the profile verified.
	EffectNone Effect = "none"
)

// Request statuses
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Decisions
const (
	Approve = "approve"
	Reject  = "reject"
)

var (
	ErrUnknownKind     = errors.New("unknown request kind")
	ErrNotSubmittable  = errors.New("this kind is submitted through its own endpoint")
	ErrNotPending      = errors.New("request has already been reviewed")
	ErrNotFound        = errors.New("request not found")
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrMissingDetail   = errors.New("missing required detail")
	ErrInvalidDecision = errors.New("decision must be approve or reject")
)

// Kind describes one reviewable resource.
type Kind struct {
	Name  string
	Table string
	// Type pins the type column of tables shared by two kinds.
	Type   string
	Effect Effect
	// Submittable kinds are created through Service.Submit.
	Submittable bool
	// Required detail keys checked at submission.
	Required []string
	TxType   string
}

var kinds = map[string]Kind{
	"digital_card": {
		Name: "digital_card", Table: "digital_card_orders", Effect: EffectHold,
		Submittable: true, Required: []string{"card_type"}, TxType: wallet.TxPurchase,
	},
	"game_topup": {
		Name: "game_topup", Table: "game_topup_orders", Effect: EffectHold,
		Submittable: true, Required: []string{"game", "player_id"}, TxType: wallet.TxPurchase,
	},
	"phone_topup": {
		Name: "phone_topup", Table: "phone_topup_orders", Effect: EffectHold,
		Submittable: true, Required: []string{"phone", "operator"}, TxType: wallet.TxPurchase,
	},
	"card_delivery": {
		Name: "card_delivery", Table: "card_delivery_orders", Effect: EffectHold,
		Submittable: true, Required: []string{"full_name", "address", "wilaya"}, TxType: wallet.TxPurchase,
	},
	"betting_deposit": {
		Name: "betting_deposit", Table: "betting_transactions", Type: "deposit", Effect: EffectHold,
		Submittable: true, Required: []string{"platform", "account_id"}, TxType: wallet.TxPurchase,
	},
	"betting_withdrawal": {
		Name: "betting_withdrawal", Table: "betting_transactions", Type: "withdrawal", Effect: EffectCredit,
		Submittable: true, Required: []string{"platform", "account_id"}, TxType: wallet.TxDeposit,
	},
	"deposit": {
		Name: "deposit", Table: "deposits", Effect: EffectCredit, TxType: wallet.TxDeposit,
	},
	"withdrawal": {
		Name: "withdrawal", Table: "withdrawals", Effect: EffectHold, TxType: wallet.TxWithdrawal,
	},
	"verification": {
		Name: "verification", Table: "verification_requests", Effect: EffectNone,
		Submittable: true, Required: []string{"front_path"},
	},
}

// Lookup returns the registered kind called name.
func Lookup(name string) (Kind, error) {
	k, ok := kinds[name]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	return k, nil
}

// Kinds lists every registered kind name, sorted.
func Kinds() []string {
	out := make([]string, 0, len(kinds))
	for name := range kinds {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CheckDetails verifies every required key is present and non-blank.
func (k Kind) CheckDetails(details map[string]any) error {
	for _, key := range k.Required {
		v, ok := details[key]
		if !ok || v == nil || strings.TrimSpace(fmt.Sprint(v)) == "" {
			return fmt.Errorf("%w: %s", ErrMissingDetail, key)
		}
	}
	return nil
}

// Movement is the wallet operation a decision triggers.
type Movement int

const (
	MoveNothing Movement = iota
	MoveConsumeHold
	MoveRefundHold
	MoveCredit
	MoveVerify
)

// Decide validates a decision on a request in status and returns the wallet movement it implies.
func Decide(k Kind, status, decision string) (Movement, error) {
	if status != StatusPending {
		return MoveNothing, ErrNotPending
	}
	switch decision {
	case Approve:
		switch k.Effect {
		case EffectHold:
			return MoveConsumeHold, nil
		case EffectCredit:
			return MoveCredit, nil
		default:
			return MoveVerify, nil
		}
	case Reject:
		if k.Effect == EffectHold {
			return MoveRefundHold, nil
		}
		return MoveNothing, nil
	}
	return MoveNothing, ErrInvalidDecision
}
