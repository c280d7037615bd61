// Package rpc exposes the named procedures the web client calls as
// POST /rpc/:name. Every answer has the shape {success, error?, message?, ...}.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/approvals"
	"github.com/opay-dz/opay/internal/betting"
	"github.com/opay-dz/opay/internal/giftcard"
	"github.com/opay-dz/opay/internal/logging"
	"github.com/opay-dz/opay/internal/metrics"
	"github.com/opay-dz/opay/internal/referral"
)

var logger = logging.NewPackageLogger("rpc")

var (
	ErrUnknownProcedure = errors.New("unknown procedure")
	ErrForbidden        = errors.New("admin access required")
	ErrBadArguments     = errors.New("invalid arguments")
)

type Approvals interface {
	Submit(ctx context.Context, userID, kind string, amount decimal.Decimal, details map[string]any) (approvals.Request, error)
	Review(ctx context.Context, adminID, kind, id, decision, proofURL, note string) (approvals.Request, error)
}

type Betting interface {
	Verify(ctx context.Context, userID, platform, accountID string) (betting.Account, error)
}

type GiftCards interface {
	Redeem(ctx context.Context, userID, code string) (giftcard.Result, error)
}

type Referrals interface {
	EnsureCode(ctx context.Context, userID string) (string, error)
	Withdraw(ctx context.Context, userID string) (referral.Withdrawal, error)
	FlagSuspicious(ctx context.Context, referrerID string) (referral.Flagged, error)
	CancelFraudulent(ctx context.Context, adminID, referralID, reason string) error
	BanUser(ctx context.Context, adminID, userID, reason string) error
}

// Deps are the services procedures delegate to.
type Deps struct {
	Approvals Approvals
	Betting   Betting
	GiftCards GiftCards
	Referrals Referrals
}

// Caller is the authenticated principal of a call.
type Caller struct {
	UserID string
	Admin  bool
}

// Result is the JSON body of an answer.
type Result map[string]any

type procedure struct {
	admin bool
	run   func(ctx context.Context, who Caller, args json.RawMessage) (Result, error)
}

// Dispatcher routes calls by name.
type Dispatcher struct {
	procs map[string]procedure
}

func NewDispatcher(d Deps) *Dispatcher {
	p := map[string]procedure{
		"verify_betting_account": {run: func(ctx context.Context, who Caller, raw json.RawMessage) (Result, error) {
			var a struct {
				Platform  string `json:"platform"`
				AccountID string `json:"account_id"`
			}
			if err := decode(raw, &a); err != nil {
				return nil, err
			}
			acc, err := d.Betting.Verify(ctx, who.UserID, a.Platform, a.AccountID)
			if err != nil {
				return nil, err
			}
			return Result{"account": acc, "message": "Account verified"}, nil
		}},
		"process_game_topup_order": {run: func(ctx context.Context, who Caller, raw json.RawMessage) (Result, error) {
			var details map[string]any
			if err := decode(raw, &details); err != nil {
				return nil, err
			}
			amount, err := takeAmount(details)
			if err != nil {
				return nil, err
			}
			r, err := d.Approvals.Submit(ctx, who.UserID, "game_topup", amount, details)
			if err != nil {
				return nil, err
			}
			return Result{"order_id": r.ID, "status": r.Status, "message": "Order submitted for processing"}, nil
		}},
		"redeem_gift_card": {run: func(ctx context.Context, who Caller, raw json.RawMessage) (Result, error) {
			var a struct {
				Code string `json:"code"`
			}
			if err := decode(raw, &a); err != nil {
				return nil, err
			}
			if strings.TrimSpace(a.Code) == "" {
				return nil, ErrBadArguments
			}
			res, err := d.GiftCards.Redeem(ctx, who.UserID, a.Code)
			if err != nil {
				out := Result{}
				if res.LockedUntil != nil {
					out["locked_until"] = res.LockedUntil
					out["remaining_seconds"] = res.RemainingSeconds
				} else if res.AttemptsRemaining > 0 {
					out["attempts_remaining"] = res.AttemptsRemaining
				}
				return out, err
			}
			return Result{"amount": res.Amount, "message": "Gift card redeemed"}, nil
		}},
		"withdraw_referral_rewards": {run: func(ctx context.Context, who Caller, _ json.RawMessage) (Result, error) {
			w, err := d.Referrals.Withdraw(ctx, who.UserID)
			if err != nil {
				return nil, err
			}
			return Result{
				"total": w.Total, "fee": w.Fee, "withdrawable": w.Withdrawable,
				"active_referrals": w.ActiveReferrals, "message": "Rewards added to your wallet",
			}, nil
		}},
		"ensure_referral_code": {run: func(ctx context.Context, who Caller, _ json.RawMessage) (Result, error) {
			code, err := d.Referrals.EnsureCode(ctx, who.UserID)
			if err != nil {
				return nil, err
			}
			return Result{"referral_code": code}, nil
		}},
		"flag_suspicious_referrals": {admin: true, run: func(ctx context.Context, _ Caller, raw json.RawMessage) (Result, error) {
			var a struct {
				ReferrerID string `json:"referrer_id"`
			}
			if err := decode(raw, &a); err != nil || a.ReferrerID == "" {
				return nil, ErrBadArguments
			}
			f, err := d.Referrals.FlagSuspicious(ctx, a.ReferrerID)
			if err != nil {
				return nil, err
			}
			return Result{"flagged": f.Flagged, "groups": f.Groups}, nil
		}},
		"cancel_fraudulent_referral": {admin: true, run: func(ctx context.Context, who Caller, raw json.RawMessage) (Result, error) {
			var a struct {
				ReferralID string `json:"referral_id"`
				Reason     string `json:"reason"`
			}
			if err := decode(raw, &a); err != nil || a.ReferralID == "" {
				return nil, ErrBadArguments
			}
			if err := d.Referrals.CancelFraudulent(ctx, who.UserID, a.ReferralID, a.Reason); err != nil {
				return nil, err
			}
			return Result{"message": "Referral cancelled"}, nil
		}},
		"ban_fraudulent_user": {admin: true, run: func(ctx context.Context, who Caller, raw json.RawMessage) (Result, error) {
			var a struct {
				UserID string `json:"user_id"`
				Reason string `json:"reason"`
			}
			if err := decode(raw, &a); err != nil || a.UserID == "" {
				return nil, ErrBadArguments
			}
			if err := d.Referrals.BanUser(ctx, who.UserID, a.UserID, a.Reason); err != nil {
				return nil, err
			}
			return Result{"message": "User banned"}, nil
		}},
	}

	reviews := []struct{ name, kind, decision, idKey string }{
		{"process_betting_deposit", "betting_deposit", approvals.Approve, "transaction_id"},
		{"reject_betting_deposit", "betting_deposit", approvals.Reject, "transaction_id"},
		{"approve_digital_card_order", "digital_card", approvals.Approve, "order_id"},
		{"reject_digital_card_order", "digital_card", approvals.Reject, "order_id"},
		{"approve_game_topup_order", "game_topup", approvals.Approve, "order_id"},
		{"reject_game_topup_order", "game_topup", approvals.Reject, "order_id"},
		{"approve_phone_topup_order", "phone_topup", approvals.Approve, "order_id"},
		{"reject_phone_topup_order", "phone_topup", approvals.Reject, "order_id"},
	}
	for _, rv := range reviews {
		rv := rv
		p[rv.name] = procedure{admin: true, run: func(ctx context.Context, who Caller, raw json.RawMessage) (Result, error) {
			var a map[string]any
			if err := decode(raw, &a); err != nil {
				return nil, err
			}
			id := str(a, rv.idKey)
			if id == "" {
				id = str(a, "id")
			}
			if id == "" {
				return nil, ErrBadArguments
			}
			note := str(a, "note")
			if note == "" {
				note = str(a, "reason")
			}
			r, err := d.Approvals.Review(ctx, who.UserID, rv.kind, id, rv.decision, str(a, "proof_url"), note)
			if err != nil {
				return nil, err
			}
			return Result{rv.idKey: r.ID, "status": r.Status, "message": "Request " + r.Status}, nil
		}}
	}
	return &Dispatcher{procs: p}
}

// Names lists every registered procedure.
func (d *Dispatcher) Names() []string {
	out := make([]string, 0, len(d.procs))
	for n := range d.procs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Call runs a procedure and returns the HTTP status and body. Domain failures
// answer 200 with success=false; unexpected errors are logged and hidden.
func (d *Dispatcher) Call(ctx context.Context, who Caller, name string, args json.RawMessage) (int, Result) {
	p, ok := d.procs[name]
	if !ok {
		metrics.RPCCalls.WithLabelValues("unknown", "not_found").Inc()
		return http.StatusNotFound, Result{"success": false, "error": ErrUnknownProcedure.Error()}
	}
	if p.admin && !who.Admin {
		metrics.RPCCalls.WithLabelValues(name, "forbidden").Inc()
		return http.StatusForbidden, Result{"success": false, "error": ErrForbidden.Error()}
	}

	res, err := p.run(ctx, who, args)
	if res == nil {
		res = Result{}
	}
	switch {
	case err == nil:
		metrics.RPCCalls.WithLabelValues(name, "success").Inc()
		res["success"] = true
		return http.StatusOK, res
	case public(err):
		metrics.RPCCalls.WithLabelValues(name, "failure").Inc()
		res["success"] = false
		res["error"] = err.Error()
		return http.StatusOK, res
	}
	metrics.RPCCalls.WithLabelValues(name, "error").Inc()
	logger.Error().Err(err).Str("procedure", name).Str(logging.USER, who.UserID).Msg("procedure failed")
	return http.StatusInternalServerError, Result{"success": false, "error": "internal error"}
}

// public reports whether err is a domain outcome the caller may see.
func public(err error) bool {
	switch {
	case errors.Is(err, ErrBadArguments),
		errors.Is(err, giftcard.ErrLocked), errors.Is(err, giftcard.ErrInvalidCode),
		errors.Is(err, betting.ErrUnsupportedPlatform), errors.Is(err, betting.ErrInvalidAccountID):
		return true
	}
	return approvals.StatusFor(err) != http.StatusInternalServerError ||
		referral.StatusFor(err) != http.StatusInternalServerError
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return ErrBadArguments
	}
	return nil
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

// takeAmount removes "amount" from args and parses it.
func takeAmount(args map[string]any) (decimal.Decimal, error) {
	v, ok := args["amount"]
	if !ok {
		return decimal.Zero, ErrBadArguments
	}
	delete(args, "amount")
	var s string
	switch a := v.(type) {
	case json.Number:
		s = a.String()
	case string:
		s = strings.TrimSpace(a)
	default:
		return decimal.Zero, ErrBadArguments
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrBadArguments
	}
	return d, nil
}
