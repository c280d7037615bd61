package wallet

import (
	"context"
	"errors"
	"sort"

	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/db"
)

var (
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrInsufficientHold  = errors.New("held amount is lower than requested")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrNonPositive       = errors.New("amount must be greater than zero")
)

// transactions.type values
const (
	TxDeposit        = "deposit"
	TxWithdrawal     = "withdrawal"
	TxTransferIn     = "transfer_in"
	TxTransferOut    = "transfer_out"
	TxTransferFee    = "transfer_fee"
	TxEscrowHold     = "escrow_hold"
	TxEscrowRelease  = "escrow_release"
	TxEscrowRefund   = "escrow_refund"
	TxP2PCredit      = "p2p_credit"
	TxGiftCard       = "gift_card"
	TxReferral       = "referral_reward"
	TxMerchantTopup  = "merchant_topup"
	TxMerchantCredit = "merchant_commission"
	TxPurchase       = "purchase"
)

// Entry is a ledger movement as written to the transactions table.
type Entry struct {
	Type        string
	Reference   string
	Description string
}

func record(ctx context.Context, q db.Querier, userID string, amount decimal.Decimal, e Entry) error {
	_, err := q.Exec(ctx,
		`INSERT INTO transactions (user_id, type, amount, status, reference, description)
		 VALUES ($1, $2, $3, 'completed', NULLIF($4, ''), NULLIF($5, ''))`,
		userID, e.Type, amount, e.Reference, e.Description,
	)
	return pkgerrors.Wrapf(err, "record %s for %s", e.Type, userID)
}

func mustBePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositive
	}
	return nil
}

// Lock takes row locks on the given wallets in user id order so concurrent
// movements between the same users cannot deadlock.
func Lock(ctx context.Context, q db.Querier, userIDs ...string) error {
	ids := append([]string(nil), userIDs...)
	sort.Strings(ids)
	for _, id := range ids {
		var one int
		err := q.QueryRow(ctx, `SELECT 1 FROM user_balances WHERE user_id = $1 FOR UPDATE`, id).Scan(&one)
		if db.IsNoRows(err) {
			return ErrWalletNotFound
		}
		if err != nil {
			return pkgerrors.Wrapf(err, "lock wallet %s", id)
		}
	}
	return nil
}

// Credit adds amount to the spendable balance.
func Credit(ctx context.Context, q db.Querier, userID string, amount decimal.Decimal, e Entry) error {
	if err := mustBePositive(amount); err != nil {
		return err
	}
	tag, err := q.Exec(ctx,
		`UPDATE user_balances SET balance = balance + $1, updated_at = NOW() WHERE user_id = $2`,
		amount, userID)
	if err != nil {
		return pkgerrors.Wrap(err, "credit balance")
	}
	if tag.RowsAffected() != 1 {
		return ErrWalletNotFound
	}
	return record(ctx, q, userID, amount, e)
}

// Debit removes amount from the spendable balance.
func Debit(ctx context.Context, q db.Querier, userID string, amount decimal.Decimal, e Entry) error {
	if err := mustBePositive(amount); err != nil {
		return err
	}
	tag, err := q.Exec(ctx,
		`UPDATE user_balances SET balance = balance - $1, updated_at = NOW()
		 WHERE user_id = $2 AND balance >= $1`,
		amount, userID)
	if err != nil {
		return pkgerrors.Wrap(err, "debit balance")
	}
	if tag.RowsAffected() != 1 {
		return ErrInsufficientFunds
	}
	return record(ctx, q, userID, amount.Neg(), e)
}

// Hold moves amount from balance into escrow.
func Hold(ctx context.Context, q db.Querier, userID string, amount decimal.Decimal, e Entry) error {
	if err := mustBePositive(amount); err != nil {
		return err
	}
	tag, err := q.Exec(ctx,
		`UPDATE user_balances SET balance = balance - $1, escrow = escrow + $1, updated_at = NOW()
		 WHERE user_id = $2 AND balance >= $1`,
		amount, userID)
	if err != nil {
		return pkgerrors.Wrap(err, "hold funds")
	}
	if tag.RowsAffected() != 1 {
		return ErrInsufficientFunds
	}
	return record(ctx, q, userID, amount.Neg(), e)
}

// ReleaseHold consumes amount from escrow; the funds leave the wallet.
func ReleaseHold(ctx context.Context, q db.Querier, userID string, amount decimal.Decimal, e Entry) error {
	if err := mustBePositive(amount); err != nil {
		return err
	}
	tag, err := q.Exec(ctx,
		`UPDATE user_balances SET escrow = escrow - $1, updated_at = NOW()
		 WHERE user_id = $2 AND escrow >= $1`,
		amount, userID)
	if err != nil {
		return pkgerrors.Wrap(err, "release hold")
	}
	if tag.RowsAffected() != 1 {
		return ErrInsufficientHold
	}
	// the balance side was already recorded by Hold
	return record(ctx, q, userID, decimal.Zero, e)
}

// RefundHold returns amount from escrow to the spendable balance.
func RefundHold(ctx context.Context, q db.Querier, userID string, amount decimal.Decimal, e Entry) error {
	if err := mustBePositive(amount); err != nil {
		return err
	}
	tag, err := q.Exec(ctx,
		`UPDATE user_balances SET escrow = escrow - $1, balance = balance + $1, updated_at = NOW()
		 WHERE user_id = $2 AND escrow >= $1`,
		amount, userID)
	if err != nil {
		return pkgerrors.Wrap(err, "refund hold")
	}
	if tag.RowsAffected() != 1 {
		return ErrInsufficientHold
	}
	return record(ctx, q, userID, amount, e)
}

// Open creates an empty wallet for a new user.
func Open(ctx context.Context, q db.Querier, userID string) error {
	_, err := q.Exec(ctx,
		`INSERT INTO user_balances (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	return pkgerrors.Wrap(err, "open wallet")
}
