package wallet

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/fees"
)

var (
	ErrSelfTransfer     = errors.New("cannot transfer to yourself")
	ErrDuplicateDeposit = errors.New("an identical deposit was submitted in the last 5 minutes")
	ErrUnknownMethod    = errors.New("unsupported deposit method")
	ErrProofRequired    = errors.New("payment proof is required for this method")
)

// Deposit methods
const (
	MethodFlexy     = "flexy"
	MethodBaridiMob = "baridimob"
	MethodCCP       = "ccp"
)

// TransferPlan is what a transfer moves. The sender pays Amount + Fee.
type TransferPlan struct {
	Amount decimal.Decimal `json:"amount"`
	Fee    decimal.Decimal `json:"fee"`
	Total  decimal.Decimal `json:"total"`
}

// PlanTransfer prices a transfer between two wallets.
func PlanTransfer(senderID, recipientID string, amount decimal.Decimal, s fees.TransferSchedule) (TransferPlan, error) {
	if senderID == recipientID {
		return TransferPlan{}, ErrSelfTransfer
	}
	fee, err := fees.CalculateFee(amount, s)
	if err != nil {
		return TransferPlan{}, ErrNonPositive
	}
	return TransferPlan{Amount: amount, Fee: fee, Total: amount.Add(fee)}, nil
}

// DepositPlan is a validated deposit request ready to be stored as pending.
type DepositPlan struct {
	Method string
	Phone  string
	Amount decimal.Decimal
	Fee    decimal.Decimal
	Net    decimal.Decimal
}

// PlanDeposit validates a deposit request. Flexy deposits are charged the
// configured fee and checked against recent requests of the same user;
// bank methods need a proof and carry no fee.
func PlanDeposit(userID, method, phone, proofURL string, amount decimal.Decimal, cfg fees.FlexyFees, recent []fees.FlexyRequest, now time.Time) (DepositPlan, error) {
	if !amount.IsPositive() {
		return DepositPlan{}, ErrNonPositive
	}
	switch method {
	case MethodFlexy:
		if err := fees.ValidateFlexyPhone(phone); err != nil {
			return DepositPlan{}, err
		}
		req := fees.FlexyRequest{UserID: userID, Amount: amount, Phone: phone, CreatedAt: now}
		if fees.IsDuplicateFlexy(recent, req) {
			return DepositPlan{}, ErrDuplicateDeposit
		}
		fee, net, err := fees.FlexyFee(amount, cfg.FeePercentage)
		if err != nil {
			return DepositPlan{}, err
		}
		return DepositPlan{Method: method, Phone: phone, Amount: amount, Fee: fee, Net: net}, nil
	case MethodBaridiMob, MethodCCP:
		if proofURL == "" {
			return DepositPlan{}, ErrProofRequired
		}
		return DepositPlan{Method: method, Amount: amount, Fee: decimal.Zero, Net: amount}, nil
	}
	return DepositPlan{}, ErrUnknownMethod
}
