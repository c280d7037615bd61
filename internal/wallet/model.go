package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is a row of user_balances. Escrow is held for open P2P orders and
// pending withdrawals or purchases and cannot be spent.
type Balance struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Escrow    decimal.Decimal `json:"escrow"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Transaction is one ledger line.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	Reference   string          `json:"reference,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Deposit is a pending or reviewed deposit request.
type Deposit struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Method       string          `json:"method"`
	Phone        string          `json:"phone,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Fee          decimal.Decimal `json:"fee"`
	CreditAmount decimal.Decimal `json:"credit_amount"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Withdrawal is a payout request whose amount is held until review.
type Withdrawal struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	Details   map[string]any  `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
