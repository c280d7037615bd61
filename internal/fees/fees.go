// Package fees holds every fee rule the wallet charges. All functions are pure
// and operate on decimal amounts in the wallet currency (DZD) unless a name
// says otherwise.
package fees

import (
	"errors"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidRate     = errors.New("rate must be greater than zero")
	ErrInvalidPhone    = errors.New("phone number must start with 06 and have 10 digits")
)

var hundred = decimal.NewFromInt(100)

func percentOf(v, pct decimal.Decimal) decimal.Decimal {
	return v.Mul(pct).Div(hundred)
}

// Config groups the typed schedule of every fee kind. Zero values are
// replaced by DefaultConfig when loaded from platform settings.
type Config struct {
	P2PFeePercentage decimal.Decimal          `json:"p2p_fee_percentage"`
	Transfer         TransferSchedule         `json:"transfer"`
	AliExpress       AliExpressFees           `json:"aliexpress"`
	Flexy            FlexyFees                `json:"flexy"`
	MerchantTiers    map[Tier]decimal.Decimal `json:"merchant_tiers"`
}

// DefaultConfig returns the schedules used when platform_settings has no override.
func DefaultConfig() Config {
	return Config{
		P2PFeePercentage: decimal.NewFromInt(2),
		Transfer: TransferSchedule{
			Percentage: decimal.NewFromInt(1),
			Fixed:      decimal.Zero,
			Min:        decimal.NewFromInt(10),
			Max:        decimal.NewFromInt(1000),
		},
		AliExpress: AliExpressFees{
			ServiceFeePercentage: decimal.NewFromInt(5),
			MinServiceFee:        decimal.NewFromInt(100),
			DefaultShippingFee:   decimal.NewFromInt(500),
		},
		Flexy: FlexyFees{FeePercentage: decimal.NewFromInt(5)},
		MerchantTiers: map[Tier]decimal.Decimal{
			TierBronze:   decimal.NewFromInt(2),
			TierSilver:   decimal.NewFromInt(3),
			TierGold:     decimal.NewFromInt(4),
			TierPlatinum: decimal.NewFromInt(5),
		},
	}
}

// =========================
// P2P
// =========================

// P2PQuote is the price breakdown of a P2P order.
type P2PQuote struct {
	TotalPrice  decimal.Decimal `json:"total_price"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
}

// P2PFee computes total_price = amount × price and platform_fee = total × pct%.
func P2PFee(amount, pricePerUnit, feePercentage decimal.Decimal) (P2PQuote, error) {
	if !amount.IsPositive() {
		return P2PQuote{}, ErrInvalidAmount
	}
	if !pricePerUnit.IsPositive() {
		return P2PQuote{}, ErrInvalidRate
	}
	total := amount.Mul(pricePerUnit).Round(2)
	return P2PQuote{
		TotalPrice:  total,
		PlatformFee: percentOf(total, feePercentage).Round(2),
	}, nil
}

// P2PFeeUnits is the platform fee expressed in the traded asset, which is
// what the buyer forfeits when escrow is released.
func P2PFeeUnits(amount, feePercentage decimal.Decimal) decimal.Decimal {
	return percentOf(amount, feePercentage).Round(2)
}

// =========================
// Transfers
// =========================

// TransferSchedule is a percentage plus fixed fee clamped to [Min, Max].
// A zero Max means uncapped.
type TransferSchedule struct {
	Percentage decimal.Decimal `json:"percentage"`
	Fixed      decimal.Decimal `json:"fixed"`
	Min        decimal.Decimal `json:"min"`
	Max        decimal.Decimal `json:"max"`
}

// CalculateFee resolves the transfer fee for amount. The fee never exceeds the amount itself.
func CalculateFee(amount decimal.Decimal, s TransferSchedule) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	fee := percentOf(amount, s.Percentage).Add(s.Fixed)
	if fee.LessThan(s.Min) {
		fee = s.Min
	}
	if s.Max.IsPositive() && fee.GreaterThan(s.Max) {
		fee = s.Max
	}
	if fee.GreaterThan(amount) {
		fee = amount
	}
	return fee.Round(2), nil
}

// =========================
// AliExpress proxy purchase
// =========================

// AliExpressFees configures the proxy-purchase preview.
type AliExpressFees struct {
	ServiceFeePercentage decimal.Decimal `json:"service_fee_percentage"`
	MinServiceFee        decimal.Decimal `json:"min_service_fee"`
	DefaultShippingFee   decimal.Decimal `json:"default_shipping_fee"`
}

// AliExpressQuote is the preview shown before a proxy purchase.
type AliExpressQuote struct {
	PriceUSD       decimal.Decimal `json:"price_usd"`
	PriceDZD       decimal.Decimal `json:"price_dzd"`
	ServiceFeeDZD  decimal.Decimal `json:"service_fee_dzd"`
	ShippingFeeDZD decimal.Decimal `json:"shipping_fee_dzd"`
	TotalDZD       decimal.Decimal `json:"total_dzd"`
}

// AliExpressBreakdown prices quantity units at unitPriceUSD converted at rate.
// scrapedShippingUSD is used when positive, otherwise the default shipping fee (already in DZD).
func AliExpressBreakdown(unitPriceUSD decimal.Decimal, quantity int, rate decimal.Decimal, f AliExpressFees, scrapedShippingUSD decimal.Decimal) (AliExpressQuote, error) {
	if !unitPriceUSD.IsPositive() {
		return AliExpressQuote{}, ErrInvalidAmount
	}
	if quantity < 1 {
		return AliExpressQuote{}, ErrInvalidQuantity
	}
	if !rate.IsPositive() {
		return AliExpressQuote{}, ErrInvalidRate
	}

	q := AliExpressQuote{}
	q.PriceUSD = unitPriceUSD.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
	q.PriceDZD = q.PriceUSD.Mul(rate).Round(2)
	q.ServiceFeeDZD = decimal.Max(percentOf(q.PriceDZD, f.ServiceFeePercentage), f.MinServiceFee).Round(2)
	if scrapedShippingUSD.IsPositive() {
		q.ShippingFeeDZD = scrapedShippingUSD.Mul(rate).Round(2)
	} else {
		q.ShippingFeeDZD = f.DefaultShippingFee
	}
	q.TotalDZD = q.PriceDZD.Add(q.ServiceFeeDZD).Add(q.ShippingFeeDZD)
	return q, nil
}

// =========================
// Flexy deposits
// =========================

// FlexyDuplicateWindow is how far back an identical deposit request counts as a duplicate.
const FlexyDuplicateWindow = 5 * time.Minute

var flexyPhone = regexp.MustCompile(`^06\d{8}$`)

// FlexyFees configures mobile-credit deposits.
type FlexyFees struct {
	FeePercentage decimal.Decimal `json:"fee_percentage"`
}

// FlexyFee returns the whole-dinar fee and the amount credited after approval.
func FlexyFee(amount, feePercentage decimal.Decimal) (fee, net decimal.Decimal, err error) {
	if !amount.IsPositive() {
		return decimal.Zero, decimal.Zero, ErrInvalidAmount
	}
	fee = percentOf(amount, feePercentage).Round(0)
	return fee, amount.Sub(fee), nil
}

// ValidateFlexyPhone accepts Mobilis numbers only.
func ValidateFlexyPhone(phone string) error {
	if !flexyPhone.MatchString(phone) {
		return ErrInvalidPhone
	}
	return nil
}

// FlexyRequest is the tuple the duplicate guard compares.
type FlexyRequest struct {
	UserID    string
	Amount    decimal.Decimal
	Phone     string
	CreatedAt time.Time
}

// IsDuplicateFlexy reports whether any of recent matches r within FlexyDuplicateWindow before r.CreatedAt.
func IsDuplicateFlexy(recent []FlexyRequest, r FlexyRequest) bool {
	cutoff := r.CreatedAt.Add(-FlexyDuplicateWindow)
	for _, p := range recent {
		if p.UserID != r.UserID || p.Phone != r.Phone || !p.Amount.Equal(r.Amount) {
			continue
		}
		if p.CreatedAt.After(cutoff) && !p.CreatedAt.After(r.CreatedAt) {
			return true
		}
	}
	return false
}

// =========================
// Merchant commission
// =========================

// Tier is a merchant commission classification.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierBronze, TierSilver, TierGold, TierPlatinum:
		return true
	}
	return false
}

// MerchantQuote splits a merchant top-up. The merchant collects CustomerPays
// in cash; the platform only moves WalletDebit and grants Commission.
type MerchantQuote struct {
	Amount       decimal.Decimal `json:"amount"`
	Commission   decimal.Decimal `json:"commission"`
	CustomerPays decimal.Decimal `json:"customer_pays"`
	WalletDebit  decimal.Decimal `json:"wallet_debit"`
}

// MerchantCommission rounds the commission to 2 decimal places.
func MerchantCommission(amount, ratePercentage decimal.Decimal) (MerchantQuote, error) {
	if !amount.IsPositive() {
		return MerchantQuote{}, ErrInvalidAmount
	}
	if ratePercentage.IsNegative() {
		return MerchantQuote{}, ErrInvalidRate
	}
	commission := percentOf(amount, ratePercentage).Round(2)
	return MerchantQuote{
		Amount:       amount,
		Commission:   commission,
		CustomerPays: amount.Add(commission),
		WalletDebit:  amount,
	}, nil
}

// =========================
// Referral withdrawals
// =========================

// ReferralWithdrawalFee is the percentage withheld from referral rewards for
// a referrer with the given number of active referrals.
func ReferralWithdrawalFee(activeReferrals int) decimal.Decimal {
	switch {
	case activeReferrals >= 100:
		return decimal.Zero
	case activeReferrals >= 50:
		return decimal.NewFromInt(50)
	case activeReferrals >= 20:
		return decimal.NewFromInt(80)
	default:
		return hundred
	}
}

// ReferralWithdrawable returns the withheld fee and the amount paid out of total.
func ReferralWithdrawable(total decimal.Decimal, activeReferrals int) (fee, withdrawable decimal.Decimal) {
	fee = percentOf(total, ReferralWithdrawalFee(activeReferrals)).Round(2)
	return fee, total.Sub(fee)
}
