package telegram

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Record is the row that triggered a notification.
type Record map[string]any

// field returns record[key] rendered as text, or "-" when absent.
func (r Record) field(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return "-"
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return "-"
		}
		return html.EscapeString(t)
	case float64:
		return decimal.NewFromFloat(t).Round(2).String()
	default:
		return html.EscapeString(fmt.Sprint(t))
	}
}

type template struct {
	title  string
	fields []string
}

var templates = map[string]template{
	"deposit":            {"💰 New deposit request", []string{"user_id", "amount", "fee", "method", "phone", "status"}},
	"withdrawal":         {"🏧 New withdrawal request", []string{"user_id", "amount", "method", "account", "status"}},
	"transfer":           {"🔁 Transfer", []string{"sender_id", "recipient_id", "amount", "fee"}},
	"verification":       {"🪪 Identity verification submitted", []string{"user_id", "front_url", "back_url", "status"}},
	"p2p_order":          {"🤝 P2P order", []string{"id", "buyer_id", "seller_id", "amount", "total_price", "status"}},
	"p2p_dispute":        {"⚠️ P2P dispute opened", []string{"id", "buyer_id", "seller_id", "amount", "dispute_reason"}},
	"gift_card":          {"🎁 Gift card redeemed", []string{"user_id", "code", "amount"}},
	"digital_card":       {"💳 Digital card order", []string{"user_id", "card_type", "amount", "status"}},
	"game_topup":         {"🎮 Game top-up order", []string{"user_id", "game", "player_id", "amount", "status"}},
	"betting_deposit":    {"🎲 Betting deposit", []string{"user_id", "platform", "account_id", "amount", "status"}},
	"betting_withdrawal": {"🎲 Betting withdrawal", []string{"user_id", "platform", "account_id", "amount", "status"}},
	"phone_topup":        {"📱 Phone top-up order", []string{"user_id", "operator", "phone", "amount", "status"}},
	"card_delivery":      {"📦 Card delivery order", []string{"user_id", "card_type", "address", "amount", "status"}},
	"merchant_topup":     {"🏪 Merchant top-up", []string{"merchant_id", "customer_id", "amount", "commission", "customer_pays"}},
	"fraud_alert":        {"🚨 Fraud alert", []string{"user_id", "kind", "reason"}},
}

// Types lists the notification types that have a dedicated template.
func Types() []string {
	out := make([]string, 0, len(templates))
	for k := range templates {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Format renders an HTML message for notifyType. Unknown types fall back to a
// generic listing of every record field.
func Format(notifyType string, record Record) string {
	var b strings.Builder
	t, ok := templates[notifyType]
	if !ok {
		fmt.Fprintf(&b, "<b>🔔 %s</b>\n", html.EscapeString(notifyType))
		keys := make([]string, 0, len(record))
		for k := range record {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", html.EscapeString(k), record.field(k))
		}
		return strings.TrimRight(b.String(), "\n")
	}

	fmt.Fprintf(&b, "<b>%s</b>\n", t.title)
	for _, f := range t.fields {
		if _, present := record[f]; !present {
			continue
		}
		fmt.Fprintf(&b, "%s: <code>%s</code>\n", f, record.field(f))
	}
	if id, present := record["id"]; present && notifyType != "p2p_order" && notifyType != "p2p_dispute" {
		fmt.Fprintf(&b, "ref: <code>%s</code>\n", html.EscapeString(fmt.Sprint(id)))
	}
	return strings.TrimRight(b.String(), "\n")
}
