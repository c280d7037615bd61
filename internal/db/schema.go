package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// reviewableColumns are shared by every table an admin approves or rejects.
const reviewableColumns = `
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    amount NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (amount >= 0),
    fee NUMERIC(14,2) NOT NULL DEFAULT 0,
    credit_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','approved','rejected')),
    details JSONB NOT NULL DEFAULT '{}'::jsonb,
    proof_url TEXT NULL,
    admin_note TEXT NULL,
    reviewed_by UUID NULL REFERENCES profiles(id) ON DELETE SET NULL,
    reviewed_at TIMESTAMPTZ NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()`

func reviewableTable(name, extra string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s%s);
        CREATE INDEX IF NOT EXISTS idx_%s_status ON %s(status, created_at);
        CREATE INDEX IF NOT EXISTS idx_%s_user ON %s(user_id, created_at)`,
		name, reviewableColumns, extra, name, name, name, name)
}

var migrations = []struct {
	name string
	sql  string
}{
	{"extensions", `CREATE EXTENSION IF NOT EXISTS pgcrypto`},
	{"profiles", `
        CREATE TABLE IF NOT EXISTS profiles (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            phone TEXT NULL,
            password TEXT NOT NULL,
            role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user','merchant','admin')),
            is_verified BOOLEAN NOT NULL DEFAULT FALSE,
            is_banned BOOLEAN NOT NULL DEFAULT FALSE,
            ban_reason TEXT NULL,
            referral_code TEXT NULL UNIQUE,
            referred_by UUID NULL REFERENCES profiles(id) ON DELETE SET NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_profiles_phone ON profiles(phone)`},
	{"user_balances", `
        CREATE TABLE IF NOT EXISTS user_balances (
            user_id UUID PRIMARY KEY REFERENCES profiles(id) ON DELETE CASCADE,
            balance NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
            escrow NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (escrow >= 0),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`},
	{"transactions", `
        CREATE TABLE IF NOT EXISTS transactions (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
            type TEXT NOT NULL,
            amount NUMERIC(14,2) NOT NULL,
            status TEXT NOT NULL,
            reference TEXT NULL,
            description TEXT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, created_at)`},
	{"platform_settings", `
        CREATE TABLE IF NOT EXISTS platform_settings (
            key TEXT PRIMARY KEY,
            value JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`},
	{"p2p_ads", `
        CREATE TABLE IF NOT EXISTS p2p_ads (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
            ad_type TEXT NOT NULL CHECK (ad_type IN ('buy','sell')),
            amount NUMERIC(14,2) NOT NULL CHECK (amount >= 0),
            min_amount NUMERIC(14,2) NOT NULL CHECK (min_amount > 0),
            max_amount NUMERIC(14,2) NOT NULL,
            price_per_unit NUMERIC(14,4) NOT NULL CHECK (price_per_unit > 0),
            payment_methods TEXT[] NOT NULL,
            terms TEXT NULL,
            payment_window_minutes INTEGER NOT NULL DEFAULT 15,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            completed_trades INTEGER NOT NULL DEFAULT 0,
            total_volume NUMERIC(14,2) NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (min_amount <= max_amount)
        );
        CREATE INDEX IF NOT EXISTS idx_p2p_ads_active ON p2p_ads(ad_type, is_active)`},
	{"p2p_orders", `
        CREATE TABLE IF NOT EXISTS p2p_orders (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            ad_id UUID NOT NULL REFERENCES p2p_ads(id) ON DELETE RESTRICT,
            buyer_id UUID NOT NULL REFERENCES profiles(id),
            seller_id UUID NOT NULL REFERENCES profiles(id),
            taker_id UUID NOT NULL REFERENCES profiles(id),
            amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
            price_per_unit NUMERIC(14,4) NOT NULL,
            total_price NUMERIC(14,2) NOT NULL,
            platform_fee NUMERIC(14,2) NOT NULL,
            status TEXT NOT NULL CHECK (status IN (
                'pending','escrow_locked','payment_sent','payment_confirmed',
                'completed','cancelled','disputed','dispute_resolved')),
            idempotency_key TEXT NULL,
            dispute_reason TEXT NULL,
            resolution TEXT NULL CHECK (resolution IN ('release','refund')),
            payment_deadline TIMESTAMPTZ NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            paid_at TIMESTAMPTZ NULL,
            confirmed_at TIMESTAMPTZ NULL,
            completed_at TIMESTAMPTZ NULL,
            cancelled_at TIMESTAMPTZ NULL,
            disputed_at TIMESTAMPTZ NULL,
            resolved_at TIMESTAMPTZ NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (buyer_id <> seller_id),
            CHECK (taker_id IN (buyer_id, seller_id)),
            UNIQUE (taker_id, idempotency_key)
        );
        CREATE INDEX IF NOT EXISTS idx_p2p_orders_status_deadline ON p2p_orders(status, payment_deadline)`},
	{"p2p_messages", `
        CREATE TABLE IF NOT EXISTS p2p_messages (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            order_id UUID NOT NULL REFERENCES p2p_orders(id) ON DELETE CASCADE,
            sender_id UUID NULL REFERENCES profiles(id),
            message TEXT NOT NULL,
            is_system BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_p2p_messages_order ON p2p_messages(order_id, created_at)`},
	{"p2p_trader_profiles", `
        CREATE TABLE IF NOT EXISTS p2p_trader_profiles (
            user_id UUID PRIMARY KEY REFERENCES profiles(id) ON DELETE CASCADE,
            total_trades INTEGER NOT NULL DEFAULT 0,
            successful_trades INTEGER NOT NULL DEFAULT 0,
            avg_rating NUMERIC(3,2) NOT NULL DEFAULT 0,
            rating_count INTEGER NOT NULL DEFAULT 0,
            avg_release_time INTEGER NOT NULL DEFAULT 0,
            is_verified_trader BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`},
	{"p2p_ratings", `
        CREATE TABLE IF NOT EXISTS p2p_ratings (
            order_id UUID NOT NULL REFERENCES p2p_orders(id) ON DELETE CASCADE,
            rater_id UUID NOT NULL REFERENCES profiles(id),
            ratee_id UUID NOT NULL REFERENCES profiles(id),
            rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
            comment TEXT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (order_id, rater_id)
        )`},
	{"deposits", reviewableTable("deposits", `,
        method TEXT NOT NULL DEFAULT 'flexy',
        phone TEXT NULL`)},
	{"withdrawals", reviewableTable("withdrawals", ``)},
	{"digital_card_orders", reviewableTable("digital_card_orders", ``)},
	{"game_topup_orders", reviewableTable("game_topup_orders", ``)},
	{"phone_topup_orders", reviewableTable("phone_topup_orders", ``)},
	{"card_delivery_orders", reviewableTable("card_delivery_orders", ``)},
	{"verification_requests", reviewableTable("verification_requests", ``)},
	{"betting_accounts", `
        CREATE TABLE IF NOT EXISTS betting_accounts (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
            platform TEXT NOT NULL,
            account_id TEXT NOT NULL,
            is_verified BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (user_id, platform, account_id)
        )`},
	{"betting_transactions", reviewableTable("betting_transactions", `,
        type TEXT NOT NULL CHECK (type IN ('deposit','withdrawal'))`)},
	{"gift_cards", `
        CREATE TABLE IF NOT EXISTS gift_cards (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            code TEXT NOT NULL UNIQUE,
            amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
            status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','redeemed','disabled')),
            redeemed_by UUID NULL REFERENCES profiles(id),
            redeemed_at TIMESTAMPTZ NULL,
            created_by UUID NULL REFERENCES profiles(id),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE TABLE IF NOT EXISTS gift_card_attempts (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
            code TEXT NOT NULL,
            success BOOLEAN NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_gift_card_attempts_user ON gift_card_attempts(user_id, created_at);
        CREATE TABLE IF NOT EXISTS gift_card_lockouts (
            user_id UUID PRIMARY KEY REFERENCES profiles(id) ON DELETE CASCADE,
            locked_until TIMESTAMPTZ NOT NULL
        )`},
	{"referrals", `
        CREATE TABLE IF NOT EXISTS referrals (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            referrer_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
            referred_id UUID NOT NULL UNIQUE REFERENCES profiles(id) ON DELETE CASCADE,
            status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','active','cancelled')),
            is_flagged BOOLEAN NOT NULL DEFAULT FALSE,
            flag_reason TEXT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE TABLE IF NOT EXISTS referral_rewards (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            referral_id UUID NOT NULL REFERENCES referrals(id) ON DELETE CASCADE,
            referrer_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
            amount NUMERIC(14,2) NOT NULL,
            status TEXT NOT NULL DEFAULT 'earned' CHECK (status IN ('earned','withdrawn','cancelled')),
            withdrawn_at TIMESTAMPTZ NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE TABLE IF NOT EXISTS fraud_attempts (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
            kind TEXT NOT NULL,
            details JSONB NOT NULL DEFAULT '{}'::jsonb,
            created_by UUID NULL REFERENCES profiles(id),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`},
	{"merchants", `
        CREATE TABLE IF NOT EXISTS merchant_accounts (
            user_id UUID PRIMARY KEY REFERENCES profiles(id) ON DELETE CASCADE,
            business_name TEXT NOT NULL,
            tier TEXT NOT NULL DEFAULT 'bronze' CHECK (tier IN ('bronze','silver','gold','platinum')),
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            total_topups NUMERIC(14,2) NOT NULL DEFAULT 0,
            total_commission NUMERIC(14,2) NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE TABLE IF NOT EXISTS merchant_topups (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            merchant_id UUID NOT NULL REFERENCES merchant_accounts(user_id),
            customer_id UUID NOT NULL REFERENCES profiles(id),
            amount NUMERIC(14,2) NOT NULL,
            commission NUMERIC(14,2) NOT NULL,
            customer_pays NUMERIC(14,2) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`},
	{"notifications", `
        CREATE TABLE IF NOT EXISTS notifications (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
            type TEXT NOT NULL,
            title TEXT NOT NULL,
            body TEXT,
            reference TEXT NULL,
            metadata JSONB NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            read_at TIMESTAMPTZ NULL
        );
        CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications(user_id) WHERE read_at IS NULL`},
}

// EnsureSchema creates every table the service uses. Statements are
// idempotent; a failing step is logged and the remaining steps still run.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) {
	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			logger.Error().Err(err).Str("step", m.name).Msg("schema step failed")
			continue
		}
		logger.Debug().Str("step", m.name).Msg("schema step ensured")
	}
}
