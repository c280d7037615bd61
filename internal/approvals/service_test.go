package approvals

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opay-dz/opay/internal/alerts"
	"github.com/opay-dz/opay/internal/realtime"
	"github.com/opay-dz/opay/internal/wallet"
)

type recordingSink struct {
	types []string
}

func (s *recordingSink) Enqueue(_ context.Context, notifyType string, _ any) {
	s.types = append(s.types, notifyType)
}

type fixture struct {
	store  *memStore
	sink   *recordingSink
	events chan realtime.Event
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := realtime.NewLocalBus()
	events := make(chan realtime.Event, 16)
	unsub, err := bus.Subscribe(realtime.AdminTopic, func(e realtime.Event) { events <- e })
	require.NoError(t, err)
	t.Cleanup(unsub)

	f := &fixture{store: newMemStore(), sink: &recordingSink{}, events: events}
	f.svc = NewService(f.store, bus, f.sink)
	f.svc.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }
	f.store.fund("u", 1000)
	return f
}

func dzd(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestSubmitHoldsFunds(t *testing.T) {
	f := newFixture(t)
	r, err := f.svc.Submit(context.Background(), "u", "digital_card", dzd(300), map[string]any{"card_type": "google_play"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, r.Status)

	w := f.store.wallet("u")
	assert.True(t, w.balance.Equal(dzd(700)))
	assert.True(t, w.escrow.Equal(dzd(300)))
	assert.Equal(t, []string{"digital_card"}, f.sink.types)

	evt := <-f.events
	assert.Equal(t, realtime.ReviewPending, evt.Type)
}

func TestSubmitRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, "u", "deposit", dzd(100), nil)
	assert.ErrorIs(t, err, ErrNotSubmittable)

	_, err = f.svc.Submit(ctx, "u", "phone_topup", dzd(0), map[string]any{"phone": "0550123456", "operator": "djezzy"})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.svc.Submit(ctx, "u", "phone_topup", dzd(100), map[string]any{"phone": "0550123456"})
	assert.ErrorIs(t, err, ErrMissingDetail)

	_, err = f.svc.Submit(ctx, "u", "card_delivery", dzd(5000), map[string]any{"full_name": "A", "address": "B", "wilaya": "16"})
	assert.ErrorIs(t, err, wallet.ErrInsufficientFunds)

	// failed hold leaves no row behind
	counts, err := f.svc.PendingCounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts["card_delivery"])
	assert.True(t, f.store.wallet("u").balance.Equal(dzd(1000)))
}

func TestApproveConsumesHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, "u", "game_topup", dzd(250), map[string]any{"game": "pubg", "player_id": "5123456789"})
	require.NoError(t, err)

	done, err := f.svc.Approve(ctx, "admin", "game_topup", r.ID, " https://cdn.example/proof.png ", "sent")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, done.Status)
	assert.Equal(t, "https://cdn.example/proof.png", done.ProofURL)
	assert.Equal(t, "admin", done.ReviewedBy)
	require.NotNil(t, done.ReviewedAt)

	w := f.store.wallet("u")
	assert.True(t, w.balance.Equal(dzd(750)))
	assert.True(t, w.escrow.IsZero())
	require.Len(t, f.store.st.notes, 1)
	assert.Equal(t, "game_topup:approved", f.store.st.notes[0].Type)

	_, err = f.svc.Reject(ctx, "admin", "game_topup", r.ID, "too late")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestRejectRefundsHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, "u", "betting_deposit", dzd(400), map[string]any{"platform": "1xbet", "account_id": "12345678"})
	require.NoError(t, err)

	done, err := f.svc.Reject(ctx, "admin", "betting_deposit", r.ID, "wrong account")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, done.Status)
	assert.Equal(t, "wrong account", done.AdminNote)

	w := f.store.wallet("u")
	assert.True(t, w.balance.Equal(dzd(1000)))
	assert.True(t, w.escrow.IsZero())
	assert.Contains(t, f.store.st.notes[0].Body, "wrong account")
}

func TestApproveDepositCreditsNet(t *testing.T) {
	f := newFixture(t)
	k, _ := Lookup("deposit")
	f.store.seed(k, Request{ID: "d-1", UserID: "u", Amount: dzd(1000), Fee: dzd(20), CreditAmount: dzd(980), Status: StatusPending})

	_, err := f.svc.Approve(context.Background(), "admin", "deposit", "d-1", "", "")
	require.NoError(t, err)
	assert.True(t, f.store.wallet("u").balance.Equal(dzd(1980)))

	// the kind must match the row's table
	_, err = f.svc.Approve(context.Background(), "admin", "withdrawal", "d-1", "", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRejectDepositMovesNothing(t *testing.T) {
	f := newFixture(t)
	k, _ := Lookup("deposit")
	f.store.seed(k, Request{ID: "d-1", UserID: "u", Amount: dzd(1000), CreditAmount: dzd(980), Status: StatusPending})

	_, err := f.svc.Reject(context.Background(), "admin", "deposit", "d-1", "no proof")
	require.NoError(t, err)
	assert.True(t, f.store.wallet("u").balance.Equal(dzd(1000)))
}

func TestBettingWithdrawalCreditsOnApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, "u", "betting_withdrawal", dzd(600), map[string]any{"platform": "1xbet", "account_id": "12345678"})
	require.NoError(t, err)
	assert.True(t, f.store.wallet("u").balance.Equal(dzd(1000)), "credit kinds hold nothing")

	_, err = f.svc.Approve(ctx, "admin", "betting_withdrawal", r.ID, "", "")
	require.NoError(t, err)
	assert.True(t, f.store.wallet("u").balance.Equal(dzd(1600)))
}

func TestVerificationMarksProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, "u", "verification", dzd(0), map[string]any{"front_path": "u/u_front_1.jpg"})
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, "admin", "verification", r.ID, "", "")
	require.NoError(t, err)
	assert.True(t, f.store.st.verified["u"])
	assert.True(t, f.store.wallet("u").balance.Equal(dzd(1000)))
}

func TestListAndCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	details := map[string]any{"card_type": "itunes"}
	a, err := f.svc.Submit(ctx, "u", "digital_card", dzd(100), details)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, "u", "digital_card", dzd(100), details)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, "admin", "digital_card", a.ID, "", "")
	require.NoError(t, err)

	pending, err := f.svc.List(ctx, "digital_card", StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	all, err := f.svc.List(ctx, "digital_card", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.svc.Mine(ctx, "u", "digital_card")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	counts, err := f.svc.PendingCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["digital_card"])
	assert.Len(t, counts, 9)
}

var _ alerts.Sink = (*recordingSink)(nil)
