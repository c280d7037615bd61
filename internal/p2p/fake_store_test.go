package p2p

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/wallet"
)

type balance struct {
	available decimal.Decimal
	escrow    decimal.Decimal
}

type memState struct {
	ads      map[string]Ad
	orders   map[string]Order
	messages []Message
	profiles map[string]TraderProfile
	ratings  map[string]Rating
	wallets  map[string]balance
	notified []string
}

func (s memState) clone() memState {
	c := memState{
		ads:      map[string]Ad{},
		orders:   map[string]Order{},
		messages: append([]Message(nil), s.messages...),
		profiles: map[string]TraderProfile{},
		ratings:  map[string]Rating{},
		wallets:  map[string]balance{},
		notified: append([]string(nil), s.notified...),
	}
	for k, v := range s.ads {
		c.ads[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.ratings {
		c.ratings[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	return c
}

// memStore serialises transactions and rolls back by restoring a snapshot.
type memStore struct {
	mu  sync.Mutex
	st  memState
	seq int
}

func newMemStore() *memStore {
	return &memStore{st: memState{
		ads:      map[string]Ad{},
		orders:   map[string]Order{},
		profiles: map[string]TraderProfile{},
		ratings:  map[string]Rating{},
		wallets:  map[string]balance{},
	}}
}

func (m *memStore) fund(userID string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.wallets[userID] = balance{available: decimal.NewFromInt(amount), escrow: decimal.Zero}
}

func (m *memStore) wallet(userID string) balance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.wallets[userID]
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) WithTx(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.st.clone()
	if err := fn(&memTx{m: m}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *memStore) ListAds(_ context.Context, adType AdType, _ int) ([]Ad, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Ad
	for _, a := range m.st.ads {
		if a.IsActive && (adType == "" || a.AdType == adType) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) GetAd(_ context.Context, id string) (Ad, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.st.ads[id]
	if !ok {
		return Ad{}, ErrNotFound
	}
	return a, nil
}

func (m *memStore) GetOrder(_ context.Context, id string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.st.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (m *memStore) OrderByKey(_ context.Context, takerID, key string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.st.orders {
		if o.TakerID == takerID && o.IdempotencyKey == key {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}

func (m *memStore) ListOrdersForUser(_ context.Context, userID string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.st.orders {
		if o.BuyerID == userID || o.SellerID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) ListOrdersByStatus(_ context.Context, status Status) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.st.orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) OverdueOrders(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, o := range m.st.orders {
		if o.Status == StatusEscrowLocked && !o.PaymentDeadline.After(now) {
			out = append(out, o.ID)
		}
	}
	return out, nil
}

func (m *memStore) ListMessages(_ context.Context, orderID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, msg := range m.st.messages {
		if msg.OrderID == orderID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) GetTraderProfile(_ context.Context, userID string) (TraderProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.st.profiles[userID]
	if !ok {
		return TraderProfile{}, ErrNotFound
	}
	return p, nil
}

// memTx runs with memStore.mu held.
type memTx struct {
	m *memStore
}

func (t *memTx) InsertAd(_ context.Context, ad *Ad) error {
	ad.ID = t.m.nextID("ad")
	t.m.st.ads[ad.ID] = *ad
	return nil
}

func (t *memTx) SetAdActive(_ context.Context, adID, ownerID string, active bool) error {
	a, ok := t.m.st.ads[adID]
	if !ok || a.UserID != ownerID {
		return ErrNotFound
	}
	a.IsActive = active
	t.m.st.ads[adID] = a
	return nil
}

func (t *memTx) LockAd(_ context.Context, id string) (Ad, error) {
	a, ok := t.m.st.ads[id]
	if !ok {
		return Ad{}, ErrNotFound
	}
	return a, nil
}

func (t *memTx) AdjustAd(_ context.Context, adID string, remaining decimal.Decimal, completed int, volume decimal.Decimal) error {
	a := t.m.st.ads[adID]
	a.Amount = a.Amount.Add(remaining)
	a.CompletedTrades += completed
	a.TotalVolume = a.TotalVolume.Add(volume)
	t.m.st.ads[adID] = a
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, o *Order) error {
	if o.BuyerID == o.SellerID {
		return fmt.Errorf("check constraint: buyer equals seller")
	}
	if o.IdempotencyKey != "" {
		for _, prev := range t.m.st.orders {
			if prev.TakerID == o.TakerID && prev.IdempotencyKey == o.IdempotencyKey {
				return ErrDuplicateOrder
			}
		}
	}
	o.ID = t.m.nextID("order")
	t.m.st.orders[o.ID] = *o
	return nil
}

func (t *memTx) LockOrder(_ context.Context, id string) (Order, error) {
	o, ok := t.m.st.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (t *memTx) SaveOrder(_ context.Context, o Order) error {
	t.m.st.orders[o.ID] = o
	return nil
}

func (t *memTx) InsertMessage(_ context.Context, msg *Message) error {
	msg.ID = t.m.nextID("msg")
	t.m.st.messages = append(t.m.st.messages, *msg)
	return nil
}

func (t *memTx) Notify(_ context.Context, userID, notifyType, _, _, _ string) error {
	t.m.st.notified = append(t.m.st.notified, userID+":"+notifyType)
	return nil
}

func (t *memTx) EnsureTraderProfile(_ context.Context, userID string) error {
	if _, ok := t.m.st.profiles[userID]; !ok {
		t.m.st.profiles[userID] = TraderProfile{UserID: userID}
	}
	return nil
}

func (t *memTx) RecordTrade(ctx context.Context, userID string, successful bool, release time.Duration) error {
	_ = t.EnsureTraderProfile(ctx, userID)
	p := t.m.st.profiles[userID]
	p.TotalTrades++
	if successful {
		if secs := int(release / time.Second); secs > 0 {
			p.AvgReleaseTime = (p.AvgReleaseTime*p.SuccessfulTrades + secs) / (p.SuccessfulTrades + 1)
		}
		p.SuccessfulTrades++
	}
	t.m.st.profiles[userID] = p
	return nil
}

func (t *memTx) InsertRating(_ context.Context, r Rating) error {
	k := r.OrderID + "/" + r.RaterID
	if _, ok := t.m.st.ratings[k]; ok {
		return ErrAlreadyRated
	}
	t.m.st.ratings[k] = r
	return nil
}

func (t *memTx) ApplyRating(ctx context.Context, userID string, rating int) error {
	_ = t.EnsureTraderProfile(ctx, userID)
	p := t.m.st.profiles[userID]
	total := p.AvgRating.Mul(decimal.NewFromInt(int64(p.RatingCount))).Add(decimal.NewFromInt(int64(rating)))
	p.RatingCount++
	p.AvgRating = total.Div(decimal.NewFromInt(int64(p.RatingCount))).Round(2)
	t.m.st.profiles[userID] = p
	return nil
}

func (t *memTx) SetVerifiedTrader(_ context.Context, userID string, verified bool) error {
	p := t.m.st.profiles[userID]
	p.IsVerifiedTrader = verified
	t.m.st.profiles[userID] = p
	return nil
}

func (t *memTx) LockWallets(_ context.Context, userIDs ...string) error {
	for _, id := range userIDs {
		if _, ok := t.m.st.wallets[id]; !ok {
			return wallet.ErrWalletNotFound
		}
	}
	return nil
}

func (t *memTx) Hold(_ context.Context, userID string, amount decimal.Decimal, _ string) error {
	w := t.m.st.wallets[userID]
	if w.available.LessThan(amount) {
		return wallet.ErrInsufficientFunds
	}
	w.available = w.available.Sub(amount)
	w.escrow = w.escrow.Add(amount)
	t.m.st.wallets[userID] = w
	return nil
}

func (t *memTx) ReleaseHold(_ context.Context, userID string, amount decimal.Decimal, _ string) error {
	w := t.m.st.wallets[userID]
	if w.escrow.LessThan(amount) {
		return wallet.ErrInsufficientHold
	}
	w.escrow = w.escrow.Sub(amount)
	t.m.st.wallets[userID] = w
	return nil
}

func (t *memTx) RefundHold(_ context.Context, userID string, amount decimal.Decimal, _ string) error {
	w := t.m.st.wallets[userID]
	if w.escrow.LessThan(amount) {
		return wallet.ErrInsufficientHold
	}
	w.escrow = w.escrow.Sub(amount)
	w.available = w.available.Add(amount)
	t.m.st.wallets[userID] = w
	return nil
}

func (t *memTx) Credit(_ context.Context, userID string, amount decimal.Decimal, _ string) error {
	w, ok := t.m.st.wallets[userID]
	if !ok {
		return wallet.ErrWalletNotFound
	}
	w.available = w.available.Add(amount)
	t.m.st.wallets[userID] = w
	return nil
}
