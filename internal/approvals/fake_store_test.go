package approvals

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/alerts"
	"github.com/opay-dz/opay/internal/wallet"
)

type funds struct {
	balance decimal.Decimal
	escrow  decimal.Decimal
}

type memState struct {
	requests map[string]Request
	kinds    map[string]string
	wallets  map[string]funds
	verified map[string]bool
	notes    []alerts.Notification
	entries  []wallet.Entry
}

func (s memState) clone() memState {
	c := memState{
		requests: map[string]Request{},
		kinds:    map[string]string{},
		wallets:  map[string]funds{},
		verified: map[string]bool{},
		notes:    append([]alerts.Notification(nil), s.notes...),
		entries:  append([]wallet.Entry(nil), s.entries...),
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.kinds {
		c.kinds[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.verified {
		c.verified[k] = v
	}
	return c
}

type memStore struct {
	mu  sync.Mutex
	st  memState
	seq int
}

func newMemStore() *memStore {
	return &memStore{st: memState{
		requests: map[string]Request{},
		kinds:    map[string]string{},
		wallets:  map[string]funds{},
		verified: map[string]bool{},
	}}
}

func (m *memStore) fund(userID string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.wallets[userID] = funds{balance: decimal.NewFromInt(amount), escrow: decimal.Zero}
}

func (m *memStore) wallet(userID string) funds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.wallets[userID]
}

// seed inserts a row the way wallet handlers do for deposits and withdrawals.
func (m *memStore) seed(k Kind, r Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Kind = k.Name
	m.st.requests[r.ID] = r
	m.st.kinds[r.ID] = k.Name
}

func (m *memStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.st.clone()
	if err := fn(&memTx{m: m}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *memStore) filter(k Kind, keep func(Request) bool) []Request {
	out := []Request{}
	for id, r := range m.st.requests {
		if m.st.kinds[id] == k.Name && keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) List(_ context.Context, k Kind, status string, limit int) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.filter(k, func(r Request) bool { return status == "" || r.Status == status })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListForUser(_ context.Context, k Kind, userID string) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(k, func(r Request) bool { return r.UserID == userID }), nil
}

func (m *memStore) PendingCount(_ context.Context, k Kind) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filter(k, func(r Request) bool { return r.Status == StatusPending })), nil
}

type memTx struct {
	m *memStore
}

func (t *memTx) Insert(_ context.Context, k Kind, r *Request) error {
	t.m.seq++
	r.ID = fmt.Sprintf("r-%03d", t.m.seq)
	r.Status = StatusPending
	t.m.st.requests[r.ID] = *r
	t.m.st.kinds[r.ID] = k.Name
	return nil
}

func (t *memTx) Lock(_ context.Context, k Kind, id string) (Request, error) {
	r, ok := t.m.st.requests[id]
	if !ok || t.m.st.kinds[id] != k.Name {
		return Request{}, ErrNotFound
	}
	return r, nil
}

func (t *memTx) Finish(_ context.Context, k Kind, r Request) error {
	t.m.st.requests[r.ID] = r
	return nil
}

func (t *memTx) LockWallet(_ context.Context, userID string) error {
	if _, ok := t.m.st.wallets[userID]; !ok {
		return wallet.ErrWalletNotFound
	}
	return nil
}

func (t *memTx) Hold(_ context.Context, userID string, amount decimal.Decimal, e wallet.Entry) error {
	w := t.m.st.wallets[userID]
	if w.balance.LessThan(amount) {
		return wallet.ErrInsufficientFunds
	}
	w.balance = w.balance.Sub(amount)
	w.escrow = w.escrow.Add(amount)
	t.m.st.wallets[userID] = w
	t.m.st.entries = append(t.m.st.entries, e)
	return nil
}

func (t *memTx) ReleaseHold(_ context.Context, userID string, amount decimal.Decimal, e wallet.Entry) error {
	w := t.m.st.wallets[userID]
	if w.escrow.LessThan(amount) {
		return wallet.ErrInsufficientHold
	}
	w.escrow = w.escrow.Sub(amount)
	t.m.st.wallets[userID] = w
	t.m.st.entries = append(t.m.st.entries, e)
	return nil
}

func (t *memTx) RefundHold(_ context.Context, userID string, amount decimal.Decimal, e wallet.Entry) error {
	w := t.m.st.wallets[userID]
	if w.escrow.LessThan(amount) {
		return wallet.ErrInsufficientHold
	}
	w.escrow = w.escrow.Sub(amount)
	w.balance = w.balance.Add(amount)
	t.m.st.wallets[userID] = w
	t.m.st.entries = append(t.m.st.entries, e)
	return nil
}

func (t *memTx) Credit(_ context.Context, userID string, amount decimal.Decimal, e wallet.Entry) error {
	w := t.m.st.wallets[userID]
	w.balance = w.balance.Add(amount)
	t.m.st.wallets[userID] = w
	t.m.st.entries = append(t.m.st.entries, e)
	return nil
}

func (t *memTx) MarkVerified(_ context.Context, userID string) error {
	t.m.st.verified[userID] = true
	return nil
}

func (t *memTx) Notify(_ context.Context, n alerts.Notification) error {
	t.m.st.notes = append(t.m.st.notes, n)
	return nil
}
