package approvals

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/alerts"
	"github.com/opay-dz/opay/internal/db"
	"github.com/opay-dz/opay/internal/wallet"
)

// PGStore keeps requests in their per-kind tables. Table and type names come
// from the registry, never from input.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

const requestColumns = `id::text, user_id::text, amount, fee, credit_amount, status, details,
	COALESCE(proof_url, ''), COALESCE(admin_note, ''), COALESCE(reviewed_by::text, ''), reviewed_at, created_at`

// scope narrows a shared table to the kind's rows.
func scope(k Kind) string {
	if k.Type == "" {
		return "TRUE"
	}
	return "type = '" + k.Type + "'"
}

func scanRequest(k Kind, row pgx.Row) (Request, error) {
	r := Request{Kind: k.Name}
	err := row.Scan(&r.ID, &r.UserID, &r.Amount, &r.Fee, &r.CreditAmount, &r.Status, &r.Details,
		&r.ProofURL, &r.AdminNote, &r.ReviewedBy, &r.ReviewedAt, &r.CreatedAt)
	if db.IsNoRows(err) {
		return Request{}, ErrNotFound
	}
	return r, errors.Wrapf(err, "scan %s", k.Name)
}

func collect(k Kind, rows pgx.Rows) ([]Request, error) {
	defer rows.Close()
	out := []Request{}
	for rows.Next() {
		r, err := scanRequest(k, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) List(ctx context.Context, k Kind, status string, limit int) ([]Request, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+requestColumns+` FROM `+k.Table+`
		 WHERE `+scope(k)+` AND ($1 = '' OR status = $1)
		 ORDER BY created_at DESC LIMIT $2`, status, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", k.Name)
	}
	return collect(k, rows)
}

func (s *PGStore) ListForUser(ctx context.Context, k Kind, userID string) ([]Request, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+requestColumns+` FROM `+k.Table+`
		 WHERE `+scope(k)+` AND user_id = $1 ORDER BY created_at DESC LIMIT 100`, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s for user", k.Name)
	}
	return collect(k, rows)
}

func (s *PGStore) PendingCount(ctx context.Context, k Kind) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM `+k.Table+` WHERE `+scope(k)+` AND status = 'pending'`).Scan(&n)
	return n, errors.Wrapf(err, "count pending %s", k.Name)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Insert(ctx context.Context, k Kind, r *Request) error {
	cols, vals := "user_id, amount, fee, credit_amount, details", "$1, $2, $3, $4, $5"
	args := []any{r.UserID, r.Amount, r.Fee, r.CreditAmount, r.Details}
	if k.Type != "" {
		cols += ", type"
		vals += ", $6"
		args = append(args, k.Type)
	}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO `+k.Table+` (`+cols+`) VALUES (`+vals+`) RETURNING id::text, status, created_at`,
		args...).Scan(&r.ID, &r.Status, &r.CreatedAt)
	return errors.Wrapf(err, "insert %s", k.Name)
}

func (t *pgTx) Lock(ctx context.Context, k Kind, id string) (Request, error) {
	return scanRequest(k, t.tx.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM `+k.Table+` WHERE id = $1 AND `+scope(k)+` FOR UPDATE`, id))
}

func (t *pgTx) Finish(ctx context.Context, k Kind, r Request) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE `+k.Table+`
		 SET status = $2, proof_url = NULLIF($3, ''), admin_note = NULLIF($4, ''),
		     reviewed_by = NULLIF($5, '')::uuid, reviewed_at = $6
		 WHERE id = $1`,
		r.ID, r.Status, r.ProofURL, r.AdminNote, r.ReviewedBy, r.ReviewedAt)
	return errors.Wrapf(err, "finish %s %s", k.Name, r.ID)
}

func (t *pgTx) LockWallet(ctx context.Context, userID string) error {
	return wallet.Lock(ctx, t.tx, userID)
}

func (t *pgTx) Hold(ctx context.Context, userID string, amount decimal.Decimal, e wallet.Entry) error {
	return wallet.Hold(ctx, t.tx, userID, amount, e)
}

func (t *pgTx) ReleaseHold(ctx context.Context, userID string, amount decimal.Decimal, e wallet.Entry) error {
	return wallet.ReleaseHold(ctx, t.tx, userID, amount, e)
}

func (t *pgTx) RefundHold(ctx context.Context, userID string, amount decimal.Decimal, e wallet.Entry) error {
	return wallet.RefundHold(ctx, t.tx, userID, amount, e)
}

func (t *pgTx) Credit(ctx context.Context, userID string, amount decimal.Decimal, e wallet.Entry) error {
	return wallet.Credit(ctx, t.tx, userID, amount, e)
}

func (t *pgTx) MarkVerified(ctx context.Context, userID string) error {
	_, err := t.tx.Exec(ctx, `UPDATE profiles SET is_verified = TRUE WHERE id = $1`, userID)
	return errors.Wrap(err, "mark verified")
}

func (t *pgTx) Notify(ctx context.Context, n alerts.Notification) error {
	return alerts.CreateNotification(ctx, t.tx, n)
}
