package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"ideaforge/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn picks the transaction when one is in flight. With a single pooled
// connection, reading through r.DB while a tx is open would block forever.
func (r Repo) conn(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.DB
}

// NextID is the identity allocator: it bumps the registry counter and returns
// the post-increment value, so the first ID is 1. Run inside the create tx so a
// rollback also rolls back the allocation.
func (r Repo) NextID(ctx context.Context, tx *sql.Tx, registry domain.Registry) (int64, error) {
	var id int64
	err := r.conn(tx).QueryRowContext(ctx, `INSERT INTO counters(registry,value) VALUES (?,1)
ON CONFLICT(registry) DO UPDATE SET value=value+1 RETURNING value`, string(registry)).Scan(&id)
	return id, err
}

// LastID returns the last allocated ID for a registry, 0 if none was issued.
func (r Repo) LastID(ctx context.Context, tx *sql.Tx, registry domain.Registry) (int64, error) {
	var id int64
	err := r.conn(tx).QueryRowContext(ctx, `SELECT value FROM counters WHERE registry=?`, string(registry)).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return id, err
}

// SeedOracle installs the bootstrap oracle if no oracle has been recorded yet.
func (r Repo) SeedOracle(ctx context.Context, tx *sql.Tx, p domain.Principal, now string) (bool, error) {
	res, err := r.conn(tx).ExecContext(ctx, `INSERT OR IGNORE INTO oracle_state(id,principal,updated_at) VALUES (1,?,?)`, string(p), now)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) GetOracle(ctx context.Context, tx *sql.Tx) (domain.Principal, error) {
	var p string
	err := r.conn(tx).QueryRowContext(ctx, `SELECT principal FROM oracle_state WHERE id=1`).Scan(&p)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return domain.Principal(p), err
}

func (r Repo) SetOracle(ctx context.Context, tx *sql.Tx, p domain.Principal, now string) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE oracle_state SET principal=?, updated_at=? WHERE id=1`, string(p), now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// where joins filter clauses; an empty list matches everything.
func where(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func optionalString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
