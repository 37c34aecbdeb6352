// internal/repository/postgres/db.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	xerrors "mnetifi-service/internal/pkg/errors"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx so row helpers can
// run inside or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// inTx commits when fn returns nil and rolls back otherwise.
func inTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, pool, fn)
}

// notFound turns pgx.ErrNoRows into xerrors.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, xerrors.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// page normalises paging input: page >= 1, 1 <= size <= 100, default 20.
func page(p, size int) (int, int, int) {
	if p < 1 {
		p = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return p, size, (p - 1) * size
}

// where accumulates positional conditions.
type where struct {
	conditions []string
	args       []interface{}
}

func newWhere(cond string, args ...interface{}) *where {
	w := &where{}
	w.add(cond, args...)
	return w
}

// add appends cond, replacing each "?" with the next $n placeholder.
func (w *where) add(cond string, args ...interface{}) {
	for _, a := range args {
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)+1), 1)
		w.args = append(w.args, a)
	}
	w.conditions = append(w.conditions, cond)
}

func (w *where) String() string {
	return strings.Join(w.conditions, " AND ")
}

// next returns the placeholder index that follows the accumulated args.
func (w *where) next() int { return len(w.args) + 1 }
