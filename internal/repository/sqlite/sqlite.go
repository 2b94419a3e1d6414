package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"log/slog"

	"github.com/garnizeh/taosdlc/internal/db"
	"github.com/garnizeh/taosdlc/pkg/repository"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepo implements repository interfaces using the internal DB wrapper.
// A repo obtained inside InTx issues every statement on that transaction.
type SQLiteRepo struct {
	conn     *db.DB
	q        db.Querier
	inTx     bool
	jobLease time.Duration
	logger   *slog.Logger
}

// Ensure SQLiteRepo implements the public interfaces.
var _ repository.Store = (*SQLiteRepo)(nil)
var _ repository.SchemaRepo = (*SQLiteRepo)(nil)
var _ repository.JobRepo = (*SQLiteRepo)(nil)

func New(conn *db.DB, logger *slog.Logger) *SQLiteRepo {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &SQLiteRepo{conn: conn, q: conn.GetConn(), jobLease: DefaultJobLease, logger: logger}
}

// InTx runs fn inside a single transaction.
func (r *SQLiteRepo) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if r.inTx {
		return fn(r)
	}

	return r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(&SQLiteRepo{conn: r.conn, q: tx, inTx: true, jobLease: r.jobLease, logger: r.logger})
	})
}

func now() int64 {
	return time.Now().UTC().UnixMilli()
}

// wrapWriteErr maps unique-constraint failures to repository.ErrDuplicate.
func wrapWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %v", op, repository.ErrDuplicate, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var se *moderncsqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	x := v.Int64
	return &x
}

func nullIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	x := int(v.Int64)
	return &x
}

func nullFloatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	x := v.Float64
	return &x
}

func ptrArg[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
