// Package store is the MySQL implementation of domain.Store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/database"
	dberrors "github.com/waqasmani/attendance-scheduler/internal/infrastructure/database/errors"
)

const dateLayout = "2006-01-02"

type Store struct {
	db database.DBTX
	// tx is nil for a Store bound to an open transaction.
	tx database.Transactor
}

var _ domain.Store = (*Store)(nil)

// New returns a Store issuing queries through db and opening transactions through tx.
func New(db database.DBTX, tx database.Transactor) *Store {
	return &Store{db: db, tx: tx}
}

func (s *Store) WithinTx(ctx context.Context, fn func(domain.Store) error) error {
	if s.tx == nil {
		return fn(s)
	}
	return s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	p, ok := s.db.(interface{ PingContext(context.Context) error })
	if !ok {
		return nil
	}
	return p.PingContext(ctx)
}

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrRecordNotFound
	case dberrors.IsDuplicateKey(err):
		return fmt.Errorf("%s: %w", what, domain.ErrDuplicateRecord)
	default:
		return dberrors.NewDBError(fmt.Errorf("%s: %w", what, err), dberrors.ClassifyError(err), map[string]interface{}{
			"entity": what,
		})
	}
}

func expectOne(res sql.Result, notMatched error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notMatched
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func jsonValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
