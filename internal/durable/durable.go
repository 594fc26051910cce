// Package durable implements the L3 authoritative store adapter: the
// narrow select/create/update/delete/query contract backed by
// Postgres via pgx/v5. L1 and L2 are caches in front of this tier.
package durable

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deliveryhero/asya/olympus/internal/olympuserr"
)

// Row is a generic durable record: an id plus its JSON-shaped value.
type Row struct {
	ID    string
	Value json.RawMessage
}

// Store is the exact L3 contract.
type Store interface {
	Select(ctx context.Context, table, id string) (*Row, error)
	Create(ctx context.Context, table string, value json.RawMessage) (string, error)
	Update(ctx context.Context, table, id string, value json.RawMessage) error
	Delete(ctx context.Context, table, id string) error
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)
}

// PostgresStore backs Store with a pgx/v5 connection pool. Tables are
// expected to expose (id text primary key, value jsonb) columns; the
// adapter does not own schema migration.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-configured *pgxpool.Pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Select(ctx context.Context, table, id string) (*Row, error) {
	row := s.pool.QueryRow(ctx, "select id, value from "+quoteIdent(table)+" where id = $1", id)
	var r Row
	if err := row.Scan(&r.ID, &r.Value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("durable.Select", err)
	}
	return &r, nil
}

func (s *PostgresStore) Create(ctx context.Context, table string, value json.RawMessage) (string, error) {
	var id string
	sql := "insert into " + quoteIdent(table) + " (value) values ($1) returning id"
	if err := s.pool.QueryRow(ctx, sql, value).Scan(&id); err != nil {
		return "", classify("durable.Create", err)
	}
	return id, nil
}

func (s *PostgresStore) Update(ctx context.Context, table, id string, value json.RawMessage) error {
	sql := "update " + quoteIdent(table) + " set value = $1 where id = $2"
	tag, err := s.pool.Exec(ctx, sql, value, id)
	if err != nil {
		return classify("durable.Update", err)
	}
	if tag.RowsAffected() == 0 {
		return olympuserr.New(olympuserr.NotFound, "durable.Update", table+"/"+id)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, table, id string) error {
	sql := "delete from " + quoteIdent(table) + " where id = $1"
	if _, err := s.pool.Exec(ctx, sql, id); err != nil {
		return classify("durable.Delete", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify("durable.Query", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Value); err != nil {
			return nil, classify("durable.Query", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("durable.Query", err)
	}
	return out, nil
}

// quoteIdent guards against table names containing quote characters;
// table names are expected to come from static configuration, not
// untrusted input, but this keeps the adapter honest regardless.
func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func classify(op string, err error) error {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		switch pgErr.SQLState() {
		case "23505", "23503", "22P02": // unique_violation, fk_violation, invalid_text_representation
			return olympuserr.Wrap(olympuserr.StoreFatal, op, "constraint violation", err)
		}
		return olympuserr.Wrap(olympuserr.StoreTransient, op, "postgres error", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return olympuserr.Wrap(olympuserr.Timeout, op, "deadline exceeded", err)
	}
	return olympuserr.Wrap(olympuserr.StoreTransient, op, "connection error", err)
}
