package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"insights-proxy/api/internal/insights/types"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	_ "modernc.org/sqlite"             // sqlite driver
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// SQLStore keeps cache entries in one table. Timestamps are unix milliseconds taken from the
// caller's clock, so both dialects store them the same way.
type SQLStore struct {
	DB      *sql.DB
	dialect string
}

func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	switch dialect {
	case DialectPostgres, DialectSQLite:
	default:
		return nil, fmt.Errorf("store: unknown sql dialect %q", dialect)
	}
	return &SQLStore{DB: db, dialect: dialect}, nil
}

// OpenSQL opens, pings and migrates a database for the given dialect.
func OpenSQL(ctx context.Context, dialect, dsn string) (*SQLStore, error) {
	driver := "pgx"
	if dialect == DialectSQLite {
		driver = "sqlite"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", dialect)
	}
	if dialect == DialectSQLite {
		// one writer; also keeps a :memory: database alive across calls
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(time.Hour)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, eris.Wrapf(err, "ping %s", dialect)
	}

	s, err := NewSQLStore(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	const q = `
create table if not exists ai_cache (
  cache_key   text primary key,
  task        text not null,
  context_id  text not null default '',
  input_hash  text not null default '',
  result_json text not null,
  model       text not null default '',
  latency_ms  bigint not null default 0,
  created_ms  bigint not null,
  updated_ms  bigint not null
)`
	_, err := s.DB.ExecContext(ctx, q)
	return eris.Wrap(err, "migrate ai_cache")
}

func (s *SQLStore) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *SQLStore) Close() error { return s.DB.Close() }

func (s *SQLStore) Load(ctx context.Context, key string) (Entry, error) {
	const q = `
select cache_key, task, context_id, input_hash, result_json, model, latency_ms, created_ms, updated_ms
from ai_cache
where cache_key = $1`
	var (
		e                Entry
		task             string
		created, updated int64
	)
	err := s.DB.QueryRowContext(ctx, s.rebind(q), key).Scan(
		&e.Key, &task, &e.ContextID, &e.InputHash, &e.ResultJSON, &e.Model, &e.LatencyMs, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	e.Task = types.TaskKind(task)
	e.CreatedAt = time.UnixMilli(created).UTC()
	e.UpdatedAt = time.UnixMilli(updated).UTC()
	return e, nil
}

// Save inserts or fully replaces the row for e.Key.
func (s *SQLStore) Save(ctx context.Context, e Entry) error {
	const q = `
insert into ai_cache (
  cache_key, task, context_id, input_hash, result_json, model, latency_ms, created_ms, updated_ms
) values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
on conflict (cache_key) do update
set task = excluded.task,
    context_id = excluded.context_id,
    input_hash = excluded.input_hash,
    result_json = excluded.result_json,
    model = excluded.model,
    latency_ms = excluded.latency_ms,
    created_ms = excluded.created_ms,
    updated_ms = excluded.updated_ms`
	_, err := s.DB.ExecContext(ctx, s.rebind(q),
		e.Key, string(e.Task), e.ContextID, e.InputHash, e.ResultJSON, e.Model, e.LatencyMs,
		e.CreatedAt.UnixMilli(), e.UpdatedAt.UnixMilli())
	return err
}

// rebind turns $N placeholders into ? for sqlite. Arguments are always passed in order.
func (s *SQLStore) rebind(q string) string {
	if s.dialect != DialectSQLite {
		return q
	}
	var b strings.Builder
	b.Grow(len(q))
	for i := 0; i < len(q); i++ {
		if q[i] == '$' && i+1 < len(q) && q[i+1] >= '0' && q[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(q) && q[i+1] >= '0' && q[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}
