package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/poi-ingest/internal/schema"
)

var postgresTypes = typeMap{
	schema.Text: "TEXT",
	schema.Blob: "BYTEA",
}

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PostgresStore implements Store using pgxpool. Every column is TEXT except
// columns created as BLOB, which become BYTEA.
type PostgresStore struct {
	pool  Pool
	table string
	// binary tracks BYTEA columns so inserts can encode their values.
	binary map[string]bool
}

// NewPostgres creates a PostgresStore with a small connection pool; the
// ingestion driver is single-threaded.
func NewPostgres(ctx context.Context, connString, table string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool, table), nil
}

func newPostgresStore(pool Pool, table string) *PostgresStore {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresStore{pool: pool, table: table, binary: make(map[string]bool)}
}

func (s *PostgresStore) Table() string { return s.table }

func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, dropTableSQL(s.table)); err != nil {
		return eris.Wrapf(err, "postgres: drop table %s", s.table)
	}
	clear(s.binary)
	return nil
}

func (s *PostgresStore) CreateTable(ctx context.Context, cols []schema.Column) error {
	if len(cols) == 0 {
		return eris.New("postgres: create table: no columns")
	}
	if _, err := s.pool.Exec(ctx, createTableSQL(s.table, cols, postgresTypes)); err != nil {
		return eris.Wrapf(err, "postgres: create table %s", s.table)
	}
	for _, c := range cols {
		if c.Type == schema.Blob {
			s.binary[c.Name] = true
		}
	}
	return nil
}

func (s *PostgresStore) Columns(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT column_name, data_type FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = $1
		 ORDER BY ordinal_position`,
		s.table,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list columns of %s", s.table)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, eris.Wrap(err, "postgres: scan column")
		}
		names = append(names, name)
		if dataType == "bytea" {
			s.binary[name] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate columns")
	}
	return names, nil
}

func (s *PostgresStore) AddColumns(ctx context.Context, ops []schema.AddColumn) error {
	for _, op := range ops {
		if _, err := s.pool.Exec(ctx, addColumnSQL(s.table, op, postgresTypes)); err != nil {
			return eris.Wrapf(err, "postgres: add column %s", op.Column)
		}
		if op.Type == schema.Blob {
			s.binary[op.Column] = true
		}
	}
	return nil
}

func (s *PostgresStore) PrepareInsert(_ context.Context, columns []string) (Inserter, error) {
	if len(columns) == 0 {
		return nil, eris.New("postgres: prepare insert: no columns")
	}
	binary := make([]bool, len(columns))
	for i, c := range columns {
		binary[i] = s.binary[c]
	}
	// pgx caches the prepared statement per connection on first use.
	query := insertSQL(s.table, columns, func(i int) string { return "$" + strconv.Itoa(i+1) })
	return &postgresInserter{pool: s.pool, query: query, binary: binary}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type postgresInserter struct {
	pool   Pool
	query  string
	binary []bool
}

func (i *postgresInserter) Insert(ctx context.Context, row schema.Row) error {
	if len(row) != len(i.binary) {
		return eris.Errorf("postgres: insert: row has %d values, statement expects %d", len(row), len(i.binary))
	}
	args := make([]any, len(row))
	for n, v := range row {
		args[n] = encodeValue(v, i.binary[n])
	}
	if _, err := i.pool.Exec(ctx, i.query, args...); err != nil {
		return eris.Wrap(err, "postgres: insert row")
	}
	return nil
}

func (i *postgresInserter) Close() error { return nil }

// encodeValue renders a row value for a TEXT or BYTEA column. nil stays NULL.
func encodeValue(v any, binary bool) any {
	if v == nil {
		return nil
	}
	var s string
	switch t := v.(type) {
	case []byte:
		if binary {
			return t
		}
		s = string(t)
	case string:
		s = t
	case int64:
		s = strconv.FormatInt(t, 10)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	default:
		s = fmt.Sprint(t)
	}
	if binary {
		return []byte(s)
	}
	return s
}
