package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/poi-ingest/internal/schema"
)

var sqliteTypes = typeMap{
	schema.Text: "TEXT",
	schema.Blob: "BLOB",
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn, table string) (*SQLiteStore, error) {
	if table == "" {
		table = DefaultTable
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Schema changes and inserts share one connection so every statement
	// sees the latest column set.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, table: table}, nil
}

func (s *SQLiteStore) Table() string { return s.table }

func (s *SQLiteStore) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, dropTableSQL(s.table))
	return eris.Wrapf(err, "sqlite: drop table %s", s.table)
}

func (s *SQLiteStore) CreateTable(ctx context.Context, cols []schema.Column) error {
	if len(cols) == 0 {
		return eris.New("sqlite: create table: no columns")
	}
	_, err := s.db.ExecContext(ctx, createTableSQL(s.table, cols, sqliteTypes))
	return eris.Wrapf(err, "sqlite: create table %s", s.table)
}

func (s *SQLiteStore) Columns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?) ORDER BY cid`, s.table)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: table info %s", s.table)
	}
	defer rows.Close() //nolint:errcheck

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan column name")
		}
		names = append(names, name)
	}
	return names, eris.Wrap(rows.Err(), "sqlite: iterate columns")
}

func (s *SQLiteStore) AddColumns(ctx context.Context, ops []schema.AddColumn) error {
	for _, op := range ops {
		if _, err := s.db.ExecContext(ctx, addColumnSQL(s.table, op, sqliteTypes)); err != nil {
			return eris.Wrapf(err, "sqlite: add column %s", op.Column)
		}
	}
	return nil
}

func (s *SQLiteStore) PrepareInsert(ctx context.Context, columns []string) (Inserter, error) {
	if len(columns) == 0 {
		return nil, eris.New("sqlite: prepare insert: no columns")
	}
	stmt, err := s.db.PrepareContext(ctx, insertSQL(s.table, columns, func(int) string { return "?" }))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: prepare insert into %s", s.table)
	}
	return &sqliteInserter{stmt: stmt, width: len(columns)}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteInserter struct {
	stmt  *sql.Stmt
	width int
}

func (i *sqliteInserter) Insert(ctx context.Context, row schema.Row) error {
	if len(row) != i.width {
		return eris.Errorf("sqlite: insert: row has %d values, statement expects %d", len(row), i.width)
	}
	_, err := i.stmt.ExecContext(ctx, row...)
	return eris.Wrap(err, "sqlite: insert row")
}

func (i *sqliteInserter) Close() error {
	return eris.Wrap(i.stmt.Close(), "sqlite: finalize insert")
}
