// Package store persists flat rows into the single dynamic table whose
// column set only ever grows.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/poi-ingest/internal/schema"
)

// DefaultTable is the name of the ingested table.
const DefaultTable = "data"

// Store defines the persistence interface for the ingestion driver.
type Store interface {
	// Table returns the name of the managed table.
	Table() string

	// Reset drops the table so a run starts from an empty column set.
	Reset(ctx context.Context) error

	// CreateTable creates the table with the given typed columns if it does
	// not exist yet.
	CreateTable(ctx context.Context, cols []schema.Column) error

	// Columns returns the table's column names in table order. A missing
	// table has no columns.
	Columns(ctx context.Context) ([]string, error)

	// AddColumns applies the operations in order, one statement each.
	AddColumns(ctx context.Context, ops []schema.AddColumn) error

	// PrepareInsert prepares a positional insert over columns. The returned
	// Inserter must be closed.
	PrepareInsert(ctx context.Context, columns []string) (Inserter, error)

	// Close releases the underlying connection.
	Close() error
}

// Inserter runs one prepared insert statement per row.
type Inserter interface {
	Insert(ctx context.Context, row schema.Row) error
	Close() error
}

// typeMap maps schema storage tags to column types of one SQL dialect.
type typeMap map[schema.Type]string

func (m typeMap) sqlType(t schema.Type) string {
	if s, ok := m[t]; ok {
		return s
	}
	return m[schema.Text]
}

// quoteIdent quotes a column or table name. Tag-derived names may contain
// any character, so every identifier is quoted.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func dropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + quoteIdent(table)
}

func createTableSQL(table string, cols []schema.Column, types typeMap) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quoteIdent(c.Name) + " " + types.sqlType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
}

func addColumnSQL(table string, op schema.AddColumn, types typeMap) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(table), quoteIdent(op.Column), types.sqlType(op.Type))
}

func insertSQL(table string, columns []string, placeholder func(i int) string) string {
	names := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, c := range columns {
		names[i] = quoteIdent(c)
		params[i] = placeholder(i)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(names, ", "), strings.Join(params, ", "))
}
