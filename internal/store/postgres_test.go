package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/poi-ingest/internal/schema"
)

func newMockPostgres(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return mock, newPostgresStore(mock, "")
}

func TestPostgres_Reset(t *testing.T) {
	mock, st := newMockPostgres(t)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "data"`)).
		WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))

	require.NoError(t, st.Reset(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateTable(t *testing.T) {
	mock, st := newMockPostgres(t)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "data" ("id" TEXT, "geo_json" BYTEA)`)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	err := st.CreateTable(context.Background(), []schema.Column{
		{Name: "id", Type: schema.Text},
		{Name: "geo_json", Type: schema.Blob},
	})
	require.NoError(t, err)
	assert.True(t, st.binary["geo_json"])
	assert.False(t, st.binary["id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateTable_Error(t *testing.T) {
	mock, st := newMockPostgres(t)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE`).WillReturnError(eris.New("permission denied"))

	err := st.CreateTable(context.Background(), []schema.Column{{Name: "id", Type: schema.Text}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: create table data")
}

func TestPostgres_Columns(t *testing.T) {
	mock, st := newMockPostgres(t)
	defer mock.Close()

	mock.ExpectQuery(`information_schema.columns`).
		WithArgs("data").
		WillReturnRows(pgxmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("id", "text").
			AddRow("country", "text").
			AddRow("geo_json", "bytea"))

	cols, err := st.Columns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "country", "geo_json"}, cols)
	assert.True(t, st.binary["geo_json"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Columns_QueryError(t *testing.T) {
	mock, st := newMockPostgres(t)
	defer mock.Close()

	mock.ExpectQuery(`information_schema.columns`).
		WithArgs("data").
		WillReturnError(eris.New("connection reset"))

	_, err := st.Columns(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list columns of data")
}

func TestPostgres_AddColumns(t *testing.T) {
	mock, st := newMockPostgres(t)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(`ALTER TABLE "data" ADD COLUMN "tags_amenity" TEXT`)).
		WillReturnResult(pgxmock.NewResult("ALTER TABLE", 0))
	mock.ExpectExec(regexp.QuoteMeta(`ALTER TABLE "data" ADD COLUMN "tags_name:en" TEXT`)).
		WillReturnResult(pgxmock.NewResult("ALTER TABLE", 0))

	err := st.AddColumns(context.Background(), []schema.AddColumn{
		{Column: "tags_amenity", Type: schema.Text},
		{Column: "tags_name:en", Type: schema.Text},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AddColumns_StopsOnError(t *testing.T) {
	mock, st := newMockPostgres(t)
	defer mock.Close()

	mock.ExpectExec(`ADD COLUMN "a"`).WillReturnError(eris.New("column exists"))

	err := st.AddColumns(context.Background(), []schema.AddColumn{
		{Column: "a", Type: schema.Text},
		{Column: "b", Type: schema.Text},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: add column a")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Insert(t *testing.T) {
	mock, st := newMockPostgres(t)
	defer mock.Close()
	ctx := context.Background()

	mock.ExpectExec(`CREATE TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, st.CreateTable(ctx, []schema.Column{
		{Name: "id", Type: schema.Text},
		{Name: "lat", Type: schema.Text},
		{Name: "country", Type: schema.Text},
		{Name: "geo_json", Type: schema.Blob},
	}))

	ins, err := st.PrepareInsert(ctx, []string{"id", "lat", "country", "geo_json"})
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "data" ("id", "lat", "country", "geo_json") VALUES ($1, $2, $3, $4)`)).
		WithArgs("42", "5.6037", "Ghana", nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO "data"`).
		WithArgs(nil, nil, "Ghana", []byte(`{"type":"FeatureCollection","features":[]}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, ins.Insert(ctx, schema.Row{int64(42), 5.6037, "Ghana", nil}))
	require.NoError(t, ins.Insert(ctx, schema.Row{nil, nil, "Ghana", `{"type":"FeatureCollection","features":[]}`}))
	require.NoError(t, ins.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Insert_WrongWidth(t *testing.T) {
	mock, st := newMockPostgres(t)
	defer mock.Close()

	ins, err := st.PrepareInsert(context.Background(), []string{"id"})
	require.NoError(t, err)

	err = ins.Insert(context.Background(), schema.Row{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement expects 1")
}

func TestPostgres_PrepareInsert_NoColumns(t *testing.T) {
	mock, st := newMockPostgres(t)
	defer mock.Close()

	_, err := st.PrepareInsert(context.Background(), nil)
	require.Error(t, err)
}

func TestEncodeValue(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		binary bool
		want   any
	}{
		{"nil", nil, false, nil},
		{"nil binary", nil, true, nil},
		{"string", "x", false, "x"},
		{"int", int64(7), false, "7"},
		{"float", 1.5, false, "1.5"},
		{"bool", true, false, "true"},
		{"bytes as text", []byte("ab"), false, "ab"},
		{"string as binary", "ab", true, []byte("ab")},
		{"bytes as binary", []byte("ab"), true, []byte("ab")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, encodeValue(tt.in, tt.binary))
		})
	}
}
