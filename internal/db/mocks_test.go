package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- Mock Rows ---

// mapRows implements pgx.Rows over named columns. Each entry of data is one
// row of values in column order. scan, when set, handles positional Scan
// calls; RowScanner destinations (pgx.RowToMap) read Values directly.
type mapRows struct {
	columns []string
	data    [][]any
	idx     int
	closed  bool
	errVal  error
	scan    func(row []any, dest ...any) error
}

func newMapRows(columns []string, data ...[]any) *mapRows {
	return &mapRows{columns: columns, data: data, idx: -1}
}

func (r *mapRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *mapRows) Scan(dest ...any) error {
	if len(dest) == 1 {
		if rs, ok := dest[0].(pgx.RowScanner); ok {
			return rs.ScanRow(r)
		}
	}
	return r.scan(r.data[r.idx], dest...)
}

func (r *mapRows) Values() ([]any, error) { return r.data[r.idx], nil }

func (r *mapRows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.columns))
	for i, c := range r.columns {
		fds[i] = pgconn.FieldDescription{Name: c}
	}
	return fds
}

func (r *mapRows) Close()                        { r.closed = true }
func (r *mapRows) Err() error                    { return r.errVal }
func (r *mapRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *mapRows) RawValues() [][]byte           { return nil }
func (r *mapRows) Conn() *pgx.Conn               { return nil }
