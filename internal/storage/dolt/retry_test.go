package dolt

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync/atomic"
	"testing"
)

// flakyConn fails the first failFirst statements of each kind with a dropped
// connection error.
type flakyConn struct {
	failFirst int32
	execs     atomic.Int32
	queries   atomic.Int32
}

var errConnReset = errors.New("read tcp 127.0.0.1:3307: connection reset by peer")

func (c *flakyConn) Connect(context.Context) (driver.Conn, error) { return c, nil }
func (c *flakyConn) Driver() driver.Driver                        { return flakyDriver{c} }
func (c *flakyConn) Prepare(string) (driver.Stmt, error)          { return nil, errors.New("not supported") }
func (c *flakyConn) Close() error                                 { return nil }
func (c *flakyConn) Begin() (driver.Tx, error)                    { return nil, errors.New("not supported") }

func (c *flakyConn) ExecContext(context.Context, string, []driver.NamedValue) (driver.Result, error) {
	if c.execs.Add(1) <= c.failFirst {
		return nil, errConnReset
	}
	return driver.RowsAffected(1), nil
}

func (c *flakyConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	if c.queries.Add(1) <= c.failFirst {
		return nil, errConnReset
	}
	return &oneRow{}, nil
}

type flakyDriver struct{ c *flakyConn }

func (d flakyDriver) Open(string) (driver.Conn, error) { return d.c, nil }

type oneRow struct{ done bool }

func (r *oneRow) Columns() []string { return []string{"n"} }
func (r *oneRow) Close() error      { return nil }
func (r *oneRow) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	r.done = true
	dest[0] = int64(1)
	return nil
}

func newFlakyStore(t *testing.T, failFirst int32) (*DoltStore, *flakyConn) {
	t.Helper()
	conn := &flakyConn{failFirst: failFirst}
	db := sql.OpenDB(conn)
	t.Cleanup(func() { _ = db.Close() })
	return &DoltStore{db: db, serverMode: true}, conn
}

func TestWritesAreNotRetried(t *testing.T) {
	s, conn := newFlakyStore(t, 1)

	_, err := s.execContext(context.Background(), "INSERT INTO changes (id) VALUES (?)", 1)
	if !errors.Is(err, errConnReset) {
		t.Fatalf("execContext error = %v, want connection reset", err)
	}
	if got := conn.execs.Load(); got != 1 {
		t.Errorf("write attempted %d times, want 1", got)
	}
}

func TestReadsAreRetriedInServerMode(t *testing.T) {
	s, conn := newFlakyStore(t, 1)

	rows, err := s.queryContext(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatalf("queryContext: %v", err)
	}
	_ = rows.Close()
	if got := conn.queries.Load(); got != 2 {
		t.Errorf("read attempted %d times, want 2", got)
	}
}
