package pgmodel

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// The unit tests run against a scripted database/sql driver instead of a
// real server. The stub records every connection attempt and query, and
// plays back scripted dial errors and result sets. It never returns
// driver.ErrBadConn, because database/sql retries that internally and the
// retry tests count attempts exactly.

type stubResultSet struct {
	columns []string
	rows    [][]driver.Value
}

type stubState struct {
	mu          sync.Mutex
	connectErrs []error         // consumed one per connection attempt; nil entry connects
	connectErr  error           // returned for every attempt once connectErrs is drained
	results     []stubResultSet // consumed one per query
	queryErrs   []error         // consumed one per query, before results
	execErrs    []error         // consumed one per exec
	connects    int
	queries     []string
	execs       []string
}

func (s *stubState) connectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func (s *stubState) queryLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func (s *stubState) execLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.execs...)
}

type stubConnector struct {
	state *stubState
}

func (c *stubConnector) Connect(ctx context.Context) (driver.Conn, error) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()

	c.state.connects++
	if len(c.state.connectErrs) > 0 {
		err := c.state.connectErrs[0]
		c.state.connectErrs = c.state.connectErrs[1:]
		if err != nil {
			return nil, err
		}
	} else if c.state.connectErr != nil {
		return nil, c.state.connectErr
	}
	return &stubConn{state: c.state}, nil
}

func (c *stubConnector) Driver() driver.Driver { return stubDriver{} }

type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("stub driver requires a connector")
}

type stubConn struct {
	state *stubState
}

func (c *stubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("stub conn does not prepare")
}

func (c *stubConn) Close() error { return nil }

func (c *stubConn) Begin() (driver.Tx, error) {
	return nil, errors.New("stub conn does not begin transactions")
}

func (c *stubConn) Ping(ctx context.Context) error { return nil }

func (c *stubConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()

	c.state.queries = append(c.state.queries, query)
	if len(c.state.queryErrs) > 0 {
		err := c.state.queryErrs[0]
		c.state.queryErrs = c.state.queryErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	var set stubResultSet
	if len(c.state.results) > 0 {
		set = c.state.results[0]
		c.state.results = c.state.results[1:]
	}
	return &stubRows{set: set}, nil
}

func (c *stubConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()

	c.state.execs = append(c.state.execs, query)
	if len(c.state.execErrs) > 0 {
		err := c.state.execErrs[0]
		c.state.execErrs = c.state.execErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return driver.RowsAffected(1), nil
}

var (
	_ driver.Connector      = (*stubConnector)(nil)
	_ driver.Pinger         = (*stubConn)(nil)
	_ driver.QueryerContext = (*stubConn)(nil)
	_ driver.ExecerContext  = (*stubConn)(nil)
)

type stubRows struct {
	set stubResultSet
	idx int
}

func (r *stubRows) Columns() []string { return r.set.columns }

func (r *stubRows) Close() error { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.set.rows) {
		return io.EOF
	}
	copy(dest, r.set.rows[r.idx])
	r.idx++
	return nil
}

var testParams = ConnectionParameters{
	Host:     "localhost",
	Port:     5432,
	User:     "test",
	Password: "test",
	Database: "test",
}

// swapConnector points the client at the stub for one test
func swapConnector(t *testing.T, state *stubState) {
	t.Helper()
	orig := newConnector
	newConnector = func(ConnectionParameters) driver.Connector {
		return &stubConnector{state: state}
	}
	t.Cleanup(func() { newConnector = orig })
}

// swapSleep records retry waits instead of sleeping them out
func swapSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	orig := sleepBetweenRetries
	sleeps := &[]time.Duration{}
	sleepBetweenRetries = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	t.Cleanup(func() { sleepBetweenRetries = orig })
	return sleeps
}

// newStubClient returns a connected client backed by the stub driver
func newStubClient(t *testing.T, state *stubState) *Client {
	t.Helper()
	swapConnector(t, state)
	swapSleep(t)

	client, err := New(DefaultConfig(testParams))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return client
}
