package pgmodel

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/cheese-drawer/pgmodel/hooks"
)

// ConnState is the connection manager's lifecycle state. The only
// transitions are Disconnected → Connecting → Connected and
// Connected → Disconnected.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

const (
	// connectRetries is how many times Connect retries after the first
	// failed attempt before giving up.
	connectRetries = 12
	// connectDelay is the fixed wait between connection attempts.
	connectDelay = 5 * time.Second
)

// newConnector builds the driver connector for a target. Package variable so
// tests can substitute a scripted driver.
var newConnector = func(params ConnectionParameters) driver.Connector {
	return pgdriver.NewConnector(
		pgdriver.WithAddr(params.Addr()),
		pgdriver.WithUser(params.User),
		pgdriver.WithPassword(params.Password),
		pgdriver.WithDatabase(params.Database),
		pgdriver.WithInsecure(true),
	)
}

// sleepBetweenRetries waits out the retry delay, returning early if the
// context is cancelled. Package variable so tests can observe the spacing
// without sleeping.
var sleepBetweenRetries = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Executor runs composed queries. Client (pooled connections) and Conn (one
// dedicated connection) both satisfy it; Models depend only on this contract,
// so the two modes are interchangeable.
type Executor interface {
	// Execute runs a query and discards any result.
	Execute(ctx context.Context, query *Query) error
	// ExecuteAndReturn runs a query and materializes the entire result set
	// before returning. Rows preserve result column order.
	ExecuteAndReturn(ctx context.Context, query *Query) ([]Row, error)
}

// Client owns a connection pool for one database. Connect and Disconnect are
// not safe for concurrent use with each other; query methods are safe once
// connected because each call borrows its own pooled connection. The client
// itself takes no locks.
type Client struct {
	config Config
	db     *sql.DB
	state  ConnState
	hooks  []hooks.QueryHook
}

// New creates a client for the given configuration without touching the
// network. Call Connect to establish the pool.
func New(cfg Config) (*Client, error) {
	c := &Client{config: cfg}

	if cfg.Logger != nil && (cfg.LogQueries || cfg.LogSlowQueries > 0) {
		c.hooks = append(c.hooks, hooks.NewLoggerHook(cfg.Logger, cfg.LogQueries, cfg.LogSlowQueries))
	}
	if cfg.MetricsRegistry != nil {
		hook, err := hooks.NewMetricsHook(cfg.MetricsRegistry)
		if err != nil {
			return nil, fmt.Errorf("pgmodel: failed to create metrics hook: %w", err)
		}
		c.hooks = append(c.hooks, hook)
	}
	if cfg.Tracer != nil {
		c.hooks = append(c.hooks, hooks.NewTracingHook(cfg.Tracer))
	}

	return c, nil
}

// Open creates a client and connects it in one call
func Open(ctx context.Context, cfg Config) (*Client, error) {
	client, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// State reports the connection manager's lifecycle state
func (c *Client) State() ConnState { return c.state }

// Config returns the client configuration
func (c *Client) Config() Config { return c.config }

// DB returns the underlying pool for direct access, or nil before Connect
func (c *Client) DB() *sql.DB { return c.db }

// Connect opens the pool and verifies the database answers. Transient
// connection failures are retried at a fixed spacing; once the attempt
// counter exceeds connectRetries the call fails with CONNECTION_FAILED and
// never retries further. Non-transient failures (bad credentials, unknown
// database) propagate immediately. Connecting an already connected client is
// a no-op.
func (c *Client) Connect(ctx context.Context) error {
	if c.state == StateConnected {
		return nil
	}

	c.state = StateConnecting
	db := sql.OpenDB(newConnector(c.config.Conn))

	attempts := 1
	for {
		c.logAttrs(ctx, slog.LevelInfo, "attempting database connection",
			slog.String("target", c.config.Conn.String()),
			slog.Int("attempt", attempts),
		)

		err := db.PingContext(ctx)
		if err == nil {
			break
		}

		if !isTransientConnError(err) {
			db.Close()
			c.state = StateDisconnected
			return &Error{
				Code:     CodeConnectionFailed,
				Message:  "connection failed",
				Op:       "Connect",
				Attempts: attempts,
				Cause:    err,
			}
		}

		if attempts > connectRetries {
			db.Close()
			c.state = StateDisconnected
			return &Error{
				Code:     CodeConnectionFailed,
				Message:  fmt.Sprintf("max number of connection attempts has been reached (%d)", connectRetries),
				Op:       "Connect",
				Attempts: attempts,
				Cause:    err,
			}
		}

		c.logAttrs(ctx, slog.LevelInfo, "connection failed, retrying",
			slog.String("target", c.config.Conn.String()),
			slog.Int("attempt", attempts),
			slog.Duration("retry_in", connectDelay),
			slog.String("error", err.Error()),
		)

		if sleepErr := sleepBetweenRetries(ctx, connectDelay); sleepErr != nil {
			db.Close()
			c.state = StateDisconnected
			return &Error{
				Code:     CodeConnectionFailed,
				Message:  "connection attempt cancelled",
				Op:       "Connect",
				Attempts: attempts,
				Cause:    sleepErr,
			}
		}
		attempts++
	}

	c.db = db
	c.state = StateConnected
	c.logAttrs(ctx, slog.LevelInfo, "database connected",
		slog.String("target", c.config.Conn.String()),
		slog.Int("attempt", attempts),
	)
	return nil
}

// Disconnect closes the pool and releases every held resource. Call it once
// per successful Connect; disconnecting a client that never connected fails
// with CONNECTION_FAILED.
func (c *Client) Disconnect() error {
	if c.state != StateConnected || c.db == nil {
		return &Error{Code: CodeConnectionFailed, Message: "not connected", Op: "Disconnect"}
	}
	err := c.db.Close()
	c.db = nil
	c.state = StateDisconnected
	if err != nil {
		return wrapError(err, "Disconnect")
	}
	return nil
}

// Ping verifies the database connection is alive
func (c *Client) Ping(ctx context.Context) error {
	db, err := c.handle("Ping")
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return wrapError(err, "Ping")
	}
	return nil
}

// Stats returns connection pool statistics
func (c *Client) Stats() sql.DBStats {
	if c.db == nil {
		return sql.DBStats{}
	}
	return c.db.Stats()
}

// Execute runs a query on a pooled connection and discards any result
func (c *Client) Execute(ctx context.Context, query *Query) error {
	db, err := c.handle("Execute")
	if err != nil {
		return err
	}
	return execute(ctx, db, query, c.hooks)
}

// ExecuteAndReturn runs a query on a pooled connection and materializes the
// entire result set
func (c *Client) ExecuteAndReturn(ctx context.Context, query *Query) ([]Row, error) {
	db, err := c.handle("ExecuteAndReturn")
	if err != nil {
		return nil, err
	}
	return executeAndReturn(ctx, db, query, c.hooks)
}

// Conn checks a dedicated connection out of the pool. The returned Conn is a
// single-connection Executor: only one query may be in flight at a time, and
// the caller serializes access. Close returns the connection to the pool.
func (c *Client) Conn(ctx context.Context) (*Conn, error) {
	db, err := c.handle("Conn")
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, wrapError(err, "Conn")
	}
	return &Conn{client: c, conn: conn}, nil
}

func (c *Client) handle(op string) (*sql.DB, error) {
	if c.state != StateConnected || c.db == nil {
		return nil, &Error{Code: CodeConnectionFailed, Message: "not connected", Op: op}
	}
	return c.db, nil
}

func (c *Client) logAttrs(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	if c.config.Logger == nil {
		return
	}
	c.config.Logger.LogAttrs(ctx, level, msg, attrs...)
}

// Conn is an Executor bound to one dedicated database connection
type Conn struct {
	client *Client
	conn   *sql.Conn
}

// Execute runs a query on the dedicated connection and discards any result
func (cn *Conn) Execute(ctx context.Context, query *Query) error {
	return execute(ctx, cn.conn, query, cn.client.hooks)
}

// ExecuteAndReturn runs a query on the dedicated connection and materializes
// the entire result set
func (cn *Conn) ExecuteAndReturn(ctx context.Context, query *Query) ([]Row, error) {
	return executeAndReturn(ctx, cn.conn, query, cn.client.hooks)
}

// Close returns the dedicated connection to the pool
func (cn *Conn) Close() error {
	return cn.conn.Close()
}

var (
	_ Executor = (*Client)(nil)
	_ Executor = (*Conn)(nil)
)

// querier is the common query surface of *sql.DB and *sql.Conn
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func execute(ctx context.Context, q querier, query *Query, hks []hooks.QueryHook) error {
	text, err := query.Render()
	if err != nil {
		return err
	}
	ctx, event := beforeQuery(ctx, hks, text)
	_, execErr := q.ExecContext(ctx, text)
	afterQuery(ctx, hks, event, execErr)
	if execErr != nil {
		return wrapError(execErr, "Execute")
	}
	return nil
}

func executeAndReturn(ctx context.Context, q querier, query *Query, hks []hooks.QueryHook) ([]Row, error) {
	text, err := query.Render()
	if err != nil {
		return nil, err
	}
	ctx, event := beforeQuery(ctx, hks, text)
	rows, queryErr := q.QueryContext(ctx, text)
	if queryErr != nil {
		afterQuery(ctx, hks, event, queryErr)
		return nil, wrapError(queryErr, "ExecuteAndReturn")
	}
	result, scanErr := collectRows(rows)
	afterQuery(ctx, hks, event, scanErr)
	if scanErr != nil {
		return nil, wrapError(scanErr, "ExecuteAndReturn")
	}
	return result, nil
}

// collectRows materializes a result set into ordered rows. The cursor is
// released on every exit path. Byte slices are copied because the driver may
// reuse its buffers between scans.
func collectRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := NewRow()
		for i, col := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = append([]byte(nil), b...)
			}
			row = row.Set(col, v)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func beforeQuery(ctx context.Context, hks []hooks.QueryHook, text string) (context.Context, *hooks.QueryEvent) {
	if len(hks) == 0 {
		return ctx, nil
	}
	event := &hooks.QueryEvent{Query: text, StartTime: time.Now()}
	for _, h := range hks {
		ctx = h.BeforeQuery(ctx, event)
	}
	return ctx, event
}

func afterQuery(ctx context.Context, hks []hooks.QueryHook, event *hooks.QueryEvent, err error) {
	if event == nil {
		return
	}
	event.Err = err
	for _, h := range hks {
		h.AfterQuery(ctx, event)
	}
}
