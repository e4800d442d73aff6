/*
Package pgmodel provides a typed data-access layer over PostgreSQL.

pgmodel pairs a retrying connection manager with per-table entity models:
  - Connection establishment with bounded retry (fixed spacing, hard attempt
    budget) and a clean Disconnected/Connecting/Connected lifecycle
  - Exact SQL composition with identifier and literal escaping; no raw value
    ever reaches the query text unescaped
  - Per-table models with four independently replaceable CRUD capabilities
  - A cardinality guard that turns "exactly one row" violations into discrete
    errors carrying the offending rows
  - Rich error handling with PostgreSQL error parsing
  - Configurable observability (logging, metrics, tracing)
  - Health check utilities

# Basic Usage

	cfg := pgmodel.DefaultConfig(pgmodel.ConnectionParameters{
	    Host:     "localhost",
	    Port:     5432,
	    User:     "postgres",
	    Password: "postgres",
	    Database: "app",
	})
	cfg.Logger = slog.Default()

	client, err := pgmodel.Open(ctx, cfg)
	if err != nil {
	    log.Fatal(err)
	}
	defer client.Disconnect()

# Records and Models

A record is a struct with a UUID identity, usually by embedding RecordData.
Column names come from db tags, falling back to snake_case field names:

	type User struct {
	    pgmodel.RecordData
	    Email string `db:"email"`
	    Name  string `db:"name"`
	}

	users, err := pgmodel.NewModel[User](client, "users", nil)

	created, err := users.Create.One(ctx, User{
	    RecordData: pgmodel.RecordData{ID: uuid.New()},
	    Email:      "test@example.com",
	    Name:       "Test",
	})

	found, err := users.Read.OneByID(ctx, created.ID)

	updated, err := users.Update.OneByID(ctx, created.ID,
	    pgmodel.NewChangeSet().Set("name", "Renamed"))

	deleted, err := users.Delete.OneByID(ctx, created.ID)

Every singular operation expects exactly one row back: zero rows fail with
ErrNoResult, two or more with ErrMultipleResults carrying the offending rows.

# Custom Capabilities

Each capability slot is independently replaceable. Embed the default to keep
its methods and add your own:

	type userReader struct {
	    pgmodel.Read[User]
	}

	func (r userReader) AllByName(ctx context.Context, name string) ([]User, error) {
	    query := pgmodel.NewQuery(
	        "SELECT * FROM " + r.Table().String() + " WHERE name = :name;",
	    ).Bind("name", name)
	    return r.QueryRecords(ctx, query)
	}

	users.Read = userReader{pgmodel.NewRead[User](client, users.Table(), nil)}

Replacing one slot leaves the other three untouched. The dynamic form,
users.Replace(pgmodel.SlotRead, impl), verifies interface conformance at the
point of replacement and fails with ErrTypeMismatch, never at first use.

Ready-made slot replacements cover the usual variations: SoftDelete marks
rows instead of removing them, VersionedUpdate adds optimistic locking,
BulkCreate and BulkDelete batch multi-row work, TenantRead, TenantUpdate and
TenantDelete scope every statement to the context's tenant, and AuditModel
wraps the mutation slots with an audit trail:

	users.Delete = pgmodel.NewSoftDelete[User](client, users.Table(), nil)
	users = pgmodel.AuditModel(users, handler)

# Composed Queries

Identifiers and values must never be concatenated into SQL text directly.
Use Ident, Literal, and named parameters:

	query := pgmodel.NewQuery(
	    "SELECT * FROM " + table.String() + " WHERE email = :email;",
	).Bind("email", email)

	rows, err := client.ExecuteAndReturn(ctx, query)

# Connection Modes

Client is a pooled Executor: concurrent calls each borrow a pooled
connection. For session state (advisory locks, temporary tables), check out
a dedicated connection; it serves one query at a time and the caller
serializes access:

	conn, err := client.Conn(ctx)
	if err != nil {
	    return err
	}
	defer conn.Close()

	model, err := pgmodel.NewModel[User](conn, "users", nil)

# Error Handling

pgmodel provides rich error types:

	if _, err := users.Create.One(ctx, user); err != nil {
	    if pgmodel.IsDuplicate(err) {
	        // Handle duplicate key
	    }

	    var dbErr *pgmodel.Error
	    if errors.As(err, &dbErr) {
	        fmt.Println(dbErr.Code)       // DUPLICATE
	        fmt.Println(dbErr.Constraint) // users_email_key
	        fmt.Println(dbErr.Detail)     // Key (email)=(test@example.com) already exists
	    }
	}
*/
package pgmodel
