// Package sqlite provides a SQLite-backed implementation of
// orderlog.Repository.
//
// WAL mode is enabled on Open so that readers never block writers and vice
// versa — the claim engine writes while the HTTP layer or an operator
// query may be reading.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clearledger/paygate/internal/order/orderlog"

	// Register the pure-Go SQLite driver. modernc.org/sqlite avoids CGO,
	// which keeps Docker (Alpine) builds simple.
	_ "modernc.org/sqlite"
)

// schema is the DDL executed once on startup.
// The table is append-only: each row is an immutable transition in an
// order's lifecycle. The latest row per order_id is its current state.
const schema = `
CREATE TABLE IF NOT EXISTS order_logs (
    -- Surrogate primary key, auto-incremented by SQLite.
    id              INTEGER PRIMARY KEY AUTOINCREMENT,

    -- Caller-supplied payment order id. Not UNIQUE: one row per transition.
    order_id        TEXT        NOT NULL,

    -- Transition recorded by this row (OPEN, CLAIMING, SETTLED, ...).
    status          TEXT        NOT NULL,

    -- Ledger settlement reference, set on SETTLED / SUPERSEDED rows.
    settlement_ref  TEXT        NOT NULL DEFAULT '',

    -- Claim destination address, set from CLAIMING onward.
    destination     TEXT        NOT NULL DEFAULT '',

    -- Ledger failure detail for REOPENED / FAILED rows.
    error_message   TEXT        NOT NULL DEFAULT '',

    -- W3C trace_id (32 hex chars) from the active OTel span.
    trace_id        TEXT        NOT NULL DEFAULT '',

    -- W3C span_id (16 hex chars) within the trace.
    span_id         TEXT        NOT NULL DEFAULT '',

    -- Wall-clock timestamp (RFC3339 stored as TEXT, SQLite idiom).
    updated_at      TEXT        NOT NULL
);

-- The common query: all transitions for order X, in order.
CREATE INDEX IF NOT EXISTS idx_order_logs_order_id ON order_logs(order_id, updated_at);

-- The observability query: find the order for trace Y.
CREATE INDEX IF NOT EXISTS idx_order_logs_trace_id ON order_logs(trace_id);
`

// Repository is the SQLite implementation of orderlog.Repository.
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the database at the given path and applies the
// schema.
//
//	repo, err := sqlite.Open("./data/orders.db")
func Open(path string) (*Repository, error) {
	// The pure-Go driver takes _pragma query parameters. WAL enables
	// concurrent readers; busy_timeout waits for locks instead of failing.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	// "sqlite", not "sqlite3", for the modernc driver.
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close releases the database connection. Call it with defer in main().
func (r *Repository) Close() error {
	return r.db.Close()
}

// Save appends a transition row. Safe to call concurrently.
func (r *Repository) Save(ctx context.Context, entry *orderlog.Entry) error {
	const q = `
		INSERT INTO order_logs
			(order_id, status, settlement_ref, destination, error_message, trace_id, span_id, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		entry.OrderID,
		string(entry.Status),
		entry.SettlementRef,
		entry.Destination,
		entry.ErrorMessage,
		entry.TraceID,
		entry.SpanID,
		entry.UpdatedAt.UTC().Format("2006-01-02T15:04:05.999999999Z"),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save order log for %q: %w", entry.OrderID, err)
	}
	return nil
}

// GetLatest returns the most recent transition for an order. Useful for a
// status query and for recovery on restart.
func (r *Repository) GetLatest(ctx context.Context, orderID string) (*orderlog.Entry, error) {
	const q = `
		SELECT order_id, status, settlement_ref, destination, error_message,
		       trace_id, span_id, updated_at
		FROM   order_logs
		WHERE  order_id = ?
		ORDER  BY updated_at DESC, id DESC
		LIMIT  1`

	row := r.db.QueryRowContext(ctx, q, orderID)

	var entry orderlog.Entry
	var updatedAt string
	err := row.Scan(
		&entry.OrderID,
		&entry.Status,
		&entry.SettlementRef,
		&entry.Destination,
		&entry.ErrorMessage,
		&entry.TraceID,
		&entry.SpanID,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sqlite: order %q not found", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get latest for %q: %w", orderID, err)
	}

	entry.UpdatedAt, err = parseRFC3339(updatedAt)
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// ListInFlight returns the ids of orders whose latest row is CLAIMING —
// claims that were mid-flight when the process last stopped.
func (r *Repository) ListInFlight(ctx context.Context) ([]string, error) {
	// Latest row per order via the (max updated_at, max id) pair.
	const q = `
		SELECT l.order_id
		FROM   order_logs l
		JOIN  (SELECT order_id, MAX(id) AS max_id
		       FROM order_logs GROUP BY order_id) latest
		  ON   l.order_id = latest.order_id AND l.id = latest.max_id
		WHERE  l.status = ?`

	rows, err := r.db.QueryContext(ctx, q, string(orderlog.StatusClaiming))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list in-flight orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan in-flight order: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// parseRFC3339 parses the timestamp strings stored in SQLite.
// SQLite has no native datetime type; we store RFC3339 TEXT.
func parseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}
