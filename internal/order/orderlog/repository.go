package orderlog

import "context"

// Repository is the port for persisting order transitions. The engine
// depends on this abstraction, not on SQLite directly, so the
// implementation can be swapped for Postgres or an in-memory fake.
type Repository interface {
	// Save appends a new log row. The table is append-only, not an upsert.
	Save(ctx context.Context, entry *Entry) error
}
