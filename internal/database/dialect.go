package database

import "database/sql"

// Dialect abstracts the differences between the supported SQL engines.
// Queries are written once with ? placeholders and the dialect adapts them.
type Dialect interface {
	// DriverName is the name registered with database/sql.
	DriverName() string
	// DSN builds the data source name from the dialect's config fields.
	DSN(config DialectConfig) string
	// RewriteQuery adapts placeholder syntax (? to $N for postgres).
	RewriteQuery(query string) string
	// SupportsLastInsertId distinguishes LastInsertId engines from
	// RETURNING engines.
	SupportsLastInsertId() bool
	// ConfigureConnection applies pool limits and engine pragmas.
	ConfigureConnection(db *sql.DB) error
	// MigrationsSubdir names the per-engine migrations directory.
	MigrationsSubdir() string
	// CreateMigrationsTableQuery returns the DDL for the tracking table.
	CreateMigrationsTableQuery() string
	// BoolValue renders a boolean literal for the engine.
	BoolValue(b bool) string
}

// DialectConfig carries the connection settings a DSN can be built from:
// Path for SQLite, URL for PostgreSQL and MySQL.
type DialectConfig struct {
	Path string
	URL  string
}
