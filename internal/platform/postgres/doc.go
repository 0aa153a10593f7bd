// Package postgres provides the PostgreSQL implementations of the store
// interfaces in internal/store, the embedded goose migrations that define the
// schema, and an otelpgx-traced connection constructor.
//
// Every store wraps a store.DBTX, so the same type serves queries against the
// pool and inside a caller-owned *sql.Tx obtained through WithTx.
package postgres
