// Package memory implements the bucketed, decaying memory store at the
// heart of memcore: canonical buckets, chunk CRUD with boost-on-access
// reinforcement, vector-similarity retrieval, exponential time decay with
// eviction, and the typed link graph between chunks.
//
// Two Store implementations are provided: an in-memory store for local
// development and tests, and a GORM-backed store for persistent
// deployments (SQLite, PostgreSQL, MySQL).
package memory
