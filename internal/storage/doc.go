// Package storage provides SQLite-backed persistence for face-analysis
// data: users, analyses, embeddings and verification records.
//
// Embedding vectors are stored as little-endian float32 BLOBs and scanned
// in Go with cosine similarity; there is no vector index. All access goes
// through a small connection pool whose connections carry the pragmas the
// schema depends on (foreign keys, busy timeout). The package builds
// against modernc.org/sqlite by default, or mattn/go-sqlite3 with the
// cgosqlite build tag.
package storage
