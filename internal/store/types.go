// Package store owns the persisted matcher state: canonical face samples on
// disk, embedding records in a durable record store, and the in-memory ANN
// index over the enrolled gallery.
package store

import (
	"context"
	"time"
)

// EmbeddingRecord is one enrolled embedding: the identity it belongs to, the
// vector, and when it was created. The set of records for an identity forms
// that identity's gallery.
type EmbeddingRecord struct {
	ID        int64
	Identity  int64
	Embedding []float32
	Dim       int
	Model     string
	CreatedAt time.Time
}

// Match is one gallery hit: an identity and its best cosine similarity to
// the query vector.
type Match struct {
	Identity   int64
	Similarity float64
}

// RecordStore is durable storage for embedding records. Implementations:
// a gob file store for standalone deployments and a PostgreSQL store with a
// pgvector column.
type RecordStore interface {
	Insert(ctx context.Context, records []EmbeddingRecord) error
	All(ctx context.Context) ([]EmbeddingRecord, error)
	DeleteIdentity(ctx context.Context, identity int64) (int64, error)
	Rekey(ctx context.Context, oldKey, newKey int64) (int64, error)
	Count(ctx context.Context) (int, error)
	Identities(ctx context.Context) ([]int64, error)
	Close() error
}
