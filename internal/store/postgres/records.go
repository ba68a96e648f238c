package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/facegate/internal/store"
)

// RecordRepository implements store.RecordStore on top of the
// embedding_records table.
type RecordRepository struct {
	pool *Pool
}

// compile-time interface check
var _ store.RecordStore = (*RecordRepository)(nil)

// NewRecordRepository creates a new PostgreSQL record repository.
func NewRecordRepository(pool *Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

// Insert stores the records and backfills their database-assigned IDs.
func (r *RecordRepository) Insert(ctx context.Context, records []store.EmbeddingRecord) error {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	const query = `
		INSERT INTO embedding_records (identity, embedding, dim, model)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	for i := range records {
		rec := &records[i]
		err := tx.QueryRowContext(ctx, query,
			rec.Identity, pgvector.NewVector(rec.Embedding), rec.Dim, rec.Model,
		).Scan(&rec.ID, &rec.CreatedAt)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert embedding record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit embedding records: %w", err)
	}
	return nil
}

// All retrieves every stored record.
func (r *RecordRepository) All(ctx context.Context) ([]store.EmbeddingRecord, error) {
	const query = `
		SELECT id, identity, embedding, dim, model, created_at
		FROM embedding_records
		ORDER BY id
	`
	rows, err := r.pool.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// DeleteIdentity removes every record for an identity and reports how
// many rows were removed.
func (r *RecordRepository) DeleteIdentity(ctx context.Context, identity int64) (int64, error) {
	res, err := r.pool.db.ExecContext(ctx,
		"DELETE FROM embedding_records WHERE identity = $1", identity)
	if err != nil {
		return 0, fmt.Errorf("delete embedding records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted records: %w", err)
	}
	return n, nil
}

// Rekey relabels every record of oldKey with newKey.
func (r *RecordRepository) Rekey(ctx context.Context, oldKey, newKey int64) (int64, error) {
	res, err := r.pool.db.ExecContext(ctx,
		"UPDATE embedding_records SET identity = $1 WHERE identity = $2", newKey, oldKey)
	if err != nil {
		return 0, fmt.Errorf("rekey embedding records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count rekeyed records: %w", err)
	}
	return n, nil
}

// Count returns the total number of stored records.
func (r *RecordRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embedding_records").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count embedding records: %w", err)
	}
	return count, nil
}

// Identities returns the distinct enrolled identity keys.
func (r *RecordRepository) Identities(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		"SELECT DISTINCT identity FROM embedding_records ORDER BY identity")
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var identities []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// Close closes the underlying pool.
func (r *RecordRepository) Close() error {
	return r.pool.Close()
}

func scanRecords(rows *sql.Rows) ([]store.EmbeddingRecord, error) {
	var records []store.EmbeddingRecord
	for rows.Next() {
		var rec store.EmbeddingRecord
		var vec pgvector.Vector
		if err := rows.Scan(&rec.ID, &rec.Identity, &vec, &rec.Dim, &rec.Model, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding record: %w", err)
		}
		rec.Embedding = vec.Slice()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embedding records: %w", err)
	}
	return records, nil
}
