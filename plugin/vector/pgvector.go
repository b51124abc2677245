package vector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"
)

// PGIndex is a PostgreSQL + pgvector backed Index. Dense vectors live in a
// vector(N) column, sparse vectors in a sparsevec(N) column, both searched by
// cosine distance with filters pushed into the WHERE clause.
type PGIndex struct {
	db        *sql.DB
	denseDims int
	sparseDim int32
}

// NewPGIndex opens the postgres database and ensures the schema exists.
func NewPGIndex(dsn string, denseDims int, sparseDims int32) (*PGIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres")
	}
	idx := &PGIndex{
		db:        db,
		denseDims: denseDims,
		sparseDim: sparseDims,
	}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (p *PGIndex) migrate() error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vector_record (
			item_id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			sparse_embedding sparsevec(%d) NOT NULL,
			captured_ts BIGINT NOT NULL,
			source TEXT NOT NULL,
			preview TEXT NOT NULL DEFAULT ''
		)`, p.denseDims, p.sparseDim),
		`CREATE INDEX IF NOT EXISTS idx_vector_record_embedding ON vector_record USING hnsw (embedding vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_vector_record_sparse ON vector_record USING hnsw (sparse_embedding sparsevec_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_vector_record_captured_ts ON vector_record (captured_ts)`,
		`CREATE INDEX IF NOT EXISTS idx_vector_record_source ON vector_record (source)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "failed to apply vector schema: %s", strings.Fields(stmt)[2])
		}
	}
	return nil
}

func (p *PGIndex) Upsert(ctx context.Context, record *Record) error {
	sparse := sparseToPG(record.Sparse, p.sparseDim)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO vector_record (item_id, embedding, sparse_embedding, captured_ts, source, preview)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (item_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			sparse_embedding = EXCLUDED.sparse_embedding,
			captured_ts = EXCLUDED.captured_ts,
			source = EXCLUDED.source,
			preview = EXCLUDED.preview
	`, record.ItemID, pgvector.NewVector(record.Dense), sparse,
		record.Payload.CapturedTs, record.Payload.Source, record.Payload.Preview)
	if err != nil {
		return errors.Wrap(err, "failed to upsert vector record")
	}
	return nil
}

func (p *PGIndex) QueryDense(ctx context.Context, query []float32, limit int, filter *Filter) ([]*Result, error) {
	where, args := buildFilter(filter, 2)
	stmt := fmt.Sprintf(`
		SELECT item_id, captured_ts, source, preview, 1 - (embedding <=> $1) AS score
		FROM vector_record
		%s
		ORDER BY embedding <=> $1, item_id
		LIMIT %d
	`, where, limit)

	queryArgs := append([]any{pgvector.NewVector(query)}, args...)
	return p.queryResults(ctx, stmt, queryArgs...)
}

func (p *PGIndex) QuerySparse(ctx context.Context, query SparseVector, limit int, filter *Filter) ([]*Result, error) {
	where, args := buildFilter(filter, 2)
	stmt := fmt.Sprintf(`
		SELECT item_id, captured_ts, source, preview, 1 - (sparse_embedding <=> $1) AS score
		FROM vector_record
		%s
		ORDER BY sparse_embedding <=> $1, item_id
		LIMIT %d
	`, where, limit)

	queryArgs := append([]any{sparseToPG(query, p.sparseDim)}, args...)
	return p.queryResults(ctx, stmt, queryArgs...)
}

func (p *PGIndex) queryResults(ctx context.Context, stmt string, args ...any) ([]*Result, error) {
	rows, err := p.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "vector query failed")
	}
	defer rows.Close()

	results := []*Result{}
	for rows.Next() {
		result := &Result{}
		if err := rows.Scan(&result.ItemID, &result.Payload.CapturedTs, &result.Payload.Source, &result.Payload.Preview, &result.Score); err != nil {
			return nil, errors.Wrap(err, "failed to scan vector result")
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func (p *PGIndex) Get(ctx context.Context, itemID string) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT item_id, embedding, sparse_embedding, captured_ts, source, preview
		FROM vector_record
		WHERE item_id = $1
	`, itemID)

	record := &Record{}
	var dense pgvector.Vector
	var sparse pgvector.SparseVector
	err := row.Scan(&record.ItemID, &dense, &sparse, &record.Payload.CapturedTs, &record.Payload.Source, &record.Payload.Preview)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get vector record")
	}
	record.Dense = dense.Slice()
	record.Sparse = SparseVector{
		Indices: sparse.Indices(),
		Values:  sparse.Values(),
	}
	return record, nil
}

func (p *PGIndex) Delete(ctx context.Context, itemID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM vector_record WHERE item_id = $1`, itemID)
	if err != nil {
		return errors.Wrap(err, "failed to delete vector record")
	}
	return nil
}

func (p *PGIndex) Close() error {
	return p.db.Close()
}

// buildFilter renders the filter as a WHERE clause with placeholders starting
// at firstArg. The query vector always occupies $1.
func buildFilter(filter *Filter, firstArg int) (string, []any) {
	if filter == nil {
		return "", nil
	}

	conditions := []string{}
	args := []any{}
	n := firstArg

	if filter.Start != nil {
		conditions = append(conditions, fmt.Sprintf("captured_ts >= $%d", n))
		args = append(args, filter.Start.Unix())
		n++
	}
	if filter.End != nil {
		conditions = append(conditions, fmt.Sprintf("captured_ts <= $%d", n))
		args = append(args, filter.End.Unix())
		n++
	}
	if len(filter.Sources) > 0 {
		conditions = append(conditions, fmt.Sprintf("source = ANY($%d)", n))
		args = append(args, pq.Array(filter.Sources))
		n++
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func sparseToPG(sv SparseVector, dim int32) pgvector.SparseVector {
	elements := make(map[int32]float32, len(sv.Indices))
	for i, idx := range sv.Indices {
		elements[idx] = sv.Values[i]
	}
	return pgvector.NewSparseVectorFromMap(elements, dim)
}

// Ensure PGIndex implements Index.
var _ Index = (*PGIndex)(nil)
