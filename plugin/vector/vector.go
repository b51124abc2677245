// Package vector provides the vector index used by the ingestion pipeline and
// the hybrid retrieval engine. The index stores one record per item, holding a
// dense (semantic) vector, a sparse (lexical) vector, and a filterable payload.
package vector

import (
	"context"
	"time"
)

// SparseVector is a high-dimensional, mostly-zero vector. Indices are sorted
// ascending and unique; Values[i] is the weight of term Indices[i].
type SparseVector struct {
	Indices []int32
	Values  []float32
}

// Payload is the filterable metadata stored alongside the vectors.
type Payload struct {
	CapturedTs int64  `json:"captured_ts"`
	Source     string `json:"source"`
	Preview    string `json:"preview"`
}

// Record is the per-item entry in the index. Upserts are keyed by ItemID so
// reprocessing the same item is idempotent.
type Record struct {
	ItemID  string
	Dense   []float32
	Sparse  SparseVector
	Payload Payload
}

// Filter restricts candidate retrieval. Filters are applied inside the index,
// never client-side, so filtered-out items do not consume the candidate budget.
type Filter struct {
	Start   *time.Time
	End     *time.Time
	Sources []string
}

// Result is a scored candidate from one vector space.
type Result struct {
	ItemID  string
	Score   float32
	Payload Payload
}

// Index is the vector index contract.
type Index interface {
	// Upsert inserts or overwrites the record for its item.
	Upsert(ctx context.Context, record *Record) error

	// QueryDense returns up to limit candidates by dense similarity.
	QueryDense(ctx context.Context, query []float32, limit int, filter *Filter) ([]*Result, error)

	// QuerySparse returns up to limit candidates by sparse similarity.
	QuerySparse(ctx context.Context, query SparseVector, limit int, filter *Filter) ([]*Result, error)

	// Get returns the record for an item, or nil when absent.
	Get(ctx context.Context, itemID string) (*Record, error)

	// Delete removes the record for an item. Deleting a missing item is a no-op.
	Delete(ctx context.Context, itemID string) error

	Close() error
}

// Matches reports whether a payload passes the filter. Index implementations
// share this so filter semantics stay identical across backends.
func (f *Filter) Matches(p Payload) bool {
	if f == nil {
		return true
	}
	if f.Start != nil && p.CapturedTs < f.Start.Unix() {
		return false
	}
	if f.End != nil && p.CapturedTs > f.End.Unix() {
		return false
	}
	if len(f.Sources) > 0 {
		found := false
		for _, s := range f.Sources {
			if s == p.Source {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
