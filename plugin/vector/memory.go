package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is an in-memory Index implementation. It backs tests and
// sqlite-only deployments where no pgvector instance is available. Not durable.
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		records: make(map[string]*Record),
	}
}

func (m *MemoryIndex) Upsert(_ context.Context, record *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *record
	m.records[record.ItemID] = &clone
	return nil
}

func (m *MemoryIndex) QueryDense(_ context.Context, query []float32, limit int, filter *Filter) ([]*Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]*Result, 0, len(m.records))
	for id, rec := range m.records {
		if !filter.Matches(rec.Payload) {
			continue
		}
		results = append(results, &Result{
			ItemID:  id,
			Score:   cosineSimilarity(query, rec.Dense),
			Payload: rec.Payload,
		})
	}
	return topK(results, limit), nil
}

func (m *MemoryIndex) QuerySparse(_ context.Context, query SparseVector, limit int, filter *Filter) ([]*Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]*Result, 0, len(m.records))
	for id, rec := range m.records {
		if !filter.Matches(rec.Payload) {
			continue
		}
		score := sparseCosine(query, rec.Sparse)
		if score <= 0 {
			// A sparse space match requires at least one shared term.
			continue
		}
		results = append(results, &Result{
			ItemID:  id,
			Score:   score,
			Payload: rec.Payload,
		})
	}
	return topK(results, limit), nil
}

func (m *MemoryIndex) Get(_ context.Context, itemID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[itemID]
	if !ok {
		return nil, nil
	}
	clone := *rec
	return &clone, nil
}

func (m *MemoryIndex) Delete(_ context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, itemID)
	return nil
}

func (m *MemoryIndex) Close() error {
	return nil
}

// Len returns the number of stored records.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// topK sorts by score descending with ascending item id as tie-break, so
// repeated queries over the same state return identical orderings.
func topK(results []*Result, limit int) []*Result {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ItemID < results[j].ItemID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func sparseCosine(a, b SparseVector) float32 {
	var dot, normA, normB float64
	i, j := 0, 0
	for i < len(a.Indices) && j < len(b.Indices) {
		switch {
		case a.Indices[i] == b.Indices[j]:
			dot += float64(a.Values[i]) * float64(b.Values[j])
			i++
			j++
		case a.Indices[i] < b.Indices[j]:
			i++
		default:
			j++
		}
	}
	for _, v := range a.Values {
		normA += float64(v) * float64(v)
	}
	for _, v := range b.Values {
		normB += float64(v) * float64(v)
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Ensure MemoryIndex implements Index.
var _ Index = (*MemoryIndex)(nil)
