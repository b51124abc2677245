// Package retrieval implements hybrid search over the vector index: dense
// semantic retrieval and sparse lexical retrieval run in parallel and are
// fused with Reciprocal Rank Fusion.
package retrieval

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/lithammer/shortuuid/v4"

	"github.com/glimpse-dev/glimpse/plugin/ai"
	"github.com/glimpse-dev/glimpse/plugin/vector"
)

const (
	// rrfK is the damping factor for Reciprocal Rank Fusion. A value of 60
	// is commonly used in information retrieval.
	rrfK = 60

	// Each retrieval branch overfetches to give the fusion enough overlap
	// to work with, capped so large limits stay cheap.
	overfetchFactor = 5
	overfetchCap    = 50

	maxQueryLength = 1000
	maxLimit       = 50
	defaultLimit   = 10
)

// ErrInvalidRequest marks search options rejected by validation. Callers map
// it to a client error; every other Search error is a retrieval failure.
var ErrInvalidRequest = stderrors.New("invalid search request")

// Result is one fused search hit.
type Result struct {
	ItemID     string
	Score      float32
	CapturedTs int64
	Source     string
	Preview    string
}

// Options control a single search.
type Options struct {
	Query     string
	Limit     int
	Start     *time.Time
	End       *time.Time
	Sources   []string
	RequestID string
	Logger    *slog.Logger
}

// Engine runs hybrid retrieval against a vector index.
type Engine struct {
	embedding ai.EmbeddingService
	sparse    *ai.SparseEncoder
	index     vector.Index
}

func NewEngine(embedding ai.EmbeddingService, sparse *ai.SparseEncoder, index vector.Index) *Engine {
	return &Engine{
		embedding: embedding,
		sparse:    sparse,
		index:     index,
	}
}

// Search embeds the query once per branch, retrieves dense and sparse
// candidate lists in parallel, and fuses them. If one branch fails the other
// serves the result alone; only a double failure is an error.
func (e *Engine) Search(ctx context.Context, opts *Options) ([]*Result, error) {
	if opts == nil {
		return nil, fmt.Errorf("%w: options are required", ErrInvalidRequest)
	}
	if opts.Query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrInvalidRequest)
	}
	if n := utf8.RuneCountInString(opts.Query); n > maxQueryLength {
		return nil, fmt.Errorf("%w: query too long: %d characters (max %d)", ErrInvalidRequest, n, maxQueryLength)
	}
	if opts.Limit < 0 || opts.Limit > maxLimit {
		return nil, fmt.Errorf("%w: limit out of range: %d (max %d)", ErrInvalidRequest, opts.Limit, maxLimit)
	}
	if opts.Limit == 0 {
		opts.Limit = defaultLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RequestID == "" {
		opts.RequestID = shortuuid.New()
	}

	fetch := opts.Limit * overfetchFactor
	if fetch > overfetchCap {
		fetch = overfetchCap
	}

	// Filters are pushed down to the index so every branch sees the same
	// candidate universe and fusion ranks are comparable.
	filter := &vector.Filter{
		Start:   opts.Start,
		End:     opts.End,
		Sources: opts.Sources,
	}

	type branchResult struct {
		matches []*vector.Result
		err     error
	}
	denseCh := make(chan branchResult, 1)
	sparseCh := make(chan branchResult, 1)

	go func() {
		queryVector, err := e.embedding.Embed(ctx, opts.Query)
		if err != nil {
			denseCh <- branchResult{nil, fmt.Errorf("failed to embed query: %w", err)}
			return
		}
		matches, err := e.index.QueryDense(ctx, queryVector, fetch, filter)
		denseCh <- branchResult{matches, err}
	}()

	go func() {
		queryVector := e.sparse.Encode(opts.Query)
		if len(queryVector.Indices) == 0 {
			sparseCh <- branchResult{nil, nil}
			return
		}
		matches, err := e.index.QuerySparse(ctx, queryVector, fetch, filter)
		sparseCh <- branchResult{matches, err}
	}()

	denseRes := <-denseCh
	sparseRes := <-sparseCh

	if denseRes.err != nil && sparseRes.err != nil {
		return nil, fmt.Errorf("both dense and sparse retrieval failed: dense=%v, sparse=%v", denseRes.err, sparseRes.err)
	}
	if denseRes.err != nil {
		opts.Logger.WarnContext(ctx, "dense retrieval failed, using sparse only",
			"request_id", opts.RequestID,
			"error", denseRes.err,
		)
	}
	if sparseRes.err != nil {
		opts.Logger.WarnContext(ctx, "sparse retrieval failed, using dense only",
			"request_id", opts.RequestID,
			"error", sparseRes.err,
		)
	}

	results := rrfFusion(denseRes.matches, sparseRes.matches)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	opts.Logger.InfoContext(ctx, "hybrid retrieval completed",
		"request_id", opts.RequestID,
		"dense_count", len(denseRes.matches),
		"sparse_count", len(sparseRes.matches),
		"result_count", len(results),
	)
	return results, nil
}

// rrfFusion merges two ranked lists with unweighted Reciprocal Rank Fusion:
// RRF(d) = sum over lists of 1 / (k + rank(d)). Items sharing a score are
// ordered by ascending item id so results are deterministic.
func rrfFusion(dense, sparse []*vector.Result) []*Result {
	type rrfScore struct {
		score float32
		match *vector.Result
	}
	scores := make(map[string]*rrfScore, len(dense)+len(sparse))

	accumulate := func(matches []*vector.Result) {
		for i, m := range matches {
			rank := i + 1
			contribution := 1.0 / (float32(rrfK) + float32(rank))
			if existing, ok := scores[m.ItemID]; ok {
				existing.score += contribution
			} else {
				scores[m.ItemID] = &rrfScore{score: contribution, match: m}
			}
		}
	}
	accumulate(dense)
	accumulate(sparse)

	results := make([]*Result, 0, len(scores))
	for _, s := range scores {
		results = append(results, &Result{
			ItemID:     s.match.ItemID,
			Score:      s.score,
			CapturedTs: s.match.Payload.CapturedTs,
			Source:     s.match.Payload.Source,
			Preview:    s.match.Payload.Preview,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ItemID < results[j].ItemID
	})
	return results
}
