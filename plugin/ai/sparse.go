package ai

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/glimpse-dev/glimpse/plugin/vector"
)

// SparseDimensions is the size of the hashed term space. Ingestion and query
// encoding must share this value or the two sparse spaces are incompatible.
const SparseDimensions = 1 << 18

// SparseEncoder turns text into a sparse lexical vector. Terms are hashed
// into a fixed space instead of looked up in a trained vocabulary, so the
// encoder is stateless and an ingested document and a later query always land
// in the same space.
type SparseEncoder struct {
	dimensions int32
}

// NewSparseEncoder creates a sparse encoder over the default term space.
func NewSparseEncoder() *SparseEncoder {
	return &SparseEncoder{dimensions: SparseDimensions}
}

// Dimensions returns the size of the term space.
func (e *SparseEncoder) Dimensions() int32 {
	return e.dimensions
}

// Encode produces an L2-normalized sparse vector with 1+log(tf) term weights.
// Empty or whitespace-only text yields an empty vector.
func (e *SparseEncoder) Encode(text string) vector.SparseVector {
	counts := make(map[int32]int)
	for _, term := range tokenize(text) {
		counts[e.hashTerm(term)]++
	}
	if len(counts) == 0 {
		return vector.SparseVector{}
	}

	indices := make([]int32, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	var norm float64
	for i, idx := range indices {
		w := 1 + math.Log(float64(counts[idx]))
		values[i] = float32(w)
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for i := range values {
		values[i] = float32(float64(values[i]) / norm)
	}

	return vector.SparseVector{Indices: indices, Values: values}
}

func (e *SparseEncoder) hashTerm(term string) int32 {
	h := fnv.New32a()
	h.Write([]byte(term))
	return int32(h.Sum32() % uint32(e.dimensions))
}

// tokenize lowercases and splits on non-letter/non-digit runes, dropping
// single-rune tokens which carry no lexical signal.
func tokenize(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	result := tokens[:0]
	for _, tok := range tokens {
		if len([]rune(tok)) > 1 {
			result = append(result, tok)
		}
	}
	return result
}
