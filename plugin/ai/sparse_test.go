package ai

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSparseEncoderDeterministic(t *testing.T) {
	enc := NewSparseEncoder()

	a := enc.Encode("quarterly budget review meeting")
	b := enc.Encode("quarterly budget review meeting")

	assert.Equal(t, a.Indices, b.Indices)
	assert.Equal(t, a.Values, b.Values)
}

func TestSparseEncoderEmptyText(t *testing.T) {
	enc := NewSparseEncoder()

	assert.Empty(t, enc.Encode("").Indices)
	assert.Empty(t, enc.Encode("   \n\t ").Indices)
	// Punctuation and single-rune tokens carry no terms.
	assert.Empty(t, enc.Encode("! ? , a b c").Indices)
}

func TestSparseEncoderNormalized(t *testing.T) {
	enc := NewSparseEncoder()

	sv := enc.Encode("budget budget budget review")
	require.NotEmpty(t, sv.Indices)

	var norm float64
	for _, v := range sv.Values {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestSparseEncoderSharedTermsOverlap(t *testing.T) {
	enc := NewSparseEncoder()

	doc := enc.Encode("Quarterly Budget Review")
	query := enc.Encode("budget review")

	// Query terms must land on the same hashed indices as the document's.
	docIdx := map[int32]bool{}
	for _, i := range doc.Indices {
		docIdx[i] = true
	}
	for _, i := range query.Indices {
		assert.True(t, docIdx[i], "query term index %d missing from document", i)
	}
}

func TestSparseEncoderRepeatedTermsWeighLogarithmic(t *testing.T) {
	enc := NewSparseEncoder()

	sv := enc.Encode("alpha alpha alpha alpha beta")
	require.Len(t, sv.Indices, 2)

	// 1+log(4) vs 1+log(1), both scaled by the same norm.
	ratio := float64(maxVal(sv.Values)) / float64(minVal(sv.Values))
	assert.InDelta(t, 1+math.Log(4), ratio, 1e-5)
}

func maxVal(vs []float32) float32 {
	m := vs[0]
	for _, v := range vs {
		if v > m {
			m = v
		}
	}
	return m
}

func minVal(vs []float32) float32 {
	m := vs[0]
	for _, v := range vs {
		if v < m {
			m = v
		}
	}
	return m
}
