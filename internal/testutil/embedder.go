package testutil

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/calypso-ai/calypso/internal/store"
)

// EmbedText produces a deterministic bag-of-words embedding. Each token is
// hashed to a dimension, so texts sharing words land close in cosine space
// while unrelated texts stay near-orthogonal. The vector is L2-normalized.
//
// This makes similarity assertions meaningful in tests without any model
// behind them: "The sky is blue" retrieves a chunk containing those words
// and not one about an unrelated topic.
func EmbedText(text string) []float32 {
	vec := make([]float32, store.VectorDimension)

	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%store.VectorDimension]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// CosineSimilarity computes the cosine of the angle between two vectors.
func CosineSimilarity(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
