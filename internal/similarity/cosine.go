// Package similarity scores face embeddings against each other and decides
// which registered users a detected face belongs to.
package similarity

import (
	"fmt"
	"math"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

// Cosine returns dot(a,b) / (|a| * |b|).
//
// Vectors of different length are a DimensionMismatch. A zero-norm vector has
// no direction and scores 0. Each vector is divided by its largest absolute
// component first, so neither huge nor tiny magnitudes overflow or underflow
// the sums. Non-finite input scores 0 and the result is clamped to [-1, 1].
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, domain.ErrDimensionMismatch.WithError(fmt.Errorf("len %d vs %d", len(a), len(b)))
	}

	scaleA, scaleB := maxAbs(a), maxAbs(b)
	if scaleA == 0 || scaleB == 0 {
		return 0, nil
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := a[i]/scaleA, b[i]/scaleB
		dot += x * y
		normA += x * x
		normB += y * y
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case math.IsNaN(score) || math.IsInf(score, 0):
		return 0, nil
	case score > 1:
		return 1, nil
	case score < -1:
		return -1, nil
	}
	return score, nil
}

func maxAbs(v []float64) float64 {
	var m float64
	for _, x := range v {
		if ax := math.Abs(x); ax > m || math.IsNaN(ax) {
			m = ax
		}
	}
	return m
}

func IsMatch(score, threshold float64) bool {
	return score >= threshold
}

// Normalize scales v to unit length. Zero vectors are returned unchanged.
func Normalize(v []float64) []float64 {
	scale := maxAbs(v)
	if scale == 0 {
		return v
	}

	var norm float64
	for _, x := range v {
		norm += (x / scale) * (x / scale)
	}
	norm = math.Sqrt(norm) * scale

	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
