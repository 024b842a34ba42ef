// Package vector provides similarity helpers, blob encoding, and a brute-force cosine index.
package vector

import "math"

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Mismatched lengths, empty vectors and zero vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return InnerProduct(a, b) / (na * nb)
}

// CosineScore maps cosine similarity onto [0, 1] as (1 + cos) / 2, the
// convention vector indexes use for cosine scores.
func CosineScore(a, b []float32) float64 {
	return (1 + Cosine(a, b)) / 2
}

// Normalize scales x in place to unit L2 norm. Zero vectors are left unchanged.
func Normalize(x []float32) {
	n := L2Norm(x)
	if n == 0 {
		return
	}
	inv := float32(1 / n)
	for i := range x {
		x[i] *= inv
	}
}

// RelevanceScore converts a similarity score to a percentage rounded to two decimals.
func RelevanceScore(score float64) float64 {
	return math.Round(score*100*100) / 100
}
