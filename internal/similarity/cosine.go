// Package similarity computes pairwise cosine similarity over document
// vectors. The matrix is cheap relative to vectorization and is recomputed
// every run so it always reflects the current vector set.
package similarity

import "math"

// Matrix returns the symmetric cosine similarity matrix for vectors.
// The diagonal is 1.0 by convention, zero vectors included.
func Matrix(vectors [][]float64) [][]float64 {
	n := len(vectors)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1.0
	}

	norms := make([]float64, n)
	for i, vec := range vectors {
		norms[i] = norm(vec)
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sim := 0.0
			if norms[i] > 0 && norms[j] > 0 {
				sim = dot(vectors[i], vectors[j]) / (norms[i] * norms[j])
			}
			matrix[i][j] = sim
			matrix[j][i] = sim
		}
	}
	return matrix
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(vec []float64) float64 {
	sum := 0.0
	for _, v := range vec {
		sum += v * v
	}
	return math.Sqrt(sum)
}
