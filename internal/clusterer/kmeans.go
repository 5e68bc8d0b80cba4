// Package clusterer partitions document vectors with seeded k-means. The
// fixed seed makes assignments reproducible run to run on identical input,
// which downstream label caching and the tests both rely on.
package clusterer

import (
	"math"
	"math/rand"
)

const (
	seed          = 42
	maxIterations = 100
)

// ClampK bounds a requested cluster count for a corpus size: at least 2,
// at most a third of the documents.
func ClampK(requested, documentCount int) int {
	limit := documentCount / 3
	if limit < 2 {
		limit = 2
	}
	if requested < limit {
		return requested
	}
	return limit
}

// Cluster assigns each vector a cluster id in [0, k). k is clamped to the
// vector count; fewer than two vectors short-circuit to an all-zero
// assignment. A cluster left with no members keeps its id, so callers must
// tolerate empty clusters.
func Cluster(vectors [][]float64, k int) []int {
	n := len(vectors)
	if n == 0 {
		return []int{}
	}
	if n == 1 {
		return []int{0}
	}
	if k > n {
		k = n
	}
	if k < 1 {
		k = 1
	}

	rng := rand.New(rand.NewSource(seed))
	centroids := seedCentroids(vectors, k, rng)

	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, vec := range vectors {
			best := nearestCentroid(vec, centroids)
			if best != assignments[i] {
				assignments[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		recomputeCentroids(vectors, assignments, centroids)
	}
	return assignments
}

// seedCentroids runs k-means++ initialization: first centroid from the rng,
// each further one sampled proportionally to squared distance from the
// nearest chosen centroid.
func seedCentroids(vectors [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(vectors)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, cloneVector(vectors[rng.Intn(n)]))

	dists := make([]float64, n)
	for len(centroids) < k {
		total := 0.0
		for i, vec := range vectors {
			d := math.Inf(1)
			for _, c := range centroids {
				if sq := squaredDistance(vec, c); sq < d {
					d = sq
				}
			}
			dists[i] = d
			total += d
		}

		next := 0
		if total > 0 {
			target := rng.Float64() * total
			acc := 0.0
			for i, d := range dists {
				acc += d
				if acc >= target {
					next = i
					break
				}
			}
		} else {
			// All points coincide with a centroid; any choice is as good.
			next = rng.Intn(n)
		}
		centroids = append(centroids, cloneVector(vectors[next]))
	}
	return centroids
}

// nearestCentroid returns the index of the closest centroid, lowest index
// winning ties.
func nearestCentroid(vec []float64, centroids [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for idx, c := range centroids {
		if d := squaredDistance(vec, c); d < bestDist {
			bestDist = d
			best = idx
		}
	}
	return best
}

// recomputeCentroids moves each centroid to the mean of its members. A
// centroid with no members stays where it is.
func recomputeCentroids(vectors [][]float64, assignments []int, centroids [][]float64) {
	counts := make([]int, len(centroids))
	sums := make([][]float64, len(centroids))
	for idx := range centroids {
		sums[idx] = make([]float64, len(centroids[idx]))
	}

	for i, vec := range vectors {
		idx := assignments[i]
		counts[idx]++
		for d := range sums[idx] {
			if d < len(vec) {
				sums[idx][d] += vec[d]
			}
		}
	}

	for idx := range centroids {
		if counts[idx] == 0 {
			continue
		}
		for d := range centroids[idx] {
			centroids[idx][d] = sums[idx][d] / float64(counts[idx])
		}
	}
}

func squaredDistance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	for i := n; i < len(a); i++ {
		sum += a[i] * a[i]
	}
	for i := n; i < len(b); i++ {
		sum += b[i] * b[i]
	}
	return sum
}

func cloneVector(vec []float64) []float64 {
	out := make([]float64, len(vec))
	copy(out, vec)
	return out
}
