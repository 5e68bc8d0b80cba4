package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix_Empty(t *testing.T) {
	assert.Empty(t, Matrix(nil))
	assert.Empty(t, Matrix([][]float64{}))
}

func TestMatrix_SingleVector(t *testing.T) {
	m := Matrix([][]float64{{1, 0}})

	require.Len(t, m, 1)
	assert.Equal(t, 1.0, m[0][0])
}

func TestMatrix_KnownValues(t *testing.T) {
	vectors := [][]float64{
		{1, 0},
		{0, 1},
		{1, 1},
	}

	m := Matrix(vectors)
	require.Len(t, m, 3)

	// Orthogonal
	assert.InDelta(t, 0.0, m[0][1], 1e-12)
	// 45 degrees from both axes
	assert.InDelta(t, 0.7071067811865475, m[0][2], 1e-12)
	assert.InDelta(t, 0.7071067811865475, m[1][2], 1e-12)
	// Diagonal
	for i := 0; i < 3; i++ {
		assert.Equal(t, 1.0, m[i][i])
	}
}

func TestMatrix_Symmetric(t *testing.T) {
	vectors := [][]float64{
		{0.3, 0.7, 0.1},
		{0.5, 0.2, 0.9},
		{0.8, 0.1, 0.4},
	}

	m := Matrix(vectors)
	for i := range m {
		for j := range m {
			assert.Equal(t, m[i][j], m[j][i], "m[%d][%d]", i, j)
		}
	}
}

func TestMatrix_ZeroVector(t *testing.T) {
	vectors := [][]float64{
		{0, 0},
		{1, 0},
	}

	m := Matrix(vectors)

	// Zero vectors have zero similarity to everything except themselves
	assert.Equal(t, 0.0, m[0][1])
	assert.Equal(t, 0.0, m[1][0])
	assert.Equal(t, 1.0, m[0][0])
}

func TestMatrix_UnequalLengths(t *testing.T) {
	// Shorter vector is treated as zero-padded
	vectors := [][]float64{
		{1, 0, 0},
		{1},
	}

	m := Matrix(vectors)
	assert.InDelta(t, 1.0, m[0][1], 1e-12)
}
