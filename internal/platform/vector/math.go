package vector

import (
	"fmt"
	"math"
)

// MeanNormalized averages the given vectors element-wise and L2-normalizes
// the result. Speaker embeddings are built this way from their constituent
// sample embeddings.
func MeanNormalized(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("mean of zero vectors")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("mean of zero-dimensional vectors")
	}

	sum := make([]float64, dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
		for j, x := range v {
			sum[j] += float64(x)
		}
	}

	n := float64(len(vectors))
	var norm float64
	for j := range sum {
		sum[j] /= n
		norm += sum[j] * sum[j]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil, fmt.Errorf("mean vector has zero norm")
	}

	out := make([]float32, dim)
	for j := range sum {
		out[j] = float32(sum[j] / norm)
	}
	return out, nil
}
