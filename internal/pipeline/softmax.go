package pipeline

import (
	"cmp"
	"math"
	"slices"

	"github.com/cozy-creator/vision-ai/internal/inference"
)

// Softmax returns exp(x - max) normalised to sum to 1.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}

	maxv := slices.Max(logits)
	out := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxv))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}

	return out
}

// TopK returns the indices of the k largest values, highest first. Equal
// values keep ascending index order.
func TopK(values []float32, k int) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}

	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(values[b], values[a])
	})

	return idx[:min(k, len(idx))]
}

// Argmax returns the index of the first largest value, or -1 for empty input.
func Argmax(values []float32) int {
	best := -1
	for i, v := range values {
		if best < 0 || v > values[best] {
			best = i
		}
	}

	return best
}

// firstRow returns the logits of the first batch entry.
func firstRow(t inference.Tensor) []float32 {
	data := t.Floats()
	if len(t.Shape) < 2 {
		return data
	}

	n := int(t.Shape[len(t.Shape)-1])
	if n <= 0 || n > len(data) {
		return data
	}

	return data[:n]
}
