package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSoftmaxSumsToOne(t *testing.T) {
	probs := Softmax([]float32{1000, 1001, 1002})
	var sum float32
	for _, p := range probs {
		sum += p
	}
	assert.InDelta(t, 1, sum, 1e-5)
	assert.Greater(t, probs[2], probs[1])
	assert.Nil(t, Softmax(nil))
}

func TestTopKBreaksTiesByIndex(t *testing.T) {
	probs := Softmax([]float32{2, 1, 0.1, 0.1, 0.1, 0.1})
	assert.Equal(t, []int{0, 1, 2, 3, 4}, TopK(probs, 5))
	assert.Equal(t, []int{0, 1}, TopK([]float32{3, 2}, 5))
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, 1, Argmax([]float32{0.1, 0.7, 0.7}))
	assert.Equal(t, -1, Argmax(nil))
}

func TestLabelParsers(t *testing.T) {
	assert.Equal(t, "tench, Tinca tinca", SynsetLabel("n01440764 tench, Tinca tinca"))
	assert.Equal(t, "Quercus robur", SpeciesLabel("6f1ed002-ab5d-42e0-868f-9e6c8ac2ab8e;Quercus robur"))
	assert.Equal(t, "not-a-uuid;Quercus", SpeciesLabel("not-a-uuid;Quercus"))
	assert.Equal(t, "plain", SpeciesLabel("plain"))
}
