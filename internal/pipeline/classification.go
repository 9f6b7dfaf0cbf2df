package pipeline

import (
	"fmt"
	"strings"

	"github.com/cozy-creator/vision-ai/internal/inference"
	"github.com/cozy-creator/vision-ai/internal/types"
)

const (
	ClassificationSize = 224
	topPredictions     = 5
)

type Prediction struct {
	Index       int
	Label       string
	Probability float32
}

// NewClassification builds the ImageNet top-5 pipeline. labelPath is a synset
// file with one "<wnid> <label>" line per class.
func NewClassification(labelPath string) *Pipeline {
	labels := newLabelFile(labelPath, SynsetLabel)

	return New(Config{
		ID:        types.PipelineClassification,
		Width:     ClassificationSize,
		Height:    ClassificationSize,
		Layout:    LayoutNCHW,
		Normalize: NormalizeMeanStd,
		Mean:      ImageNetMean,
		Std:       ImageNetStd,
		Post: func(_ Frame, outputs []inference.Tensor) (Output, error) {
			preds, err := Classify(outputs[0], labels.label, topPredictions)
			if err != nil {
				return Output{}, err
			}

			return Output{Message: FormatTopPredictions(preds)}, nil
		},
	})
}

// Classify applies softmax to the logits and labels the k most probable classes.
func Classify(logits inference.Tensor, label func(int) (string, error), k int) ([]Prediction, error) {
	probs := Softmax(firstRow(logits))
	if len(probs) == 0 {
		return nil, &OutputError{Pipeline: types.PipelineClassification, Reason: "empty logits"}
	}

	top := TopK(probs, k)
	preds := make([]Prediction, len(top))
	for i, idx := range top {
		name, err := label(idx)
		if err != nil {
			return nil, err
		}
		preds[i] = Prediction{Index: idx, Label: name, Probability: probs[idx]}
	}

	return preds, nil
}

func FormatTopPredictions(preds []Prediction) string {
	var sb strings.Builder
	sb.WriteString("Top-5 predictions: \n")
	for i, p := range preds {
		fmt.Fprintf(&sb, "%d. %s: %.4f \n", i+1, p.Label, p.Probability)
	}

	return sb.String()
}
