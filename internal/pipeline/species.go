package pipeline

import (
	"fmt"

	"github.com/cozy-creator/vision-ai/internal/inference"
	"github.com/cozy-creator/vision-ai/internal/types"
)

const (
	SpeciesSize    = 480
	NoMatchMessage = "The image does not contain any object that falls into the list!"
)

// NewSpecies builds the species identification pipeline. A prediction of
// class noMatchIndex is the model's "none of the above" class.
func NewSpecies(labelPath string, noMatchIndex int) *Pipeline {
	labels := newLabelFile(labelPath, SpeciesLabel)

	return New(Config{
		ID:        types.PipelineSpecies,
		Width:     SpeciesSize,
		Height:    SpeciesSize,
		Layout:    LayoutNHWC,
		Normalize: NormalizeMeanStd,
		Mean:      ImageNetMean,
		Std:       ImageNetStd,
		Post: func(_ Frame, outputs []inference.Tensor) (Output, error) {
			msg, err := IdentifySpecies(outputs[0], labels.label, noMatchIndex)
			if err != nil {
				return Output{}, err
			}

			return Output{Message: msg}, nil
		},
	})
}

func IdentifySpecies(logits inference.Tensor, label func(int) (string, error), noMatchIndex int) (string, error) {
	probs := Softmax(firstRow(logits))
	idx := Argmax(probs)
	if idx < 0 {
		return "", &OutputError{Pipeline: types.PipelineSpecies, Reason: "empty logits"}
	}

	if idx == noMatchIndex {
		return NoMatchMessage, nil
	}

	name, err := label(idx)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Species: %s\nConfidence: %.2f%%", name, probs[idx]*100), nil
}
