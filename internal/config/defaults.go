package config

import (
	"errors"
	"time"

	"github.com/cozy-creator/vision-ai/internal/types"
)

const (
	DefaultHome             = "~/.vision-ai"
	DefaultHost             = "127.0.0.1"
	DefaultPort             = 8881
	DefaultWorkers          = 3
	DefaultProgressInterval = 250 * time.Millisecond

	DefaultDetectionThreshold = 0.5
	// Index of the catch-all class in the spicesNet v401a label set.
	DefaultSpeciesNoMatchIndex = 2246

	DefaultClassificationLabels = "synset_words.txt"
	DefaultSpeciesLabels        = "spicesNet_labels_v401a.txtset"
)

const (
	FilesystemLocal = "local"
	FilesystemS3    = "s3"
)

var DefaultModels = map[types.PipelineID]types.ModelDescriptor{
	types.PipelineDetection: {
		Name:     "ssd_mobilenet_v1",
		URL:      "https://github.com/onnx/models/raw/main/validated/vision/object_detection_segmentation/ssd-mobilenetv1/model/ssd_mobilenet_v1_10.onnx",
		Filename: "ssd_mobilenet_v1_10.onnx",
		SizeHint: 29_000_000,
	},
	types.PipelineClassification: {
		Name:     "resnet18",
		URL:      "https://github.com/onnx/models/raw/main/validated/vision/classification/resnet/model/resnet18-v1-7.onnx",
		Filename: "resnet18-v1-7.onnx",
		SizeHint: 46_000_000,
	},
	types.PipelineSpecies: {
		Name:     "spicesNet_v401a",
		URL:      "https://github.com/daslearning-org/vision-ai/releases/download/vOnnxModels/spicesNet_v401a.onnx",
		Filename: "spicesNet_v401a.onnx",
	},
}

var (
	ErrHomeNotSet       = errors.New("vision-ai home directory is not set")
	ErrHomeExpandFailed = errors.New("failed to expand vision-ai home directory")
	ErrUnknownPipeline  = errors.New("no model configured for pipeline")
)
