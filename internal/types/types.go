package types

import "fmt"

type PipelineID string

const (
	PipelineDetection      PipelineID = "detection"
	PipelineClassification PipelineID = "classification"
	PipelineSpecies        PipelineID = "species"
)

// Pipelines lists every pipeline in the order they are reported.
var Pipelines = []PipelineID{PipelineDetection, PipelineClassification, PipelineSpecies}

func ParsePipelineID(s string) (PipelineID, error) {
	for _, id := range Pipelines {
		if string(id) == s {
			return id, nil
		}
	}

	return "", fmt.Errorf("unknown pipeline %q", s)
}

// ModelDescriptor is the static description of a downloadable model artifact.
type ModelDescriptor struct {
	Name     string `json:"name" mapstructure:"name"`
	URL      string `json:"url" mapstructure:"url"`
	Filename string `json:"filename" mapstructure:"filename"`
	SizeHint int64  `json:"size_hint,omitempty" mapstructure:"size"`
	Checksum string `json:"checksum,omitempty" mapstructure:"checksum"`
}

type ArtifactStatus string

const (
	ArtifactAbsent      ArtifactStatus = "absent"
	ArtifactDownloading ArtifactStatus = "downloading"
	ArtifactPresent     ArtifactStatus = "present"
)

// ArtifactState is a point-in-time snapshot of an artifact.
type ArtifactState struct {
	Status    ArtifactStatus `json:"status"`
	Completed int64          `json:"completed"`
	Total     int64          `json:"total"`
	Err       error          `json:"-"`
}

func (s ArtifactState) Fraction() float64 {
	if s.Total <= 0 {
		return 0
	}

	return float64(s.Completed) / float64(s.Total)
}

type InferenceRequest struct {
	Pipeline  PipelineID `json:"pipeline"`
	ImagePath string     `json:"image_path"`
	Token     string     `json:"token,omitempty"`
}

// InferenceResult is what a completion handler receives.
// Caller carries the pipeline name, matching the {status, message, caller} callback shape.
type InferenceResult struct {
	OK       bool       `json:"status"`
	Message  string     `json:"message"`
	Pipeline PipelineID `json:"caller"`
	Token    string     `json:"token"`
}

type ModelStatus struct {
	Pipeline   PipelineID     `json:"pipeline"`
	Name       string         `json:"name"`
	Filename   string         `json:"filename"`
	Status     ArtifactStatus `json:"status"`
	Completed  int64          `json:"completed"`
	Total      int64          `json:"total"`
	Loaded     bool           `json:"loaded"`
	Running    bool           `json:"running"`
	LoadFailed string         `json:"load_error,omitempty"`
}
