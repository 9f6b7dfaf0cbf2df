// Package pipeline turns an image file into a model input, runs it through a
// session and formats the outputs for one of the supported models.
package pipeline

import (
	"context"
	"fmt"
	"image"

	"github.com/cozy-creator/vision-ai/internal/inference"
	"github.com/cozy-creator/vision-ai/internal/types"
	"github.com/cozy-creator/vision-ai/internal/utils/imageutil"
)

// Frame is the decoded input image.
type Frame struct {
	Path  string
	Image image.Image
}

// Output is the payload of a successful run. For detection Message is the
// path of the annotated image and Artifact repeats it.
type Output struct {
	Message  string
	Artifact string
}

// PostFunc formats the outputs named in Config.Outputs, in that order.
type PostFunc func(frame Frame, outputs []inference.Tensor) (Output, error)

type Config struct {
	ID        types.PipelineID
	Width     int
	Height    int
	Layout    Layout
	Normalize Normalization
	Mean      [3]float32
	Std       [3]float32
	// Outputs are the preferred output names. When the session does not
	// expose all of them the first len(Outputs) session outputs are used in
	// order. Empty means the first session output.
	Outputs []string
	Post    PostFunc
}

type Pipeline struct {
	cfg Config
}

func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

func (p *Pipeline) ID() types.PipelineID {
	return p.cfg.ID
}

func (p *Pipeline) Config() Config {
	return p.cfg
}

// Execute runs one image through sess.
func (p *Pipeline) Execute(ctx context.Context, sess inference.Session, imagePath string) (Output, error) {
	if sess == nil {
		return Output{}, ErrNoSession
	}
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	img, err := imageutil.DecodeFile(imagePath)
	if err != nil {
		return Output{}, &DecodeError{Path: imagePath, Err: err}
	}
	frame := Frame{Path: imagePath, Image: img}

	input := Preprocess(img, p.cfg.Width, p.cfg.Height, p.cfg.Layout, p.cfg.Normalize, p.cfg.Mean, p.cfg.Std)

	names, err := p.resolveOutputs(sess)
	if err != nil {
		return Output{}, err
	}

	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	results, err := sess.Run([]inference.Tensor{input}, names)
	if err != nil {
		return Output{}, &InferenceError{Pipeline: p.cfg.ID, Err: err}
	}

	outputs := make([]inference.Tensor, len(names))
	for i, name := range names {
		t, ok := results[name]
		if !ok {
			return Output{}, &OutputError{Pipeline: p.cfg.ID, Reason: fmt.Sprintf("missing output %q", name)}
		}
		outputs[i] = t
	}

	return p.cfg.Post(frame, outputs)
}

func (p *Pipeline) resolveOutputs(sess inference.Session) ([]string, error) {
	available := sess.OutputNames()
	want := p.cfg.Outputs
	if len(want) == 0 {
		want = []string{""}
	} else if containsAll(available, want) {
		return want, nil
	}

	if len(available) < len(want) {
		return nil, &OutputError{
			Pipeline: p.cfg.ID,
			Reason:   fmt.Sprintf("model exposes %d outputs, need %d", len(available), len(want)),
		}
	}

	return available[:len(want)], nil
}

func containsAll(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, name := range have {
		set[name] = struct{}{}
	}
	for _, name := range want {
		if _, ok := set[name]; !ok {
			return false
		}
	}

	return true
}
