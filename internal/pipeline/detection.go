package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/cozy-creator/vision-ai/internal/inference"
	"github.com/cozy-creator/vision-ai/internal/types"
	"github.com/cozy-creator/vision-ai/internal/utils/imageutil"
)

const (
	DetectionSize    = 300
	OutputPrefix     = "op-"
	boxThickness     = 2
	defaultThreshold = 0.5
)

// DetectionOutputs are the SSD MobileNet v1 output names, in the order the
// detection postprocessor reads them.
var DetectionOutputs = []string{"detection_boxes:0", "detection_classes:0", "detection_scores:0", "num_detections:0"}

var boxColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

type DetectionOptions struct {
	// Detections scoring at or below Threshold are dropped.
	Threshold  float32
	OutputsDir string
	// Labels maps class ids to names, COCOLabels when nil.
	Labels map[int]string
}

// Detection is one kept box in original image pixels.
type Detection struct {
	Box     image.Rectangle
	ClassID int
	Label   string
	Score   float32
}

func NewDetection(opts DetectionOptions) *Pipeline {
	if opts.Threshold <= 0 {
		opts.Threshold = defaultThreshold
	}
	if opts.Labels == nil {
		opts.Labels = COCOLabels
	}

	return New(Config{
		ID:        types.PipelineDetection,
		Width:     DetectionSize,
		Height:    DetectionSize,
		Layout:    LayoutNHWC,
		Normalize: NormalizeNone,
		Outputs:   DetectionOutputs,
		Post: func(frame Frame, outputs []inference.Tensor) (Output, error) {
			b := frame.Image.Bounds()
			dets, err := DecodeDetections(outputs, b.Dx(), b.Dy(), opts.Threshold, opts.Labels)
			if err != nil {
				return Output{}, err
			}

			annotated := Annotate(frame.Image, dets)
			path := filepath.Join(opts.OutputsDir, OutputPrefix+imageutil.OutputName(frame.Path))
			if err := imageutil.EncodeFile(path, annotated); err != nil {
				return Output{}, fmt.Errorf("failed to write annotated image: %w", err)
			}

			return Output{Message: path, Artifact: path}, nil
		},
	})
}

// DecodeDetections reads boxes, classes, scores and count, keeps detections
// scoring above threshold and scales their normalised (y1, x1, y2, x2) boxes
// to width x height.
func DecodeDetections(outputs []inference.Tensor, width, height int, threshold float32, labels map[int]string) ([]Detection, error) {
	if len(outputs) != 4 {
		return nil, &OutputError{Pipeline: types.PipelineDetection, Reason: fmt.Sprintf("expected 4 outputs, got %d", len(outputs))}
	}

	boxes := outputs[0].Floats()
	classes := outputs[1].Floats()
	scores := outputs[2].Floats()
	num := outputs[3].Floats()

	if len(num) != 1 {
		return nil, &OutputError{Pipeline: types.PipelineDetection, Reason: fmt.Sprintf("num_detections has %d values", len(num))}
	}

	n := min(int(num[0]), len(scores))
	if n < 0 || len(boxes) < n*4 || len(classes) < n {
		return nil, &OutputError{
			Pipeline: types.PipelineDetection,
			Reason:   fmt.Sprintf("%d detections but %d boxes and %d classes", n, len(boxes)/4, len(classes)),
		}
	}

	var dets []Detection
	for i := 0; i < n; i++ {
		if scores[i] <= threshold {
			continue
		}

		box := boxes[i*4 : i*4+4]
		classID := int(classes[i])
		label, ok := labels[classID]
		if !ok {
			label = unknownLabel
		}

		dets = append(dets, Detection{
			Box: image.Rect(
				int(float64(box[1])*float64(width)),
				int(float64(box[0])*float64(height)),
				int(float64(box[3])*float64(width)),
				int(float64(box[2])*float64(height)),
			),
			ClassID: classID,
			Label:   label,
			Score:   scores[i],
		})
	}

	return dets, nil
}

// Annotate draws each detection onto a copy of img.
func Annotate(img image.Image, dets []Detection) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)

	src := image.NewUniform(boxColor)
	for _, d := range dets {
		r := d.Box.Add(b.Min)
		edges := []image.Rectangle{
			image.Rect(r.Min.X, r.Min.Y, r.Max.X+1, r.Min.Y+boxThickness),
			image.Rect(r.Min.X, r.Max.Y-boxThickness+1, r.Max.X+1, r.Max.Y+1),
			image.Rect(r.Min.X, r.Min.Y, r.Min.X+boxThickness, r.Max.Y+1),
			image.Rect(r.Max.X-boxThickness+1, r.Min.Y, r.Max.X+1, r.Max.Y+1),
		}
		for _, e := range edges {
			draw.Draw(dst, e.Intersect(b), src, image.Point{}, draw.Src)
		}

		drawer := &font.Drawer{
			Dst:  dst,
			Src:  src,
			Face: basicfont.Face7x13,
			Dot:  fixed.P(r.Min.X, r.Min.Y-2),
		}
		drawer.DrawString(fmt.Sprintf("%s: %.2f", d.Label, d.Score))
	}

	return dst
}
