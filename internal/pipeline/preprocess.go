package pipeline

import (
	"image"

	"github.com/anthonynsimon/bild/transform"

	"github.com/cozy-creator/vision-ai/internal/inference"
)

type Layout int

const (
	// LayoutNHWC is [1, H, W, C].
	LayoutNHWC Layout = iota
	// LayoutNCHW is [1, C, H, W].
	LayoutNCHW
)

type Normalization int

const (
	// NormalizeNone feeds raw 0-255 bytes as uint8.
	NormalizeNone Normalization = iota
	// NormalizeMeanStd feeds float32 (x/255 - mean) / std per channel,
	// which is the same as (x - mean*255) / (std*255) on 0-255 values.
	NormalizeMeanStd
)

var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Preprocess resizes img to width x height with bilinear interpolation and
// lays it out as a single-batch RGB tensor.
func Preprocess(img image.Image, width, height int, layout Layout, norm Normalization, mean, std [3]float32) inference.Tensor {
	resized := transform.Resize(img, width, height, transform.Linear)

	var shape []int64
	if layout == LayoutNCHW {
		shape = []int64{1, 3, int64(height), int64(width)}
	} else {
		shape = []int64{1, int64(height), int64(width), 3}
	}

	plane := width * height
	index := func(x, y, c int) int {
		if layout == LayoutNCHW {
			return c*plane + y*width + x
		}
		return (y*width+x)*3 + c
	}

	if norm == NormalizeNone {
		data := make([]uint8, plane*3)
		eachPixel(resized, func(x, y int, rgb [3]uint8) {
			for c := 0; c < 3; c++ {
				data[index(x, y, c)] = rgb[c]
			}
		})
		return inference.NewUint8(shape, data)
	}

	var scale, offset [3]float32
	for c := 0; c < 3; c++ {
		scale[c] = 1 / (std[c] * 255)
		offset[c] = mean[c] * 255
	}

	data := make([]float32, plane*3)
	eachPixel(resized, func(x, y int, rgb [3]uint8) {
		for c := 0; c < 3; c++ {
			data[index(x, y, c)] = (float32(rgb[c]) - offset[c]) * scale[c]
		}
	})

	return inference.NewFloat32(shape, data)
}

func eachPixel(img *image.RGBA, fn func(x, y int, rgb [3]uint8)) {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			p := row[x*4 : x*4+3]
			fn(x, y, [3]uint8{p[0], p[1], p[2]})
		}
	}
}
