package imageutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

// DecodeFile reads and decodes the image at path.
// The format is sniffed from content, the extension is ignored.
func DecodeFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Decode(data)
}

func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrUnsupportedFormat)
	}

	r := bytes.NewReader(data)
	mime := mimetype.Detect(data)
	switch {
	case mime.Is("image/jpeg"):
		return jpeg.Decode(r)
	case mime.Is("image/png"):
		return png.Decode(r)
	case mime.Is("image/bmp"):
		return bmp.Decode(r)
	case mime.Is("image/webp"):
		return webp.Decode(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime.String())
	}
}

// Encode writes img in the format implied by the file extension of name.
// Unknown extensions are written as png.
func Encode(w io.Writer, img image.Image, name string) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case ".bmp":
		return bmp.Encode(w, img)
	default:
		return png.Encode(w, img)
	}
}

// EncodeFile writes img to path, see Encode.
func EncodeFile(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := Encode(f, img, path); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}

	return f.Close()
}

// IsImageFile reports whether name has one of the extensions Encode writes,
// which are the only ones found in the outputs directory.
func IsImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".bmp":
		return true
	}

	return false
}

// IsInputFile reports whether name has an extension Decode accepts.
func IsInputFile(name string) bool {
	return IsImageFile(name) || strings.ToLower(filepath.Ext(name)) == ".webp"
}

// OutputName returns the base name of path, with the extension replaced by
// .png when Encode cannot write that format.
func OutputName(path string) string {
	name := filepath.Base(path)
	if IsImageFile(name) {
		return name
	}

	return strings.TrimSuffix(name, filepath.Ext(name)) + ".png"
}
