package imageout

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/nfnt/resize"
)

// Format is an output image encoding
type Format string

const (
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// Options configures how a captured image is written
type Options struct {
	MaxWidth uint // Downscale wider images to this width; 0 keeps the original size
}

// Info describes a written image file
type Info struct {
	Path   string
	Format Format
	Width  int
	Height int
	Size   int64
}

// FormatFor picks the encoding from the file extension, defaulting to PNG
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		return FormatWebP
	}
	return FormatPNG
}

// Decode parses PNG data as produced by the browser
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return img, nil
}

// Scale shrinks img to maxWidth keeping its aspect ratio. Images already
// narrow enough are returned unchanged.
func Scale(img image.Image, maxWidth uint) image.Image {
	if maxWidth == 0 || img.Bounds().Dx() <= int(maxWidth) {
		return img
	}
	return resize.Resize(maxWidth, 0, img, resize.Lanczos3)
}

// Encode writes img to w in the given format
func Encode(w io.Writer, img image.Image, format Format) error {
	switch format {
	case FormatWebP:
		return nativewebp.Encode(w, img, &nativewebp.Options{})
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		return enc.Encode(w, img)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// Write encodes img to path. The file appears only once it is complete: the
// image is written to a temporary file in the same directory and renamed.
func Write(path string, img image.Image, opts Options) (Info, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Info{}, err
	}
	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("create output directory: %w", err)
	}

	img = Scale(img, opts.MaxWidth)
	format := FormatFor(absPath)

	f, err := os.CreateTemp(dir, "."+filepath.Base(absPath)+".*.tmp")
	if err != nil {
		return Info{}, fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if err := Encode(f, img, format); err != nil {
		return Info{}, fmt.Errorf("encode %s: %w", format, err)
	}
	if err := f.Sync(); err != nil {
		return Info{}, err
	}
	info, err := f.Stat()
	if err != nil {
		return Info{}, err
	}
	if err := f.Chmod(0o644); err != nil {
		return Info{}, err
	}
	if err := f.Close(); err != nil {
		return Info{}, err
	}
	if err := os.Rename(tmp, absPath); err != nil {
		return Info{}, fmt.Errorf("move into place: %w", err)
	}
	committed = true

	b := img.Bounds()
	return Info{
		Path:   absPath,
		Format: format,
		Width:  b.Dx(),
		Height: b.Dy(),
		Size:   info.Size(),
	}, nil
}
