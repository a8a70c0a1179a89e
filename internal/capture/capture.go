package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/kbinani/screenshot"
	"golang.org/x/image/draw"
)

const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

var ErrNoMonitor = errors.New("monitor index out of range")

type Options struct {
	Format   string // png or jpeg
	Quality  int    // 1-100, jpeg only
	MaxWidth int    // 0 keeps native width
}

// Backend enumerates monitors and produces encoded grabs. Monitor indices
// are 1-based.
type Backend interface {
	ListMonitors() (int, error)
	Grab(index int) ([]byte, error)
}

// ScreenBackend grabs the local displays with kbinani/screenshot.
type ScreenBackend struct {
	opts Options
}

func NewScreenBackend(opts Options) *ScreenBackend {
	return &ScreenBackend{opts: opts}
}

func (b *ScreenBackend) ListMonitors() (int, error) {
	n := screenshot.NumActiveDisplays()
	if n < 1 {
		return 0, errors.New("no active displays")
	}
	return n, nil
}

func (b *ScreenBackend) Grab(index int) ([]byte, error) {
	if index < 1 || index > screenshot.NumActiveDisplays() {
		return nil, fmt.Errorf("%w: %d", ErrNoMonitor, index)
	}
	bounds := screenshot.GetDisplayBounds(index - 1)
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("capture display %d: %w", index, err)
	}
	return Encode(img, b.opts)
}

// Encode scales img down to MaxWidth if needed and encodes it.
func Encode(img image.Image, opts Options) ([]byte, error) {
	img = scale(img, opts.MaxWidth)

	buf := new(bytes.Buffer)
	switch opts.Format {
	case FormatJPEG:
		q := opts.Quality
		if q <= 0 || q > 100 {
			q = 80
		}
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, err
		}
	case FormatPNG, "":
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(buf, img); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown image format %q", opts.Format)
	}
	return buf.Bytes(), nil
}

func scale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
