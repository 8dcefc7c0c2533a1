// Package codec compresses raw frames into still-image payloads and back.
package codec

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"strings"

	"github.com/junsooki/screencast/internal/capture"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 70

// Decode limits. A payload header is checked against them before any
// pixel buffer is allocated.
const (
	MaxDimension = 16384
	MaxPixels    = 8192 * 8192
)

// ErrImageTooLarge is returned by Decode when a payload declares
// dimensions beyond MaxDimension or MaxPixels.
var ErrImageTooLarge = errors.New("codec: image dimensions too large")

// Codec encodes frames into bytes and decodes them back into RGBA images.
type Codec interface {
	Encode(f *capture.Frame) ([]byte, error)
	Decode(data []byte) (*image.RGBA, error)
	// Name is the configuration name ("jpeg", "png").
	Name() string
	// Ext is the file extension used when persisting payloads.
	Ext() string
}

// New returns the codec registered under name. Quality only applies to jpeg.
func New(name string, quality int) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "jpeg", "jpg":
		return NewJPEG(quality), nil
	case "png":
		return NewPNG(), nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}

func checkConfig(cfg image.Config, err error) error {
	if err != nil {
		return err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("codec: invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Width > MaxDimension || cfg.Height > MaxDimension || cfg.Width*cfg.Height > MaxPixels {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	return nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	return rgba
}
