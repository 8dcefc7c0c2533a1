// Package capture yields raw display frames and crops them to a region.
package capture

import (
	"errors"
	"image"
	"time"
)

var (
	// ErrNotReady means the device has no new frame yet. It is not a failure.
	ErrNotReady = errors.New("capture: frame not ready")
	// ErrNotImplemented is returned by Open on platforms without a backend.
	ErrNotImplemented = errors.New("capture: screen capture backend is not implemented on this platform")
	// ErrPermissionDenied is returned when the OS refuses screen recording.
	ErrPermissionDenied = errors.New("capture: screen recording permission not granted")
)

// PixelOrder is the channel ordering of a raw buffer. Every order uses
// 4 bytes per pixel.
type PixelOrder int

const (
	OrderRGBA PixelOrder = iota
	OrderBGRA
)

func (o PixelOrder) String() string {
	if o == OrderBGRA {
		return "BGRA"
	}
	return "RGBA"
}

// Frame represents a captured screen frame. Rows are tightly packed
// (stride = Width*4). A Frame is never mutated after creation.
type Frame struct {
	Width     int
	Height    int
	Pix       []byte
	Order     PixelOrder
	Timestamp time.Time
}

// Blank returns an all-zero frame with the same geometry and order as f.
func (f *Frame) Blank() *Frame {
	return &Frame{
		Width:     f.Width,
		Height:    f.Height,
		Pix:       make([]byte, len(f.Pix)),
		Order:     f.Order,
		Timestamp: time.Now(),
	}
}

// RGBA returns the frame as an *image.RGBA. RGBA frames share Pix; BGRA
// frames are swizzled into a new buffer.
func (f *Frame) RGBA() *image.RGBA {
	pix := f.Pix
	if f.Order == OrderBGRA {
		pix = make([]byte, len(f.Pix))
		for i := 0; i+3 < len(f.Pix); i += 4 {
			pix[i] = f.Pix[i+2]
			pix[i+1] = f.Pix[i+1]
			pix[i+2] = f.Pix[i]
			pix[i+3] = f.Pix[i+3]
		}
	}
	return &image.RGBA{
		Pix:    pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Source is a capturable surface polled by the capture loop. Frame must
// not block: when nothing new is available it returns ErrNotReady.
type Source interface {
	Frame() (*Frame, error)
	Bounds() (width, height int)
	Close() error
}
