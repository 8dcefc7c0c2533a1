package capture

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrRegionOutOfBounds is returned when a region does not fit the display.
var ErrRegionOutOfBounds = errors.New("capture: region out of bounds")

// Region is a rectangle in display coordinates, min inclusive, max exclusive.
type Region struct {
	MinX, MinY int
	MaxX, MaxY int
}

// ParseRegion parses "x0,y0,x1,y1". An empty string yields nil (full frame).
func ParseRegion(s string) (*Region, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("region %q: want x0,y0,x1,y1", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("region %q: %w", s, err)
		}
		v[i] = n
	}
	return &Region{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}, nil
}

func (r Region) Width() int  { return r.MaxX - r.MinX }
func (r Region) Height() int { return r.MaxY - r.MinY }

func (r Region) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.MinX, r.MinY, r.MaxX, r.MaxY)
}

// Validate checks 0 <= min < max <= dimension on both axes.
func (r Region) Validate(width, height int) error {
	if r.MinX < 0 || r.MinY < 0 || r.MinX >= r.MaxX || r.MinY >= r.MaxY ||
		r.MaxX > width || r.MaxY > height {
		return fmt.Errorf("%w: %s on %dx%d display", ErrRegionOutOfBounds, r, width, height)
	}
	return nil
}

// Crop copies the region out of f. A nil region returns f unchanged.
func Crop(f *Frame, r *Region) (*Frame, error) {
	if r == nil {
		return f, nil
	}
	if err := r.Validate(f.Width, f.Height); err != nil {
		return nil, err
	}
	if len(f.Pix) < f.Width*f.Height*4 {
		return nil, fmt.Errorf("capture: buffer holds %d bytes, want %d", len(f.Pix), f.Width*f.Height*4)
	}

	w, h := r.Width(), r.Height()
	srcStride := f.Width * 4
	rowBytes := w * 4
	pix := make([]byte, rowBytes*h)
	for y := 0; y < h; y++ {
		src := (r.MinY+y)*srcStride + r.MinX*4
		copy(pix[y*rowBytes:(y+1)*rowBytes], f.Pix[src:src+rowBytes])
	}
	return &Frame{
		Width:     w,
		Height:    h,
		Pix:       pix,
		Order:     f.Order,
		Timestamp: f.Timestamp,
	}, nil
}
