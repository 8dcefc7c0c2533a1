package capture

import (
	"sync"
	"time"
)

// PatternSource generates a moving test pattern in BGRA order. It stands in
// for a display when no capture backend is available.
type PatternSource struct {
	width, height int
	interval      time.Duration
	now           func() time.Time

	mu    sync.Mutex
	last  time.Time
	frame int
}

// NewPatternSource creates a width x height pattern that produces at most
// one new frame per interval.
func NewPatternSource(width, height int, interval time.Duration) *PatternSource {
	return &PatternSource{
		width:    width,
		height:   height,
		interval: interval,
		now:      time.Now,
	}
}

func (p *PatternSource) Bounds() (int, int) { return p.width, p.height }

func (p *PatternSource) Close() error { return nil }

func (p *PatternSource) Frame() (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if !p.last.IsZero() && now.Sub(p.last) < p.interval {
		return nil, ErrNotReady
	}
	p.last = now
	p.frame++

	pix := make([]byte, p.width*p.height*4)
	bar := p.frame % p.width
	for y := 0; y < p.height; y++ {
		row := y * p.width * 4
		for x := 0; x < p.width; x++ {
			i := row + x*4
			pix[i] = byte(x * 255 / p.width)
			pix[i+1] = byte(y * 255 / p.height)
			pix[i+2] = byte(p.frame)
			if x == bar {
				pix[i], pix[i+1], pix[i+2] = 255, 255, 255
			}
			pix[i+3] = 255
		}
	}
	return &Frame{
		Width:     p.width,
		Height:    p.height,
		Pix:       pix,
		Order:     OrderBGRA,
		Timestamp: now,
	}, nil
}
