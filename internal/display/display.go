// Package display shows the received stream in a window and lets the user
// toggle recording.
package display

import (
	"fmt"
	"math"
	"strings"
)

// Status is what the viewer overlays on the stream.
type Status struct {
	Connected bool
	Stalled   bool
	Recording bool
	Frames    int
	Note      string
}

// String renders the status line.
func (s Status) String() string {
	var b strings.Builder
	switch {
	case !s.Connected:
		b.WriteString("connecting")
	case s.Stalled:
		b.WriteString("stalled")
	default:
		b.WriteString("live")
	}
	if s.Recording {
		fmt.Fprintf(&b, "  REC %d", s.Frames)
	}
	b.WriteString("  [R] record  [Esc] quit")
	if s.Note != "" {
		b.WriteString("\n")
		b.WriteString(s.Note)
	}
	return b.String()
}

// aspectFitTransform returns scale and offsets to fit frame into view with letterboxing.
func aspectFitTransform(viewW, viewH, frameW, frameH float64) (scale, offsetX, offsetY float64) {
	scale = math.Min(viewW/frameW, viewH/frameH)
	offsetX = (viewW - frameW*scale) / 2
	offsetY = (viewH - frameH*scale) / 2
	return
}
