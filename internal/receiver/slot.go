package receiver

import (
	"image"
	"sync"
)

// DisplaySlot holds the most recently decoded frame. The ingest loop is the
// only writer; readers poll with TryRead and never block.
type DisplaySlot struct {
	mu    sync.RWMutex
	img   *image.RGBA
	dirty bool
}

func NewDisplaySlot() *DisplaySlot {
	return &DisplaySlot{}
}

// Publish replaces the current frame and marks the slot dirty.
func (s *DisplaySlot) Publish(img *image.RGBA) {
	s.mu.Lock()
	s.img = img
	s.dirty = true
	s.mu.Unlock()
}

// Clear drops the current frame. Readers see a dirty nil frame.
func (s *DisplaySlot) Clear() {
	s.Publish(nil)
}

// TryRead returns the frame if it changed since the last read and clears
// the dirty flag. It reports false when nothing changed or the slot is
// busy; callers try again on their next tick.
func (s *DisplaySlot) TryRead() (*image.RGBA, bool) {
	if !s.mu.TryLock() {
		return nil, false
	}
	defer s.mu.Unlock()
	if !s.dirty {
		return nil, false
	}
	s.dirty = false
	return s.img, true
}

// Latest returns the current frame without touching the dirty flag.
func (s *DisplaySlot) Latest() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.img
}
