//go:build !darwin

package capture

import "time"

// Open creates a screen source for the given display index.
func Open(displayIndex int, interval time.Duration) (Source, error) {
	return nil, ErrNotImplemented
}
