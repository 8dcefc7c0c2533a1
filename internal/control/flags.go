// Package control holds the session control flags and the collaborators
// that flip them: a websocket endpoint and a watched TOML file.
package control

import "sync/atomic"

// Flags are the per-session control signals. The core only reads them;
// collaborators (window, hotkeys, remote control, control file) write them.
type Flags struct {
	Paused    atomic.Bool
	Blanked   atomic.Bool
	Terminate atomic.Bool
	Stop      atomic.Bool
}

// NewFlags returns a zeroed flag set.
func NewFlags() *Flags {
	return &Flags{}
}

// Done reports whether the session should end.
func (f *Flags) Done() bool {
	return f.Stop.Load() || f.Terminate.Load()
}

// Reset clears every flag. Called when a session ends.
func (f *Flags) Reset() {
	f.Paused.Store(false)
	f.Blanked.Store(false)
	f.Terminate.Store(false)
	f.Stop.Store(false)
}

// Snapshot is a point-in-time copy of Flags.
type Snapshot struct {
	Paused    bool `json:"paused" toml:"paused"`
	Blanked   bool `json:"blanked" toml:"blanked"`
	Terminate bool `json:"terminate" toml:"terminate"`
	Stop      bool `json:"stop" toml:"stop"`
}

// Snapshot copies the current flag values.
func (f *Flags) Snapshot() Snapshot {
	return Snapshot{
		Paused:    f.Paused.Load(),
		Blanked:   f.Blanked.Load(),
		Terminate: f.Terminate.Load(),
		Stop:      f.Stop.Load(),
	}
}
