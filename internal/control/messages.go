package control

// Message types for the remote control protocol.
const (
	TypePause     = "pause"
	TypeResume    = "resume"
	TypeBlank     = "blank"
	TypeUnblank   = "unblank"
	TypeTerminate = "terminate"
	TypeState     = "state"
	TypePing      = "ping"
	TypePong      = "pong"
	TypeError     = "error"
)

// Message is the envelope for all control messages.
type Message struct {
	Type      string    `json:"type"`
	State     *Snapshot `json:"state,omitempty"`
	Msg       string    `json:"message,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
}

// Apply mutates f according to msg.Type. It reports false for types that
// carry no command.
func Apply(f *Flags, msgType string) bool {
	switch msgType {
	case TypePause:
		f.Paused.Store(true)
	case TypeResume:
		f.Paused.Store(false)
	case TypeBlank:
		f.Blanked.Store(true)
	case TypeUnblank:
		f.Blanked.Store(false)
	case TypeTerminate:
		f.Terminate.Store(true)
	default:
		return false
	}
	return true
}
