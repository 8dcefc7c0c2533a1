package receiver

// State is the ingest session state.
type State int

const (
	Connecting State = iota
	Streaming
	Stalled
	Terminated
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Stalled:
		return "stalled"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}
