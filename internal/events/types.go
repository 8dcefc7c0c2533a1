package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeReceiverStateChanged uint32 = iota + 1
	TypeRecordingStarted
	TypeRecordingFinalized
	TypeSubscriberJoined
	TypeSubscriberLeft
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ReceiverStateChanged is published on every ingest state transition.
type ReceiverStateChanged struct {
	Address string
	From    string
	To      string
	Err     error
	At      time.Time
}

func (e ReceiverStateChanged) Type() uint32 { return TypeReceiverStateChanged }

// RecordingStarted is published when a recording session is armed.
type RecordingStarted struct {
	ID  string
	Dir string
	At  time.Time
}

func (e RecordingStarted) Type() uint32 { return TypeRecordingStarted }

// RecordingFinalized reports the outcome of the external encoder.
type RecordingFinalized struct {
	ID     string
	Dir    string
	Video  string
	Frames int
	FPS    float64
	Err    error
}

func (e RecordingFinalized) Type() uint32 { return TypeRecordingFinalized }

// SubscriberJoined is published when a caster subscriber connects.
type SubscriberJoined struct {
	ID        string
	Remote    string
	Transport string
}

func (e SubscriberJoined) Type() uint32 { return TypeSubscriberJoined }

// SubscriberLeft is published when a caster subscriber goes away.
type SubscriberLeft struct {
	ID     string
	Remote string
	Err    error
}

func (e SubscriberLeft) Type() uint32 { return TypeSubscriberLeft }
