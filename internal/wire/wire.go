// Package wire implements the length-prefixed frame protocol:
// [4-byte big-endian length][length bytes of payload]. A zero length is
// the end-of-stream sentinel.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	// HeaderSize is the size of the length prefix.
	HeaderSize = 4
	// MaxFrameSize is the largest payload a receiver accepts.
	MaxFrameSize = 10_000_000
)

var (
	// ErrEndOfStream is returned when the sentinel frame is read.
	ErrEndOfStream = errors.New("wire: end of stream")
	// ErrFrameTooLarge is returned for declared lengths above MaxFrameSize.
	ErrFrameTooLarge = errors.New("wire: frame too large")
)

// WriteFrame writes header and payload as one vectored write. An empty
// payload writes the sentinel. A failed or short write leaves the stream
// unusable; callers must drop the connection.
func WriteFrame(w io.Writer, payload []byte) (int64, error) {
	if len(payload) > MaxFrameSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	bufs := net.Buffers{hdr[:]}
	if len(payload) > 0 {
		bufs = append(bufs, payload)
	}
	return bufs.WriteTo(w)
}

// WriteSentinel writes the zero-length end-of-stream frame.
func WriteSentinel(w io.Writer) error {
	_, err := WriteFrame(w, nil)
	return err
}

// CheckLength validates a declared payload length.
func CheckLength(n uint32) error {
	switch {
	case n == 0:
		return ErrEndOfStream
	case n > MaxFrameSize:
		return fmt.Errorf("%w: declared %d bytes", ErrFrameTooLarge, n)
	}
	return nil
}

// ReadFrame reads one frame from r. It returns ErrEndOfStream on the
// sentinel and never allocates more than MaxFrameSize.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if err := CheckLength(n); err != nil {
		return nil, err
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// DeadlineReader is a reader with read deadlines, typically a net.Conn.
type DeadlineReader interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// Reader reads frames from a connection in deadline-bounded slices. A
// header read that times out keeps the bytes already received, so the
// caller may retry without losing stream alignment.
type Reader struct {
	conn DeadlineReader
	hdr  [HeaderSize]byte
	got  int
}

// NewReader wraps conn.
func NewReader(conn DeadlineReader) *Reader {
	return &Reader{conn: conn}
}

// ReadLength reads the length prefix, waiting at most until deadline.
// On timeout it returns the underlying timeout error and retains partial
// progress. The returned length has passed CheckLength.
func (r *Reader) ReadLength(deadline time.Time) (uint32, error) {
	if err := r.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	for r.got < HeaderSize {
		n, err := r.conn.Read(r.hdr[r.got:])
		r.got += n
		if err != nil {
			if r.got == HeaderSize {
				break
			}
			if r.got > 0 && errors.Is(err, io.EOF) {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
	}
	r.got = 0
	n := binary.BigEndian.Uint32(r.hdr[:])
	return n, CheckLength(n)
}

// ReadPayload reads exactly n bytes, waiting at most until deadline.
func (r *Reader) ReadPayload(n uint32, deadline time.Time) ([]byte, error) {
	if err := CheckLength(n); err != nil {
		return nil, err
	}
	if err := r.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r.conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// IsTimeout reports whether err is a read deadline expiry.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
