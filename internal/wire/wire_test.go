package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"runtime"
	"testing"
	"time"
)

func TestRoundTrip(t *testing.T) {
	sizes := []int{1, 3, 4, 255, 4096, 65537, MaxFrameSize}
	for _, size := range sizes {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i*7 + size)
		}
		var buf bytes.Buffer
		n, err := WriteFrame(&buf, payload)
		if err != nil {
			t.Fatalf("WriteFrame(%d): %v", size, err)
		}
		if n != int64(size+HeaderSize) {
			t.Errorf("WriteFrame(%d) wrote %d bytes, want %d", size, n, size+HeaderSize)
		}
		if got := binary.BigEndian.Uint32(buf.Bytes()[:4]); got != uint32(size) {
			t.Errorf("header = %d, want %d", got, size)
		}
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame(%d): %v", size, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("payload of %d bytes did not round-trip", size)
		}
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	if _, err := WriteFrame(&buf, make([]byte, MaxFrameSize+1)); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("WriteFrame = %v, want ErrFrameTooLarge", err)
	}
	if buf.Len() != 0 {
		t.Error("oversized frame wrote bytes")
	}
}

func TestSentinel(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSentinel(&buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0, 0, 0, 0}) {
		t.Errorf("sentinel = %v", buf.Bytes())
	}
	if _, err := ReadFrame(&buf); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("ReadFrame(sentinel) = %v, want ErrEndOfStream", err)
	}
}

func TestOversizedLengthRejectedWithoutAllocation(t *testing.T) {
	for _, declared := range []uint32{MaxFrameSize + 1, 1 << 30, 0xFFFFFFFF} {
		hdr := make([]byte, 4)
		binary.BigEndian.PutUint32(hdr, declared)

		var before, after runtime.MemStats
		runtime.ReadMemStats(&before)
		_, err := ReadFrame(bytes.NewReader(hdr))
		runtime.ReadMemStats(&after)

		if !errors.Is(err, ErrFrameTooLarge) {
			t.Errorf("ReadFrame(len=%d) = %v, want ErrFrameTooLarge", declared, err)
		}
		if grew := after.TotalAlloc - before.TotalAlloc; grew > 1<<20 {
			t.Errorf("ReadFrame(len=%d) allocated %d bytes", declared, grew)
		}
	}
}

func TestCheckLength(t *testing.T) {
	tests := []struct {
		n    uint32
		want error
	}{
		{0, ErrEndOfStream},
		{1, nil},
		{MaxFrameSize, nil},
		{MaxFrameSize + 1, ErrFrameTooLarge},
	}
	for _, tt := range tests {
		err := CheckLength(tt.n)
		if tt.want == nil && err != nil {
			t.Errorf("CheckLength(%d) = %v, want nil", tt.n, err)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("CheckLength(%d) = %v, want %v", tt.n, err, tt.want)
		}
	}
}

func TestReaderKeepsPartialHeaderAcrossTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	r := NewReader(client)
	payload := []byte("hello")
	frame := append([]byte{0, 0, 0, byte(len(payload))}, payload...)

	go func() {
		server.Write(frame[:2])
	}()
	_, err := r.ReadLength(time.Now().Add(50 * time.Millisecond))
	if !IsTimeout(err) {
		t.Fatalf("first ReadLength = %v, want timeout", err)
	}

	go func() {
		server.Write(frame[2:])
	}()
	n, err := r.ReadLength(time.Now().Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if n != uint32(len(payload)) {
		t.Fatalf("length = %d, want %d", n, len(payload))
	}
	got, err := r.ReadPayload(n, time.Now().Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %q, want %q", got, payload)
	}
}

func TestReaderEOF(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	r := NewReader(client)

	go func() {
		server.Write([]byte{0})
		server.Close()
	}()
	_, err := r.ReadLength(time.Now().Add(time.Second))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadLength after short header = %v, want io.ErrUnexpectedEOF", err)
	}
}
