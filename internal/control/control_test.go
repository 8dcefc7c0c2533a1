package control

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestApply(t *testing.T) {
	tests := []struct {
		msgType string
		want    Snapshot
		ok      bool
	}{
		{TypePause, Snapshot{Paused: true}, true},
		{TypeBlank, Snapshot{Blanked: true}, true},
		{TypeTerminate, Snapshot{Terminate: true}, true},
		{TypeResume, Snapshot{}, true},
		{TypeUnblank, Snapshot{}, true},
		{"reboot", Snapshot{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.msgType, func(t *testing.T) {
			f := NewFlags()
			if ok := Apply(f, tt.msgType); ok != tt.ok {
				t.Errorf("Apply(%q) = %v, want %v", tt.msgType, ok, tt.ok)
			}
			if got := f.Snapshot(); got != tt.want {
				t.Errorf("Snapshot() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFlagsDoneAndReset(t *testing.T) {
	f := NewFlags()
	if f.Done() {
		t.Fatal("fresh flags report done")
	}
	f.Stop.Store(true)
	if !f.Done() {
		t.Error("stop did not end the session")
	}
	f.Stop.Store(false)
	f.Terminate.Store(true)
	if !f.Done() {
		t.Error("terminate did not end the session")
	}
	f.Paused.Store(true)
	f.Blanked.Store(true)
	f.Reset()
	if got := f.Snapshot(); got != (Snapshot{}) {
		t.Errorf("after Reset = %+v, want zero", got)
	}
}

func TestServerClientRoundTrip(t *testing.T) {
	flags := NewFlags()
	srv := httptest.NewServer(NewServer(flags, zerolog.Nop()))
	defer srv.Close()

	c := NewClient("ws" + strings.TrimPrefix(srv.URL, "http"))
	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	st, err := c.Send(TypePause)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Paused || !flags.Paused.Load() {
		t.Errorf("pause not applied: reply %+v", st)
	}

	st, err = c.Send(TypeBlank)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Paused || !st.Blanked {
		t.Errorf("state = %+v, want paused and blanked", st)
	}

	if _, err := c.Send("bogus"); err == nil {
		t.Error("unknown command accepted")
	}

	st, err = c.Send(TypeState)
	if err != nil {
		t.Fatal(err)
	}
	if st.Terminate {
		t.Error("state query changed terminate")
	}
}

func TestFileWatcherApplies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "control.toml")
	if err := os.WriteFile(path, []byte("paused = true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	flags := NewFlags()
	w := NewFileWatcher(path, flags, zerolog.Nop())
	w.debounce = 10 * time.Millisecond
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if !flags.Paused.Load() {
		t.Fatal("initial file content not applied")
	}

	if err := os.WriteFile(path, []byte("paused = false\nblanked = true\nterminate = true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if flags.Blanked.Load() && !flags.Paused.Load() && flags.Terminate.Load() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("file change not applied: %+v", flags.Snapshot())
}

func TestApplyFileLatchesTerminate(t *testing.T) {
	f := NewFlags()
	ApplyFile(f, FileState{Terminate: true})
	ApplyFile(f, FileState{})
	if !f.Terminate.Load() {
		t.Error("terminate was cleared by a later file state")
	}
}
