package recording

import (
	"context"
	"errors"
	"image"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/junsooki/screencast/internal/codec"
)

type fakeFinalizer struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (f *fakeFinalizer) Finalize(ctx context.Context, job Job) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	if f.err != nil {
		return "", f.err
	}
	return filepath.Join(job.Dir, VideoFile), nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRecorder(t *testing.T, fin Finalizer) (*Recorder, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	r := New(Options{
		Dir:       t.TempDir(),
		Codec:     codec.NewPNG(),
		Finalizer: fin,
		Logger:    zerolog.Nop(),
	})
	r.now = c.now
	return r, c
}

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	return img
}

func TestStopComputesRateExcludingPauses(t *testing.T) {
	fin := &fakeFinalizer{}
	r, c := newTestRecorder(t, fin)

	dir, err := r.Start()
	if err != nil {
		t.Fatal(err)
	}
	start := c.t
	for i := 0; i < 10; i++ {
		c.advance(200 * time.Millisecond)
		if err := r.SaveFrame(solid(32, 24)); err != nil {
			t.Fatal(err)
		}
	}
	r.BeginPause(start.Add(2 * time.Second))
	c.t = start.Add(5 * time.Second)
	r.EndPause()
	if got := r.PausedFor(); got != 3*time.Second {
		t.Fatalf("PausedFor() = %v, want 3s", got)
	}
	c.t = start.Add(10 * time.Second)

	sum, err := r.Stop()
	if err != nil {
		t.Fatal(err)
	}
	want := 10.0 / 7.0
	if math.Abs(sum.FPS-want) > 1e-9 {
		t.Errorf("FPS = %v, want %v", sum.FPS, want)
	}
	if err := <-sum.Done; err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if r.IsRecording() {
		t.Error("recorder still armed after Stop")
	}

	meta, err := LoadMetadata(dir)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Frames != 10 || meta.Width != 32 || meta.Height != 24 {
		t.Errorf("metadata = %+v", meta)
	}
	if !meta.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", meta.StartedAt, start)
	}

	if len(fin.jobs) != 1 {
		t.Fatalf("finalizer ran %d times", len(fin.jobs))
	}
	job := fin.jobs[0]
	if job.Pattern != "frame_%06d.png" || job.Frames != 10 {
		t.Errorf("job = %+v", job)
	}
	if _, err := os.Stat(filepath.Join(dir, "frame_000010.png")); err != nil {
		t.Errorf("last frame missing: %v", err)
	}
}

func TestOpenPauseClosedByStop(t *testing.T) {
	r, c := newTestRecorder(t, &fakeFinalizer{})
	if _, err := r.Start(); err != nil {
		t.Fatal(err)
	}
	start := c.t
	c.advance(time.Second)
	if err := r.SaveFrame(solid(16, 16)); err != nil {
		t.Fatal(err)
	}
	r.BeginPause(c.t)
	r.BeginPause(c.t.Add(time.Hour))
	c.t = start.Add(4 * time.Second)

	sum, err := r.Stop()
	if err != nil {
		t.Fatal(err)
	}
	<-sum.Done
	if sum.PausedSeconds != 3 {
		t.Errorf("PausedSeconds = %v, want 3", sum.PausedSeconds)
	}
	if sum.FPS != 1 {
		t.Errorf("FPS = %v, want 1", sum.FPS)
	}
}

func TestDimensionMismatchKeepsCounter(t *testing.T) {
	r, _ := newTestRecorder(t, &fakeFinalizer{})
	if _, err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if err := r.SaveFrame(solid(32, 32)); err != nil {
		t.Fatal(err)
	}
	err := r.SaveFrame(solid(64, 32))
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("SaveFrame = %v, want ErrDimensionMismatch", err)
	}
	if n := r.Frames(); n != 1 {
		t.Errorf("Frames() = %d, want 1", n)
	}
}

func TestSaveFrameRejects(t *testing.T) {
	r, _ := newTestRecorder(t, &fakeFinalizer{})

	if err := r.SaveFrame(solid(32, 32)); err != nil {
		t.Errorf("SaveFrame while off = %v, want nil", err)
	}
	if r.Frames() != 0 {
		t.Error("frame counted while off")
	}

	if _, err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if err := r.SaveFrame(solid(8, 64)); !errors.Is(err, ErrFrameTooSmall) {
		t.Errorf("SaveFrame(8x64) = %v, want ErrFrameTooSmall", err)
	}
	if r.Frames() != 0 {
		t.Error("small frame was counted")
	}
}

func TestSaveFrameSubImage(t *testing.T) {
	r, _ := newTestRecorder(t, &fakeFinalizer{})
	dir, err := r.Start()
	if err != nil {
		t.Fatal(err)
	}
	sub := solid(40, 40).SubImage(image.Rect(4, 4, 24, 28)).(*image.RGBA)
	if err := r.SaveFrame(sub); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "frame_000001.png"))
	if err != nil {
		t.Fatal(err)
	}
	img, err := codec.NewPNG().Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if img.Rect.Dx() != 20 || img.Rect.Dy() != 24 {
		t.Errorf("saved size = %v, want 20x24", img.Rect.Size())
	}
}

func TestStopWithoutFrames(t *testing.T) {
	fin := &fakeFinalizer{}
	r, _ := newTestRecorder(t, fin)

	if sum, err := r.Stop(); sum != nil || err != nil {
		t.Errorf("Stop while off = %v, %v", sum, err)
	}
	if _, err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Stop(); !errors.Is(err, ErrNoFrames) {
		t.Errorf("Stop = %v, want ErrNoFrames", err)
	}
	if r.IsRecording() {
		t.Error("recorder still armed")
	}
	if len(fin.jobs) != 0 {
		t.Error("finalizer ran for an empty recording")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	r, _ := newTestRecorder(t, &fakeFinalizer{})
	a, err := r.Start()
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Start()
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("second Start created %s, want %s", b, a)
	}
}

func TestFinalizeFailureLeavesRecorderReset(t *testing.T) {
	fin := &fakeFinalizer{err: errors.New("encoder exploded")}
	r, _ := newTestRecorder(t, fin)
	if _, err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if err := r.SaveFrame(solid(16, 16)); err != nil {
		t.Fatal(err)
	}
	sum, err := r.Stop()
	if err != nil {
		t.Fatal(err)
	}
	r.Wait()
	if err := <-sum.Done; err == nil {
		t.Error("Done reported success")
	}
	if r.IsRecording() || r.Frames() != 0 {
		t.Error("failed finalize resurrected recording state")
	}
}

func TestFrameRate(t *testing.T) {
	tests := []struct {
		name    string
		frames  int
		elapsed time.Duration
		paused  time.Duration
		want    float64
	}{
		{"plain", 50, 2 * time.Second, 0, 25},
		{"paused", 30, 5 * time.Second, 2 * time.Second, 10},
		{"all paused", 3, time.Second, time.Second, FallbackFPS},
		{"negative", 3, time.Second, 2 * time.Second, FallbackFPS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := frameRate(tt.frames, tt.elapsed, tt.paused); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("frameRate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFFmpegArgs(t *testing.T) {
	f := &FFmpegFinalizer{}
	args := f.Args(Job{Dir: "/tmp/rec", Pattern: "frame_%06d.jpg", FPS: 12.5})
	want := []string{
		"-y", "-framerate", "12.500", "-i", filepath.Join("/tmp/rec", "frame_%06d.jpg"),
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2", "-pix_fmt", "yuv420p", "-c:v", "libx264",
		filepath.Join("/tmp/rec", VideoFile),
	}
	if len(args) != len(want) {
		t.Fatalf("Args = %v", args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestFFmpegFinalizeRemovesFrames(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as the encoder")
	}
	bin := filepath.Join(t.TempDir(), "fake-ffmpeg")
	script := "#!/bin/sh\nfor a; do out=$a; done\n: > \"$out\"\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	for _, name := range []string{"frame_000001.jpg", "frame_000002.jpg", MetadataFile} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	f := &FFmpegFinalizer{Binary: bin, Logger: zerolog.Nop()}
	video, err := f.Finalize(context.Background(), Job{
		Dir: dir, Pattern: "frame_%06d.jpg", Glob: "frame_*.jpg", FPS: 25, Frames: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(video); err != nil {
		t.Errorf("video not created: %v", err)
	}
	left, _ := filepath.Glob(filepath.Join(dir, "frame_*"))
	if len(left) != 0 {
		t.Errorf("frames left behind: %v", left)
	}
	if _, err := os.Stat(filepath.Join(dir, MetadataFile)); err != nil {
		t.Error("metadata was removed")
	}
}

func TestFFmpegFinalizeFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as the encoder")
	}
	bin := filepath.Join(t.TempDir(), "fake-ffmpeg")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\necho boom >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	frame := filepath.Join(dir, "frame_000001.jpg")
	if err := os.WriteFile(frame, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := &FFmpegFinalizer{Binary: bin, Logger: zerolog.Nop()}
	if _, err := f.Finalize(context.Background(), Job{Dir: dir, Pattern: "frame_%06d.jpg", Glob: "frame_*.jpg", FPS: 25}); err == nil {
		t.Fatal("Finalize succeeded")
	}
	if _, err := os.Stat(frame); err != nil {
		t.Error("frames removed after failed encode")
	}
}
