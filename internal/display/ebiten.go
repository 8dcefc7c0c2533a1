package display

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/rs/zerolog"

	"github.com/junsooki/screencast/internal/control"
	"github.com/junsooki/screencast/internal/events"
	"github.com/junsooki/screencast/internal/receiver"
	"github.com/junsooki/screencast/internal/recording"
)

// Viewer renders the DisplaySlot with Ebitengine. R toggles recording and
// Esc or closing the window sets the stop flag.
type Viewer struct {
	slot      *receiver.DisplaySlot
	flags     *control.Flags
	rec       *recording.Recorder
	connected *atomic.Bool
	done      <-chan struct{}
	logger    zerolog.Logger

	image *ebiten.Image

	mu          sync.Mutex
	note        string
	unsubscribe func()
}

// NewViewer creates a viewer. done closes when the receiver session ends.
func NewViewer(slot *receiver.DisplaySlot, flags *control.Flags, rec *recording.Recorder,
	connected *atomic.Bool, done <-chan struct{}, bus *events.Bus, logger zerolog.Logger) *Viewer {
	v := &Viewer{
		slot:      slot,
		flags:     flags,
		rec:       rec,
		connected: connected,
		done:      done,
		logger:    logger,
	}
	v.unsubscribe = bus.Subscribe(func(e events.RecordingFinalized) {
		if e.Err != nil {
			v.setNote(fmt.Sprintf("recording failed: %v", e.Err))
			return
		}
		v.setNote(fmt.Sprintf("saved %s (%d frames, %.1f fps)", e.Video, e.Frames, e.FPS))
	})
	return v
}

// Run starts the Ebitengine game loop. Must be called from the main goroutine.
func (v *Viewer) Run(title string) error {
	defer v.unsubscribe()
	ebiten.SetWindowSize(1280, 720)
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowClosingHandled(true)
	return ebiten.RunGame(v)
}

func (v *Viewer) setNote(note string) {
	v.mu.Lock()
	v.note = note
	v.mu.Unlock()
}

func (v *Viewer) status() Status {
	v.mu.Lock()
	note := v.note
	v.mu.Unlock()
	return Status{
		Connected: v.connected.Load(),
		Stalled:   v.flags.Paused.Load(),
		Recording: v.rec.IsRecording(),
		Frames:    v.rec.Frames(),
		Note:      note,
	}
}

func (v *Viewer) toggleRecording() {
	if !v.rec.IsRecording() {
		dir, err := v.rec.Start()
		if err != nil {
			v.logger.Error().Err(err).Msg("start recording")
			v.setNote(err.Error())
			return
		}
		v.setNote("recording to " + dir)
		return
	}
	sum, err := v.rec.Stop()
	if err != nil {
		v.logger.Warn().Err(err).Msg("stop recording")
		v.setNote(err.Error())
		return
	}
	if sum != nil {
		v.setNote(fmt.Sprintf("finalizing %d frames at %.1f fps", sum.Frames, sum.FPS))
	}
}

// --- ebiten.Game interface ---

func (v *Viewer) Update() error {
	select {
	case <-v.done:
		return ebiten.Termination
	default:
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) || ebiten.IsWindowBeingClosed() {
		v.flags.Stop.Store(true)
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		v.toggleRecording()
	}

	frame, ok := v.slot.TryRead()
	if !ok {
		return nil
	}
	if frame == nil {
		v.image = nil
		return nil
	}
	w, h := frame.Rect.Dx(), frame.Rect.Dy()
	if v.image == nil || v.image.Bounds().Dx() != w || v.image.Bounds().Dy() != h {
		v.image = ebiten.NewImage(w, h)
	}
	v.image.WritePixels(frame.Pix)
	return nil
}

func (v *Viewer) Draw(screen *ebiten.Image) {
	if v.image != nil {
		sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
		fw, fh := float64(v.image.Bounds().Dx()), float64(v.image.Bounds().Dy())
		scale, offsetX, offsetY := aspectFitTransform(float64(sw), float64(sh), fw, fh)

		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(scale, scale)
		op.GeoM.Translate(offsetX, offsetY)
		screen.DrawImage(v.image, op)
	}
	ebitenutil.DebugPrint(screen, v.status().String())
}

func (v *Viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}
