package capture

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func numberedFrame(w, h int) *Frame {
	pix := make([]byte, w*h*4)
	for i := range pix {
		pix[i] = byte(i % 251)
	}
	return &Frame{Width: w, Height: h, Pix: pix, Order: OrderBGRA}
}

func TestCrop(t *testing.T) {
	src := numberedFrame(40, 30)
	tests := []struct {
		name string
		r    Region
	}{
		{"interior", Region{MinX: 5, MinY: 7, MaxX: 17, MaxY: 20}},
		{"full", Region{MinX: 0, MinY: 0, MaxX: 40, MaxY: 30}},
		{"single pixel", Region{MinX: 39, MinY: 29, MaxX: 40, MaxY: 30}},
		{"top row", Region{MinX: 0, MinY: 0, MaxX: 40, MaxY: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Crop(src, &tt.r)
			if err != nil {
				t.Fatal(err)
			}
			w, h := tt.r.MaxX-tt.r.MinX, tt.r.MaxY-tt.r.MinY
			if len(got.Pix) != w*h*4 {
				t.Fatalf("len(Pix) = %d, want %d", len(got.Pix), w*h*4)
			}
			if got.Width != w || got.Height != h {
				t.Errorf("size = %dx%d, want %dx%d", got.Width, got.Height, w, h)
			}
			for y := 0; y < h; y++ {
				srcOff := ((tt.r.MinY+y)*src.Width + tt.r.MinX) * 4
				want := src.Pix[srcOff : srcOff+w*4]
				row := got.Pix[y*w*4 : (y+1)*w*4]
				if !bytes.Equal(row, want) {
					t.Fatalf("row %d differs from source", y)
				}
			}
			if got.Order != src.Order {
				t.Errorf("Order = %v, want %v", got.Order, src.Order)
			}
		})
	}
}

func TestCropNilRegion(t *testing.T) {
	src := numberedFrame(4, 4)
	got, err := Crop(src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != src {
		t.Error("nil region should return the source frame")
	}
}

func TestRegionValidate(t *testing.T) {
	tests := []struct {
		name string
		r    Region
		ok   bool
	}{
		{"fits", Region{0, 0, 100, 50}, true},
		{"empty width", Region{10, 0, 10, 50}, false},
		{"inverted", Region{20, 10, 10, 5}, false},
		{"negative", Region{-1, 0, 10, 10}, false},
		{"too wide", Region{0, 0, 101, 50}, false},
		{"too tall", Region{0, 0, 100, 51}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate(100, 50)
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrRegionOutOfBounds) {
				t.Errorf("Validate() = %v, want ErrRegionOutOfBounds", err)
			}
		})
	}
}

func TestParseRegion(t *testing.T) {
	r, err := ParseRegion(" 1, 2,30,40 ")
	if err != nil {
		t.Fatal(err)
	}
	if *r != (Region{1, 2, 30, 40}) {
		t.Errorf("ParseRegion = %+v", *r)
	}
	if r, err := ParseRegion(""); r != nil || err != nil {
		t.Errorf("ParseRegion(\"\") = %v, %v, want nil, nil", r, err)
	}
	for _, bad := range []string{"1,2,3", "a,b,c,d", "1,2,3,4,5"} {
		if _, err := ParseRegion(bad); err == nil {
			t.Errorf("ParseRegion(%q) accepted", bad)
		}
	}
}

func TestFrameRGBASwizzle(t *testing.T) {
	f := &Frame{Width: 1, Height: 1, Pix: []byte{10, 20, 30, 255}, Order: OrderBGRA}
	img := f.RGBA()
	want := []byte{30, 20, 10, 255}
	if !bytes.Equal(img.Pix, want) {
		t.Errorf("RGBA().Pix = %v, want %v", img.Pix, want)
	}
	if f.Pix[0] != 10 {
		t.Error("RGBA() mutated the source frame")
	}
}

func TestBlank(t *testing.T) {
	f := numberedFrame(3, 2)
	b := f.Blank()
	if b.Width != 3 || b.Height != 2 || len(b.Pix) != len(f.Pix) {
		t.Fatalf("blank geometry = %dx%d/%d", b.Width, b.Height, len(b.Pix))
	}
	for _, v := range b.Pix {
		if v != 0 {
			t.Fatal("blank frame has non-zero bytes")
		}
	}
}

func TestPatternSourceNotReady(t *testing.T) {
	now := time.Unix(1000, 0)
	p := NewPatternSource(8, 6, 50*time.Millisecond)
	p.now = func() time.Time { return now }

	f, err := p.Frame()
	if err != nil {
		t.Fatal(err)
	}
	if f.Width != 8 || f.Height != 6 || len(f.Pix) != 8*6*4 {
		t.Errorf("frame geometry = %dx%d/%d", f.Width, f.Height, len(f.Pix))
	}

	now = now.Add(10 * time.Millisecond)
	if _, err := p.Frame(); !errors.Is(err, ErrNotReady) {
		t.Errorf("second Frame() = %v, want ErrNotReady", err)
	}

	now = now.Add(50 * time.Millisecond)
	if _, err := p.Frame(); err != nil {
		t.Errorf("Frame() after interval = %v", err)
	}
}
