package codec

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/junsooki/screencast/internal/capture"
)

// JPEG encodes frames as JPEG at a fixed quality.
type JPEG struct {
	quality int
}

// NewJPEG creates a JPEG codec with the given quality (1-100).
func NewJPEG(quality int) *JPEG {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	return &JPEG{quality: quality}
}

func (j *JPEG) Name() string { return "jpeg" }
func (j *JPEG) Ext() string  { return ".jpg" }

func (j *JPEG) Encode(f *capture.Frame) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(256 * 1024)
	if err := jpeg.Encode(&buf, f.RGBA(), &jpeg.Options{Quality: j.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (j *JPEG) Decode(data []byte) (*image.RGBA, error) {
	if err := checkConfig(jpeg.DecodeConfig(bytes.NewReader(data))); err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return toRGBA(img), nil
}
