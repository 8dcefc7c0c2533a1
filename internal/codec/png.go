package codec

import (
	"bytes"
	"image"
	"image/png"

	"github.com/junsooki/screencast/internal/capture"
)

// PNG encodes frames losslessly. Larger payloads, exact pixels.
type PNG struct {
	enc png.Encoder
}

func NewPNG() *PNG {
	return &PNG{enc: png.Encoder{CompressionLevel: png.BestSpeed}}
}

func (p *PNG) Name() string { return "png" }
func (p *PNG) Ext() string  { return ".png" }

func (p *PNG) Encode(f *capture.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.enc.Encode(&buf, f.RGBA()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *PNG) Decode(data []byte) (*image.RGBA, error) {
	if err := checkConfig(png.DecodeConfig(bytes.NewReader(data))); err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return toRGBA(img), nil
}
