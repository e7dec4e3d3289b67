package render

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// DefaultSize is the side length in pixels used by the web form.
const DefaultSize = 200

// QRRenderer encodes text as a PNG QR code.
type QRRenderer struct {
	size  int
	level qrcode.RecoveryLevel
}

// NewQRRenderer creates a renderer; size <= 0 means DefaultSize.
func NewQRRenderer(size int) *QRRenderer {
	if size <= 0 {
		size = DefaultSize
	}
	return &QRRenderer{size: size, level: qrcode.Medium}
}

// Size returns the default side length.
func (r *QRRenderer) Size() int {
	return r.size
}

// PNG encodes text at the renderer's default size.
func (r *QRRenderer) PNG(text string) ([]byte, error) {
	return r.PNGSize(text, r.size)
}

// PNGSize encodes text at size pixels.
func (r *QRRenderer) PNGSize(text string, size int) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("could not generate a QR code: empty content")
	}
	png, err := qrcode.Encode(text, r.level, size)
	if err != nil {
		return nil, fmt.Errorf("could not generate a QR code: %w", err)
	}
	return png, nil
}

// DataURI returns png as an inline image source.
func DataURI(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
