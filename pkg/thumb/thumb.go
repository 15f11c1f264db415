package thumb

import (
	"bytes"

	"github.com/disintegration/imaging"
)

// TargetWidth is the calendar thumbnail width in pixels.
const TargetWidth = 500

// Resize decodes arbitrary raster image bytes and re-encodes them as a JPEG
// scaled to TargetWidth with the aspect ratio preserved. Returns nil when the
// input cannot be decoded or encoded; callers must check before uploading.
func Resize(raw []byte) []byte {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	resized := imaging.Resize(img, TargetWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil
	}
	return buf.Bytes()
}
