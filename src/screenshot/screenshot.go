package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/kbinani/screenshot"

	"region-snip/src/region"
)

// CaptureRegion grabs the screen pixels inside r. Coordinates are absolute
// virtual-screen coordinates.
func CaptureRegion(r region.Rect) (*image.RGBA, error) {
	if r.Empty() {
		return nil, fmt.Errorf("invalid region dimensions: width=%d, height=%d", r.Width, r.Height)
	}
	img, err := screenshot.CaptureRect(r.Bounds())
	if err != nil {
		return nil, fmt.Errorf("failed to capture region: %w", err)
	}
	return img, nil
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image as PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// VirtualBounds returns the union of all active display bounds. The event
// loop uses it to refuse reusing geometry that no longer touches any screen.
func VirtualBounds() (image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}, fmt.Errorf("no active displays found")
	}
	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}
	return union, nil
}
