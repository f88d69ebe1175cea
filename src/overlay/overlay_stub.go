//go:build !windows

package overlay

import (
	"context"
	"fmt"

	"region-snip/src/region"
)

// stubSelector is used on platforms without an overlay implementation.
type stubSelector struct{}

func newPlatformSelector() Selector { return &stubSelector{} }

func (s *stubSelector) Select(ctx context.Context, opts Options) (region.Rect, bool, error) {
	return region.Rect{}, false, fmt.Errorf("interactive region selection not implemented for this platform")
}

func (s *stubSelector) Confirm() {}

func (s *stubSelector) Cancel() {}

func (s *stubSelector) Active() bool { return false }
