package overlay

import (
	"context"

	"region-snip/src/region"
)

// Options configures one selection session.
type Options struct {
	// Initial, when non-nil, opens the overlay pre-positioned with this
	// geometry instead of waiting for a drag (the Reuse Last Region path).
	Initial *region.Rect
	// NudgeStep is the arrow-key translation step in pixels (min 1).
	NudgeStep int
}

// Selector is the synchronous region-selection API. Select blocks until the
// user confirms (Space), cancels (Escape), or Confirm/Cancel is requested
// from outside; it returns (rect, cancelled, error). Confirm and Cancel are
// safe to call from any goroutine: they marshal the request onto the
// overlay's own message loop instead of mutating the session directly.
type Selector interface {
	Select(ctx context.Context, opts Options) (region.Rect, bool, error)
	Confirm()
	Cancel()
	Active() bool
}

// NewSelector returns the platform implementation.
// Implementation is provided in a platform-specific file.
func NewSelector() Selector {
	return newPlatformSelector()
}
